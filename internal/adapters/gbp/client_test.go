package gbp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rahullym/GMBpro/internal/adapters/gbp"
	"github.com/rahullym/GMBpro/internal/domain"
)

func TestClient_ListReviews_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"reviews": []map[string]any{
					{
						"reviewId":   "g-1",
						"reviewer":   map[string]any{"displayName": "Ana"},
						"starRating": "FIVE",
						"comment":    "Great!",
						"createTime": "2024-03-01T10:00:00Z",
					},
					{
						"reviewId":   "g-2",
						"reviewer":   map[string]any{"isAnonymous": true},
						"starRating": "TWO",
						"comment":    "Not great",
						"createTime": "2024-03-02T10:00:00Z",
						"reviewReply": map[string]any{
							"comment": "Sorry to hear that",
						},
					},
				},
			})
		}
	}))
	defer ts.Close()

	cl, err := gbp.New(ts.URL, 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := cl.ListReviews(ctx, "tok", "accounts/1/locations/1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(got))
	}
	if got[0].NaturalID != "g-1" || got[0].Rating != 5 || got[0].Author != "Ana" {
		t.Fatalf("unexpected first review: %+v", got[0])
	}
	if got[1].Author != "Anonymous" || got[1].ExistingReply == "" {
		t.Fatalf("unexpected second review: %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("createTime not parsed")
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_ListReviews_Paginates(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		if atomic.AddInt32(&hits, 1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"reviews": []map[string]any{
					{"reviewId": "g-1", "starRating": "FOUR", "createTime": "2024-03-01T10:00:00Z"},
				},
				"nextPageToken": "page-2",
			})
			return
		}
		if tok := r.URL.Query().Get("pageToken"); tok != "page-2" {
			t.Errorf("expected pageToken=page-2, got %q", tok)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reviews": []map[string]any{
				{"reviewId": "g-2", "starRating": "ONE", "createTime": "2024-03-02T10:00:00Z"},
			},
		})
	}))
	defer ts.Close()

	cl, _ := gbp.New(ts.URL, 100)
	got, err := cl.ListReviews(context.Background(), "tok", "accounts/1/locations/1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 || got[1].NaturalID != "g-2" {
		t.Fatalf("expected both pages, got %+v", got)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
	}))
	defer ts.Close()

	cl, _ := gbp.New(ts.URL, 100)
	_, err := cl.ListReviews(context.Background(), "bad-tok", "accounts/1/locations/1")
	if !errors.Is(err, gbp.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_PostReply_PermanentRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		w.WriteHeader(400)
		_, _ = w.Write([]byte("comment too long"))
	}))
	defer ts.Close()

	cl, _ := gbp.New(ts.URL, 100)
	err := cl.PostReply(context.Background(), "tok", "accounts/1/locations/1/reviews/g-1", "text")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.Retryable {
		t.Fatalf("expected permanent ProviderError, got %v", err)
	}
	if domain.Retryable(err) {
		t.Fatal("4xx rejection must not be retryable")
	}
}

func TestClient_PostReply_HonorsRetryAfter(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(429)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("{}"))
	}))
	defer ts.Close()

	cl, _ := gbp.New(ts.URL, 100)
	if err := cl.PostReply(context.Background(), "tok", "accounts/1/locations/1/reviews/g-1", "text"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected retry after 429, got %d calls", hits)
	}
}
