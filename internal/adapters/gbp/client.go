package gbp

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rahullym/GMBpro/internal/adapters/observability"
	"github.com/rahullym/GMBpro/internal/domain"
)

// Client talks to the Google Business Profile review surface. Access tokens
// are per-call: every location carries its own credential, so the client holds
// no auth state of its own.
type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var (
	ErrNotFound     = errors.New("gbp: not found")
	ErrUnauthorized = errors.New("gbp: unauthorized")
)

// reviewsPage mirrors the wire shape of GET {location}/reviews.
type reviewsPage struct {
	Reviews []struct {
		ReviewID string `json:"reviewId"`
		Reviewer struct {
			DisplayName string `json:"displayName"`
			IsAnonymous bool   `json:"isAnonymous"`
		} `json:"reviewer"`
		StarRating  string `json:"starRating"`
		Comment     string `json:"comment"`
		CreateTime  string `json:"createTime"`
		ReviewReply *struct {
			Comment string `json:"comment"`
		} `json:"reviewReply"`
	} `json:"reviews"`
	NextPageToken string `json:"nextPageToken"`
}

var starRatings = map[string]int{
	"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5,
}

// ListReviews fetches every review page for the location identified by its
// provider resource name (e.g. accounts/{a}/locations/{l}).
func (c *Client) ListReviews(ctx context.Context, accessToken, placeID string) ([]domain.RawReview, error) {
	var out []domain.RawReview
	pageToken := ""
	for {
		u := fmt.Sprintf("%s/%s/reviews?pageSize=50", c.base, placeID)
		if pageToken != "" {
			u += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var page reviewsPage
		if err := c.do(ctx, http.MethodGet, u, accessToken, nil, &page, "list_reviews"); err != nil {
			return nil, err
		}
		for _, rv := range page.Reviews {
			raw := domain.RawReview{
				NaturalID: rv.ReviewID,
				Author:    rv.Reviewer.DisplayName,
				Rating:    starRatings[rv.StarRating],
				Text:      rv.Comment,
			}
			if rv.Reviewer.IsAnonymous && raw.Author == "" {
				raw.Author = "Anonymous"
			}
			if t, err := time.Parse(time.RFC3339, rv.CreateTime); err == nil {
				raw.CreatedAt = t
			}
			if rv.ReviewReply != nil {
				raw.ExistingReply = rv.ReviewReply.Comment
			}
			out = append(out, raw)
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// PostReply publishes reply text on the provider side. The review is addressed
// by its natural id; replying twice overwrites upstream, so the local
// published gate is what guarantees at-most-once.
func (c *Client) PostReply(ctx context.Context, accessToken, reviewNaturalID, text string) error {
	u := fmt.Sprintf("%s/%s/reply", c.base, reviewNaturalID)
	body := map[string]string{"comment": text}
	return c.do(ctx, http.MethodPut, u, accessToken, body, nil, "post_reply")
}

// do performs one API call with client-side rate limiting, bounded retries on
// 429/5xx (honoring Retry-After), and JSON decode into out.
func (c *Client) do(ctx context.Context, method, u, accessToken string, in, out any, endpoint string) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var reqBody []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = b
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("gbp", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &domain.ProviderError{Status: 0, Retryable: true, Detail: err.Error()}
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("gbp", endpoint, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			if out == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				return nil
			}
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case resp.StatusCode == http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = &domain.ProviderError{Status: resp.StatusCode, Retryable: true, Detail: "remote " + strconv.Itoa(resp.StatusCode)}
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			// remaining 4xx: permanent rejection; keep a small error body
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return &domain.ProviderError{
				Status:    resp.StatusCode,
				Retryable: false,
				Detail:    strings.TrimSpace(string(b)),
			}
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% crypto/rand jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
