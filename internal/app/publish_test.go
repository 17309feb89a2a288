package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rahullym/GMBpro/internal/app"
	"github.com/rahullym/GMBpro/internal/domain"
)

type fakeReplies struct {
	target     domain.PublishTarget
	targetErr  error
	inserted   []domain.Reply
	markedWon  bool
	markCalls  int
	markedText string
	markedAt   time.Time
}

func (f *fakeReplies) InsertReply(ctx context.Context, r domain.Reply) error {
	f.inserted = append(f.inserted, r)
	return nil
}
func (f *fakeReplies) ListReplies(ctx context.Context, reviewID string) ([]domain.Reply, error) {
	return f.inserted, nil
}
func (f *fakeReplies) GetPublishTarget(ctx context.Context, replyID string) (domain.PublishTarget, error) {
	if f.targetErr != nil {
		return domain.PublishTarget{}, f.targetErr
	}
	return f.target, nil
}
func (f *fakeReplies) MarkPublished(ctx context.Context, replyID, finalText string, at time.Time) (bool, error) {
	f.markCalls++
	if f.markedWon {
		return false, nil // someone already flipped the flag
	}
	f.markedWon = true
	f.markedText = finalText
	f.markedAt = at
	return true, nil
}

func publishTarget() domain.PublishTarget {
	return domain.PublishTarget{
		Reply: domain.Reply{
			ID:        "rep-1",
			ReviewID:  "rev-1",
			Voice:     domain.VoicePolite,
			DraftText: "Thank you for your 5-star review.",
		},
		ReviewID:       "rev-1",
		ReviewStatus:   domain.ReviewPending,
		GoogleReviewID: "g-1",
		Location:       connectedLocation(),
	}
}

func newPublishService(replies *fakeReplies, revs *fakeReviews, locs *fakeLocations, creds *fakeCreds, prov *fakeProvider, audit *fakeAudit) *app.PublishService {
	return app.NewPublishService(replies, revs, locs, creds, prov, audit, &fakeCache{})
}

func TestPublish_Success(t *testing.T) {
	replies := &fakeReplies{target: publishTarget()}
	revs := &fakeReviews{byNaturalID: map[string]domain.Review{
		"g-1": {ID: "rev-1", LocationID: "loc-1", GoogleReviewID: "g-1", Status: domain.ReviewPending},
	}}
	locs := &fakeLocations{loc: connectedLocation()}
	prov := &fakeProvider{}
	audit := &fakeAudit{}
	svc := newPublishService(replies, revs, locs, &fakeCreds{}, prov, audit)

	res, err := svc.Publish(context.Background(), "rep-1", "", "tester")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Status != app.PublishStatusPublished {
		t.Fatalf("expected published, got %s", res.Status)
	}
	if len(prov.posted) != 1 || prov.posted[0] != "g-1" {
		t.Fatalf("expected one provider post for g-1, got %v", prov.posted)
	}
	// empty final text falls back to the draft
	if replies.markedText != "Thank you for your 5-star review." {
		t.Fatalf("unexpected published text: %q", replies.markedText)
	}
	if got := revs.byNaturalID["g-1"].Status; got != domain.ReviewApproved {
		t.Fatalf("expected review advanced to approved, got %s", got)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != "reply.publish" {
		t.Fatalf("expected exactly one reply.publish audit entry, got %v", audit.actions())
	}
}

func TestPublish_AlreadyPublishedSkips(t *testing.T) {
	target := publishTarget()
	target.Reply.Published = true
	target.Reply.PublishedAt = ptr(time.Now().UTC())
	replies := &fakeReplies{target: target}
	prov := &fakeProvider{}
	audit := &fakeAudit{}
	svc := newPublishService(replies, &fakeReviews{}, &fakeLocations{loc: connectedLocation()}, &fakeCreds{}, prov, audit)

	res, err := svc.Publish(context.Background(), "rep-1", "new text", "tester")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Status != app.PublishStatusAlreadyPublished {
		t.Fatalf("expected already_published, got %s", res.Status)
	}
	if len(prov.posted) != 0 {
		t.Fatalf("skip must never reach the provider, got %v", prov.posted)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != "reply.publish_skipped" {
		t.Fatalf("expected one publish_skipped entry, got %v", audit.actions())
	}
}

func TestPublish_LostRaceIsIdempotentSkip(t *testing.T) {
	replies := &fakeReplies{target: publishTarget(), markedWon: true}
	prov := &fakeProvider{}
	audit := &fakeAudit{}
	svc := newPublishService(replies, &fakeReviews{}, &fakeLocations{loc: connectedLocation()}, &fakeCreds{}, prov, audit)

	res, err := svc.Publish(context.Background(), "rep-1", "", "tester")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Status != app.PublishStatusAlreadyPublished {
		t.Fatalf("expected already_published after lost race, got %s", res.Status)
	}
}

func TestPublish_NotConnected(t *testing.T) {
	target := publishTarget()
	target.Location.Credential = nil
	replies := &fakeReplies{target: target}
	audit := &fakeAudit{}
	svc := newPublishService(replies, &fakeReviews{}, &fakeLocations{loc: target.Location}, &fakeCreds{}, &fakeProvider{}, audit)

	_, err := svc.Publish(context.Background(), "rep-1", "", "tester")
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != "reply.publish_failed" {
		t.Fatalf("expected one publish_failed entry, got %v", audit.actions())
	}
}

func TestPublish_CredentialRevokedDisconnects(t *testing.T) {
	replies := &fakeReplies{target: publishTarget()}
	locs := &fakeLocations{loc: connectedLocation()}
	creds := &fakeCreds{err: domain.ErrCredentialRevoked}
	svc := newPublishService(replies, &fakeReviews{}, locs, creds, &fakeProvider{}, &fakeAudit{})

	_, err := svc.Publish(context.Background(), "rep-1", "", "tester")
	if !errors.Is(err, domain.ErrCredentialRevoked) {
		t.Fatalf("expected ErrCredentialRevoked, got %v", err)
	}
	if len(locs.cleared) != 1 {
		t.Fatalf("expected credential cleared, got %v", locs.cleared)
	}
}

func TestPublish_ProviderFaultStaysRetryable(t *testing.T) {
	replies := &fakeReplies{target: publishTarget()}
	prov := &fakeProvider{postErr: &domain.ProviderError{Status: 503, Retryable: true, Detail: "remote 503"}}
	audit := &fakeAudit{}
	svc := newPublishService(replies, &fakeReviews{}, &fakeLocations{loc: connectedLocation()}, &fakeCreds{}, prov, audit)

	_, err := svc.Publish(context.Background(), "rep-1", "", "tester")
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if replies.markCalls != 0 {
		t.Fatalf("failed post must not flip the published flag")
	}
}
