package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rahullym/GMBpro/internal/adapters/gbp"
	"github.com/rahullym/GMBpro/internal/adapters/observability"
	"github.com/rahullym/GMBpro/internal/domain"
)

// PublishService pushes one finalized reply to the provider with an
// at-most-once guarantee: the published flag is a conditional update, and the
// loser of the race sees already_published instead of an error.
type PublishService struct {
	replies   domain.ReplyRepository
	reviews   domain.ReviewRepository
	locations domain.LocationRepository
	creds     domain.CredentialStore
	provider  domain.ProviderClient
	audit     domain.AuditSink
	cache     domain.Cache
}

func NewPublishService(
	replies domain.ReplyRepository,
	reviews domain.ReviewRepository,
	locations domain.LocationRepository,
	creds domain.CredentialStore,
	provider domain.ProviderClient,
	audit domain.AuditSink,
	cache domain.Cache,
) *PublishService {
	return &PublishService{
		replies:   replies,
		reviews:   reviews,
		locations: locations,
		creds:     creds,
		provider:  provider,
		audit:     audit,
		cache:     cache,
	}
}

const (
	PublishStatusPublished        = "published"
	PublishStatusAlreadyPublished = "already_published"
)

type PublishResult struct {
	Status      string
	PublishedAt time.Time
}

// Publish is safe to re-deliver: an already-published reply short-circuits.
// Every terminal outcome of an attempt writes exactly one audit entry.
func (s *PublishService) Publish(ctx context.Context, replyID, finalText, actorID string) (PublishResult, error) {
	t, err := s.replies.GetPublishTarget(ctx, replyID)
	if err != nil {
		return PublishResult{}, fmt.Errorf("load reply %s: %w", replyID, err)
	}
	loc := t.Location

	if t.Reply.Published {
		observability.ObservePublish(PublishStatusAlreadyPublished)
		appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
			"reply.publish_skipped", "reply", replyID,
			map[string]any{"reason": "already_published"}))
		at := time.Time{}
		if t.Reply.PublishedAt != nil {
			at = *t.Reply.PublishedAt
		}
		return PublishResult{Status: PublishStatusAlreadyPublished, PublishedAt: at}, nil
	}

	if finalText == "" {
		if t.Reply.FinalText != nil {
			finalText = *t.Reply.FinalText
		} else {
			finalText = t.Reply.DraftText
		}
	}

	if loc.Credential == nil {
		observability.ObservePublish("failed")
		appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
			"reply.publish_failed", "reply", replyID,
			map[string]any{"reason": "not_connected"}))
		return PublishResult{}, domain.ErrNotConnected
	}

	tok, err := s.creds.Refresh(ctx, *loc.Credential)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialRevoked) {
			return PublishResult{}, s.disconnect(ctx, loc, actorID, replyID)
		}
		observability.ObservePublish("failed")
		appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
			"reply.publish_failed", "reply", replyID,
			map[string]any{"reason": "token_refresh", "error": err.Error()}))
		return PublishResult{}, fmt.Errorf("refresh credential for %s: %w", loc.ID, err)
	}

	if err := s.provider.PostReply(ctx, tok.Token, t.GoogleReviewID, finalText); err != nil {
		if errors.Is(err, gbp.ErrUnauthorized) {
			return PublishResult{}, s.disconnect(ctx, loc, actorID, replyID)
		}
		observability.ObservePublish("failed")
		appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
			"reply.publish_failed", "reply", replyID,
			map[string]any{"reason": "provider", "error": err.Error(), "retryable": domain.Retryable(err)}))
		return PublishResult{}, fmt.Errorf("post reply %s: %w", replyID, err)
	}

	now := time.Now().UTC()
	won, err := s.replies.MarkPublished(ctx, replyID, finalText, now)
	if err != nil {
		return PublishResult{}, fmt.Errorf("mark reply %s published: %w", replyID, err)
	}
	if !won {
		// another worker published between our read and the conditional
		// update; idempotent skip, not a failure
		observability.ObservePublish(PublishStatusAlreadyPublished)
		appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
			"reply.publish_skipped", "reply", replyID,
			map[string]any{"reason": "already_published"}))
		return PublishResult{Status: PublishStatusAlreadyPublished, PublishedAt: now}, nil
	}

	if err := s.reviews.ApproveIfPending(ctx, t.ReviewID); err != nil {
		log.Error().Err(err).Str("review_id", t.ReviewID).Msg("advance review status failed")
	}
	s.invalidate(ctx, loc.ID, t.ReviewID)

	observability.ObservePublish(PublishStatusPublished)
	appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
		"reply.publish", "reply", replyID,
		map[string]any{"review_id": t.ReviewID, "published_at": now}))

	log.Info().
		Str("reply_id", replyID).
		Str("review_id", t.ReviewID).
		Msg("reply published")
	return PublishResult{Status: PublishStatusPublished, PublishedAt: now}, nil
}

func (s *PublishService) disconnect(ctx context.Context, loc domain.Location, actorID, replyID string) error {
	if err := s.locations.ClearCredential(ctx, loc.ID); err != nil {
		log.Error().Err(err).Str("location_id", loc.ID).Msg("clear credential failed")
	}
	observability.ObservePublish("failed")
	appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
		"reply.publish_failed", "reply", replyID,
		map[string]any{"reason": "credential_revoked"}))
	return domain.ErrCredentialRevoked
}

func (s *PublishService) invalidate(ctx context.Context, locationID, reviewID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, reviewCacheKey(reviewID))
	for _, lim := range []int{20, 50, 100} {
		_ = s.cache.Del(ctx, reviewsCacheKey(locationID, lim, "-created_at"))
	}
}
