package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rahullym/GMBpro/internal/adapters/gbp"
	"github.com/rahullym/GMBpro/internal/adapters/observability"
	"github.com/rahullym/GMBpro/internal/domain"
	"github.com/rahullym/GMBpro/internal/jobs"
)

// SyncService pulls provider reviews for one location and lands them in the
// local store, idempotently keyed by the provider review id.
type SyncService struct {
	locations domain.LocationRepository
	reviews   domain.ReviewRepository
	creds     domain.CredentialStore
	provider  domain.ProviderClient
	classify  domain.SentimentClassifier
	queue     jobs.Queue
	audit     domain.AuditSink
	cache     domain.Cache
}

func NewSyncService(
	locations domain.LocationRepository,
	reviews domain.ReviewRepository,
	creds domain.CredentialStore,
	provider domain.ProviderClient,
	classify domain.SentimentClassifier,
	queue jobs.Queue,
	audit domain.AuditSink,
	cache domain.Cache,
) *SyncService {
	return &SyncService{
		locations: locations,
		reviews:   reviews,
		creds:     creds,
		provider:  provider,
		classify:  classify,
		queue:     queue,
		audit:     audit,
		cache:     cache,
	}
}

type SyncResult struct {
	Created  int
	Updated  int
	Skipped  int // malformed raw reviews, counted and dropped
	Deferred int // transient upsert failures handed to the ingest queue
}

// Sync runs one poll->dedup->persist->classify pass for a location.
// Individual review failures never fail the batch; credential and provider
// faults do, mapped through the shared taxonomy.
func (s *SyncService) Sync(ctx context.Context, locationID, actorID string) (SyncResult, error) {
	var res SyncResult

	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		return res, fmt.Errorf("load location %s: %w", locationID, err)
	}

	if loc.Credential == nil {
		appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
			"review.sync_failed", "location", loc.ID,
			map[string]any{"reason": "not_connected"}))
		return res, domain.ErrNotConnected
	}

	tok, err := s.creds.Refresh(ctx, *loc.Credential)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialRevoked) {
			return res, s.disconnect(ctx, loc, actorID, "review.sync_failed")
		}
		return res, fmt.Errorf("refresh credential for %s: %w", loc.ID, err)
	}

	raws, err := s.provider.ListReviews(ctx, tok.Token, loc.PlaceID)
	if err != nil {
		if errors.Is(err, gbp.ErrUnauthorized) {
			return res, s.disconnect(ctx, loc, actorID, "review.sync_failed")
		}
		// the client already retried transient faults; what comes back here
		// is either exhausted (retryable for the job) or permanent
		return res, fmt.Errorf("list reviews for %s: %w", loc.ID, err)
	}

	for _, raw := range raws {
		if !raw.Valid() {
			res.Skipped++
			observability.ObserveIngest("skipped")
			log.Warn().
				Str("location_id", loc.ID).
				Str("natural_id", raw.NaturalID).
				Int("rating", raw.Rating).
				Msg("skipping malformed raw review")
			continue
		}
		created, err := s.IngestOne(ctx, loc.ID, raw)
		if err != nil {
			// a single flaky upsert must not sink the batch; hand the review
			// to the ingest queue for its own retries
			if s.deferIngest(ctx, loc, actorID, raw) {
				res.Deferred++
			} else {
				res.Skipped++
			}
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	now := time.Now().UTC()
	if err := s.locations.TouchLastSync(ctx, loc.ID, now); err != nil {
		log.Error().Err(err).Str("location_id", loc.ID).Msg("update last sync failed")
	}
	s.invalidateReviews(ctx, loc.ID)

	appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
		"review.sync", "location", loc.ID,
		map[string]any{
			"created":  res.Created,
			"updated":  res.Updated,
			"skipped":  res.Skipped,
			"deferred": res.Deferred,
		}))

	log.Info().
		Str("location_id", loc.ID).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("deferred", res.Deferred).
		Msg("sync completed")
	return res, nil
}

// IngestOne classifies and upserts a single raw review. Safe under concurrent
// invocations: the repository collapses duplicate natural ids onto one row and
// never touches status or reply linkage on update.
func (s *SyncService) IngestOne(ctx context.Context, locationID string, raw domain.RawReview) (created bool, err error) {
	if !raw.Valid() {
		observability.ObserveIngest("skipped")
		return false, fmt.Errorf("malformed raw review %q: %w", raw.NaturalID, domain.ErrProviderRejected)
	}

	rv := domain.Review{
		ID:             uuid.NewString(),
		LocationID:     locationID,
		GoogleReviewID: raw.NaturalID,
		Author:         raw.Author,
		Rating:         raw.Rating,
		Text:           raw.Text,
		Sentiment:      s.classify.Classify(raw.Text, raw.Rating),
		Status:         domain.ReviewPending,
		CreatedAt:      raw.CreatedAt,
		IngestedAt:     time.Now().UTC(),
	}
	created, err = s.reviews.UpsertReview(ctx, rv)
	if err != nil {
		return false, fmt.Errorf("upsert review %s: %w", raw.NaturalID, err)
	}
	if created {
		observability.ObserveIngest("created")
	} else {
		observability.ObserveIngest("updated")
	}
	return created, nil
}

func (s *SyncService) deferIngest(ctx context.Context, loc domain.Location, actorID string, raw domain.RawReview) bool {
	env, err := jobs.NewEnvelope(jobs.TypeIngestReview, jobs.IngestReview{
		LocationID: loc.ID,
		BusinessID: loc.BusinessID,
		ActorID:    actorID,
		Raw:        raw,
	})
	if err == nil {
		err = s.queue.Enqueue(ctx, env)
	}
	if err != nil {
		observability.ObserveIngest("skipped")
		log.Error().Err(err).
			Str("location_id", loc.ID).
			Str("natural_id", raw.NaturalID).
			Msg("deferring review ingest failed")
		return false
	}
	observability.ObserveIngest("deferred")
	return true
}

// disconnect clears the stored credential and reports the revocation. The
// cleared value is idempotent, so racing writers are harmless.
func (s *SyncService) disconnect(ctx context.Context, loc domain.Location, actorID, action string) error {
	if err := s.locations.ClearCredential(ctx, loc.ID); err != nil {
		log.Error().Err(err).Str("location_id", loc.ID).Msg("clear credential failed")
	}
	appendAudit(ctx, s.audit, domain.NewAuditEntry(loc.BusinessID, actorID,
		action, "location", loc.ID,
		map[string]any{"reason": "credential_revoked"}))
	return domain.ErrCredentialRevoked
}

// invalidateReviews drops the common cached review pages for a location.
func (s *SyncService) invalidateReviews(ctx context.Context, locationID string) {
	if s.cache == nil {
		return
	}
	for _, lim := range []int{20, 50, 100} {
		_ = s.cache.Del(ctx, reviewsCacheKey(locationID, lim, "-created_at"))
	}
}
