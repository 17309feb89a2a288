package domain

import (
	"context"
	"time"
)

type LocationRepository interface {
	GetLocation(ctx context.Context, id string) (Location, error)
	ListConnectedLocations(ctx context.Context) ([]Location, error)
	// ClearCredential marks the location disconnected. Writing nil is
	// idempotent, so last-writer-wins is acceptable here.
	ClearCredential(ctx context.Context, id string) error
	TouchLastSync(ctx context.Context, id string, at time.Time) error
}

type ReviewRepository interface {
	// UpsertReview inserts or, when the GoogleReviewID already exists, updates
	// author/rating/text/sentiment while leaving status and reply linkage
	// untouched. Returns true when a new row was created. Must be safe under
	// concurrent callers: duplicates collapse onto the first writer's row.
	UpsertReview(ctx context.Context, r Review) (created bool, err error)
	GetReview(ctx context.Context, id string) (Review, error)
	ListReviews(ctx context.Context, locationID string, pg PageQuery) (ReviewsPage, error)
	// ApproveIfPending advances status pending -> approved; a no-op otherwise.
	ApproveIfPending(ctx context.Context, reviewID string) error
}

type ReplyRepository interface {
	InsertReply(ctx context.Context, r Reply) error
	ListReplies(ctx context.Context, reviewID string) ([]Reply, error)
	// GetPublishTarget loads the reply joined with its review and location.
	GetPublishTarget(ctx context.Context, replyID string) (PublishTarget, error)
	// MarkPublished is the single-writer gate: a conditional update that only
	// succeeds while published is still false. Returns false when another
	// writer won.
	MarkPublished(ctx context.Context, replyID, finalText string, at time.Time) (bool, error)
}

// PublishTarget is everything the publish path needs in one read.
type PublishTarget struct {
	Reply          Reply
	ReviewID       string
	ReviewStatus   ReviewStatus
	GoogleReviewID string
	Location       Location
}

// AuditSink appends are fire-and-forget from the pipeline's perspective, but a
// sink error must be logged by the caller, never swallowed silently.
type AuditSink interface {
	Append(ctx context.Context, e AuditEntry) error
}

type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

type CredentialStore interface {
	// Refresh exchanges the encrypted refresh credential for a short-lived
	// access token. A revoked credential yields ErrCredentialRevoked.
	Refresh(ctx context.Context, encCredential string) (AccessToken, error)
	IsValid(ctx context.Context, encCredential string) bool
}

type ProviderClient interface {
	ListReviews(ctx context.Context, accessToken, placeID string) ([]RawReview, error)
	PostReply(ctx context.Context, accessToken, reviewNaturalID, text string) error
}

type SentimentClassifier interface {
	Classify(text string, rating int) Sentiment
}

type ReplyGenerator interface {
	Generate(ctx context.Context, reviewText string, rating int, voice Voice) (Draft, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type PageQuery struct {
	Limit  int
	Cursor *string
	Sort   string
}

type ReviewsPage struct {
	Items      []Review
	NextCursor *string
}
