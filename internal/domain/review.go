package domain

import "time"

type Sentiment string

const (
	SentimentUnset    Sentiment = ""
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewApproved  ReviewStatus = "approved"
	ReviewEscalated ReviewStatus = "escalated"
	ReviewArchived  ReviewStatus = "archived"
)

// Review is the locally persisted copy of one provider review. GoogleReviewID
// is the dedup key: at most one row per id, system-wide.
type Review struct {
	ID             string
	LocationID     string
	GoogleReviewID string
	Author         string
	Rating         int // 1..5
	Text           string
	Sentiment      Sentiment
	Status         ReviewStatus
	CreatedAt      time.Time // provider-supplied
	IngestedAt     time.Time
	UpdatedAt      time.Time
}

// RawReview is the provider-shaped review as returned by ListReviews, before
// classification and persistence.
type RawReview struct {
	NaturalID     string
	Author        string
	Rating        int
	Text          string
	CreatedAt     time.Time
	ExistingReply string // reply already present on the provider side, if any
}

// Valid reports whether the raw review carries the minimum the ingest path
// needs. Malformed entries are skipped, never fatal to a batch.
func (r RawReview) Valid() bool {
	return r.NaturalID != "" && r.Rating >= 1 && r.Rating <= 5
}
