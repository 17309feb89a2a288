package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rahullym/GMBpro/internal/domain"
)

// Queue names, one per pipeline stage.
const (
	QueuePoll     = "reviews.poll"
	QueueIngest   = "reviews.ingest"
	QueueGenerate = "replies.generate"
	QueuePublish  = "publish.attempt"
)

func Queues() []string {
	return []string{QueuePoll, QueueIngest, QueueGenerate, QueuePublish}
}

type Type string

const (
	TypePollLocation  Type = "poll_location"
	TypeIngestReview  Type = "ingest_review"
	TypeGenerateReply Type = "generate_reply"
	TypePublishReply  Type = "publish_reply"
)

// Envelope is the wire form of one job: a typed payload plus delivery
// metadata. Attempt counts deliveries, starting at 1.
type Envelope struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Type       Type            `json:"type"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

// One payload struct per job type; no untyped job data crosses the queue.

type PollLocation struct {
	LocationID string `json:"location_id"`
	BusinessID string `json:"business_id"`
	ActorID    string `json:"actor_id"`
}

type IngestReview struct {
	LocationID string           `json:"location_id"`
	BusinessID string           `json:"business_id"`
	ActorID    string           `json:"actor_id"`
	Raw        domain.RawReview `json:"raw"`
}

type GenerateReply struct {
	ReviewID   string       `json:"review_id"`
	Voice      domain.Voice `json:"voice"`
	BusinessID string       `json:"business_id"`
	ActorID    string       `json:"actor_id"`
}

type PublishReply struct {
	ReplyID    string `json:"reply_id"`
	FinalText  string `json:"final_text"`
	BusinessID string `json:"business_id"`
	ActorID    string `json:"actor_id"`
}

var queueByType = map[Type]string{
	TypePollLocation:  QueuePoll,
	TypeIngestReview:  QueueIngest,
	TypeGenerateReply: QueueGenerate,
	TypePublishReply:  QueuePublish,
}

// NewEnvelope wraps a payload for its type's queue.
func NewEnvelope(t Type, payload any) (Envelope, error) {
	q, ok := queueByType[t]
	if !ok {
		return Envelope{}, fmt.Errorf("unknown job type %q", t)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Queue:      q,
		Type:       t,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
		Payload:    b,
	}, nil
}

func (e Envelope) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
