package jobs

import (
	"context"
	"time"
)

// Queue is the at-least-once delivery contract the pipeline runs on. A
// dequeued job stays tracked until Ack, Retry, or DeadLetter resolves it.
type Queue interface {
	Enqueue(ctx context.Context, env Envelope) error
	// Dequeue blocks up to wait for the next job on the named queue; ok is
	// false when nothing arrived.
	Dequeue(ctx context.Context, queue string, wait time.Duration) (env Envelope, ok bool, err error)
	Ack(ctx context.Context, env Envelope) error
	// Retry re-schedules env after delay with its attempt count bumped.
	Retry(ctx context.Context, env Envelope, delay time.Duration) error
	DeadLetter(ctx context.Context, env Envelope, reason string) error

	// Operator surface: dead jobs are held, inspectable, and replayable.
	ListDead(ctx context.Context, queue string, limit int) ([]DeadJob, error)
	ReplayDead(ctx context.Context, queue, jobID string) error

	// Recover re-queues jobs a dead worker left in flight. Called on startup.
	Recover(ctx context.Context, queue string) (int, error)
}

type DeadJob struct {
	Envelope Envelope  `json:"envelope"`
	Reason   string    `json:"reason"`
	DiedAt   time.Time `json:"died_at"`
}
