package jobs

import (
	"time"

	"github.com/rahullym/GMBpro/internal/domain"
)

type OutcomeKind int

const (
	KindCompleted OutcomeKind = iota
	KindRetry
	KindDead
)

// Outcome is the handler's verdict on one delivery. Retry policy lives in the
// worker, not in handler business logic.
type Outcome struct {
	Kind   OutcomeKind
	Delay  time.Duration // 0 means let the worker pick a backoff
	Reason string
}

func Completed() Outcome { return Outcome{Kind: KindCompleted} }

func RetryAfter(d time.Duration) Outcome { return Outcome{Kind: KindRetry, Delay: d} }

func DeadLetter(reason string) Outcome { return Outcome{Kind: KindDead, Reason: reason} }

// OutcomeFromError maps a handler error through the shared taxonomy:
// retryable faults requeue, terminal ones dead-letter, nil completes.
func OutcomeFromError(err error) Outcome {
	switch {
	case err == nil:
		return Completed()
	case domain.Retryable(err):
		return Outcome{Kind: KindRetry, Reason: err.Error()}
	default:
		return DeadLetter(err.Error())
	}
}
