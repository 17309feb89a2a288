package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rahullym/GMBpro/internal/domain"
	"github.com/rahullym/GMBpro/internal/jobs"
)

// memQueue is a minimal in-memory jobs.Queue for worker tests.
type memQueue struct {
	mu      sync.Mutex
	pending []jobs.Envelope
	dead    []jobs.DeadJob
	retries int
}

func (q *memQueue) Enqueue(ctx context.Context, env jobs.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, env)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context, queue string, wait time.Duration) (jobs.Envelope, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, env := range q.pending {
		if env.Queue == queue {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return env, true, nil
		}
	}
	return jobs.Envelope{}, false, nil
}

func (q *memQueue) Ack(ctx context.Context, env jobs.Envelope) error { return nil }

func (q *memQueue) Retry(ctx context.Context, env jobs.Envelope, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries++
	env.Attempt++
	q.pending = append(q.pending, env)
	return nil
}

func (q *memQueue) DeadLetter(ctx context.Context, env jobs.Envelope, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, jobs.DeadJob{Envelope: env, Reason: reason, DiedAt: time.Now()})
	return nil
}

func (q *memQueue) ListDead(ctx context.Context, queue string, limit int) ([]jobs.DeadJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]jobs.DeadJob(nil), q.dead...), nil
}

func (q *memQueue) ReplayDead(ctx context.Context, queue, jobID string) error { return nil }
func (q *memQueue) Recover(ctx context.Context, queue string) (int, error)    { return 0, nil }

func (q *memQueue) deadCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dead)
}

func runWorker(t *testing.T, q *memQueue, h jobs.Handler, p jobs.Policy, done func() bool) {
	t.Helper()
	w := jobs.NewWorker(q, 2, zerolog.Nop())
	w.Register(jobs.QueuePoll, h, p)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(finished)
	}()

	deadline := time.After(5 * time.Second)
	for !done() {
		select {
		case <-deadline:
			cancel()
			<-finished
			t.Fatal("worker did not reach expected state in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-finished
}

func TestWorker_CompletesJob(t *testing.T) {
	q := &memQueue{}
	env, _ := jobs.NewEnvelope(jobs.TypePollLocation, jobs.PollLocation{LocationID: "loc-1"})
	_ = q.Enqueue(context.Background(), env)

	var mu sync.Mutex
	var got []jobs.Envelope
	runWorker(t, q,
		func(ctx context.Context, env jobs.Envelope) jobs.Outcome {
			mu.Lock()
			got = append(got, env)
			mu.Unlock()
			return jobs.Completed()
		},
		jobs.Policy{},
		func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 1 },
	)

	if got[0].ID != env.ID {
		t.Fatalf("unexpected envelope: %+v", got[0])
	}
	if q.deadCount() != 0 {
		t.Fatalf("completed job must not be dead-lettered")
	}
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	q := &memQueue{}
	env, _ := jobs.NewEnvelope(jobs.TypePollLocation, jobs.PollLocation{LocationID: "loc-1"})
	_ = q.Enqueue(context.Background(), env)

	var attempts []int
	var mu sync.Mutex
	runWorker(t, q,
		func(ctx context.Context, env jobs.Envelope) jobs.Outcome {
			mu.Lock()
			attempts = append(attempts, env.Attempt)
			mu.Unlock()
			return jobs.RetryAfter(0)
		},
		jobs.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func() bool { return q.deadCount() == 1 },
	)

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 {
		t.Fatalf("expected 3 deliveries, got %v", attempts)
	}
	for i, a := range attempts {
		if a != i+1 {
			t.Fatalf("expected attempts 1..3, got %v", attempts)
		}
	}
	dead, _ := q.ListDead(context.Background(), jobs.QueuePoll, 10)
	if dead[0].Envelope.ID != env.ID {
		t.Fatalf("wrong job dead-lettered: %+v", dead[0])
	}
}

func TestWorker_TerminalErrorDeadLettersImmediately(t *testing.T) {
	q := &memQueue{}
	env, _ := jobs.NewEnvelope(jobs.TypePublishReply, jobs.PublishReply{ReplyID: "rep-1"})
	env.Queue = jobs.QueuePoll // reuse the registered queue
	_ = q.Enqueue(context.Background(), env)

	runWorker(t, q,
		func(ctx context.Context, env jobs.Envelope) jobs.Outcome {
			return jobs.OutcomeFromError(domain.ErrNotConnected)
		},
		jobs.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond},
		func() bool { return q.deadCount() == 1 },
	)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.retries != 0 {
		t.Fatalf("terminal error must not retry, got %d retries", q.retries)
	}
}

func TestOutcomeFromError(t *testing.T) {
	cases := []struct {
		err  error
		want jobs.OutcomeKind
	}{
		{nil, jobs.KindCompleted},
		{domain.ErrNotConnected, jobs.KindDead},
		{domain.ErrCredentialRevoked, jobs.KindDead},
		{domain.ErrProviderRejected, jobs.KindDead},
		{domain.ErrProviderUnavailable, jobs.KindRetry},
		{&domain.ProviderError{Status: 503, Retryable: true}, jobs.KindRetry},
		{&domain.ProviderError{Status: 400, Retryable: false}, jobs.KindDead},
		{errors.New("some io glitch"), jobs.KindRetry},
	}
	for _, tc := range cases {
		if got := jobs.OutcomeFromError(tc.err); got.Kind != tc.want {
			t.Fatalf("OutcomeFromError(%v) = %v, want %v", tc.err, got.Kind, tc.want)
		}
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	base := time.Second
	prevMax := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := jobs.Backoff(attempt, base)
		if d < base {
			t.Fatalf("attempt %d: backoff %v below base", attempt, d)
		}
		if d > 15*time.Minute {
			t.Fatalf("attempt %d: backoff %v above cap+jitter", attempt, d)
		}
		if attempt <= 5 && d < prevMax/4 {
			t.Fatalf("attempt %d: backoff %v should roughly grow", attempt, d)
		}
		if d > prevMax {
			prevMax = d
		}
	}
}
