package jobs

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/rahullym/GMBpro/internal/adapters/observability"
)

// Handler processes one delivery and reports what should happen to the job.
type Handler func(ctx context.Context, env Envelope) Outcome

// Policy bounds retries per queue.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	return p
}

type registration struct {
	handler Handler
	policy  Policy
}

// Worker consumes registered queues with a bounded pool. Concurrency comes
// from parallel deliveries, never from locking inside a single job.
type Worker struct {
	q       Queue
	regs    map[string]registration
	slots   int64
	log     zerolog.Logger
	deqWait time.Duration
}

func NewWorker(q Queue, workers int, log zerolog.Logger) *Worker {
	if workers <= 0 {
		workers = 4
	}
	return &Worker{
		q:       q,
		regs:    make(map[string]registration),
		slots:   int64(workers),
		log:     log,
		deqWait: 2 * time.Second,
	}
}

func (w *Worker) Register(queue string, h Handler, p Policy) {
	w.regs[queue] = registration{handler: h, policy: p.withDefaults()}
}

// Run blocks until ctx is canceled. Each registered queue gets its own
// consumer loop; handler executions share one weighted semaphore.
func (w *Worker) Run(ctx context.Context) error {
	for queue := range w.regs {
		n, err := w.q.Recover(ctx, queue)
		if err != nil {
			return fmt.Errorf("recover %s: %w", queue, err)
		}
		if n > 0 {
			w.log.Warn().Str("queue", queue).Int("jobs", n).Msg("re-queued in-flight jobs from previous run")
		}
	}

	sem := semaphore.NewWeighted(w.slots)
	var wg sync.WaitGroup

	for queue, reg := range w.regs {
		queue, reg := queue, reg
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx, sem, queue, reg)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func (w *Worker) consume(ctx context.Context, sem *semaphore.Weighted, queue string, reg registration) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return
		}
		env, ok, err := w.q.Dequeue(ctx, queue, w.deqWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Str("queue", queue).Err(err).Msg("dequeue failed")
			sleepCtx(ctx, time.Second)
			continue
		}
		if !ok {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// shutting down with a job in hand; leave it on the active list
			// for the next run's Recover
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			w.handle(ctx, queue, reg, env)
		}()
	}
}

func (w *Worker) handle(ctx context.Context, queue string, reg registration, env Envelope) {
	start := time.Now()
	out := reg.handler(ctx, env)
	dur := time.Since(start)

	log := w.log.With().
		Str("queue", queue).
		Str("job_id", env.ID).
		Str("type", string(env.Type)).
		Int("attempt", env.Attempt).
		Logger()

	switch out.Kind {
	case KindCompleted:
		observability.ObserveJob(queue, "completed", dur)
		if err := w.q.Ack(ctx, env); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}

	case KindRetry:
		if env.Attempt >= reg.policy.MaxAttempts {
			observability.ObserveJob(queue, "dead", dur)
			reason := fmt.Sprintf("retries exhausted after %d attempts: %s", env.Attempt, out.Reason)
			log.Error().Str("reason", out.Reason).Msg("job dead-lettered")
			if err := w.q.DeadLetter(ctx, env, reason); err != nil {
				log.Error().Err(err).Msg("dead-letter failed")
			}
			return
		}
		delay := out.Delay
		if delay <= 0 {
			delay = Backoff(env.Attempt, reg.policy.BaseDelay)
		}
		observability.ObserveJob(queue, "retry", dur)
		log.Warn().Dur("delay", delay).Str("reason", out.Reason).Msg("job scheduled for retry")
		if err := w.q.Retry(ctx, env, delay); err != nil {
			log.Error().Err(err).Msg("retry schedule failed")
		}

	case KindDead:
		observability.ObserveJob(queue, "dead", dur)
		log.Error().Str("reason", out.Reason).Msg("job dead-lettered")
		if err := w.q.DeadLetter(ctx, env, out.Reason); err != nil {
			log.Error().Err(err).Msg("dead-letter failed")
		}
	}
}

// Backoff doubles base per attempt with up to +50% crypto/rand jitter.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > 10*time.Minute {
			d = 10 * time.Minute
			break
		}
	}
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return d
	}
	f := float64(b[0]) / 255.0
	return d + time.Duration(0.5*f*float64(d))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
