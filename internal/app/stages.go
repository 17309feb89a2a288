package app

import (
	"context"
	"time"

	"github.com/rahullym/GMBpro/internal/jobs"
)

// One handler per queue stage. Handlers decode the typed payload, run the
// coordinator, and map its error through the taxonomy; retry policy itself
// stays in the worker. An undecodable payload can never succeed and goes
// straight to the dead letter list.

// jobTimeout bounds one delivery so a hung provider call becomes a retryable
// failure instead of a stuck worker slot.
const jobTimeout = 2 * time.Minute

func PollHandler(sync *SyncService) jobs.Handler {
	return func(ctx context.Context, env jobs.Envelope) jobs.Outcome {
		var p jobs.PollLocation
		if err := env.Decode(&p); err != nil {
			return jobs.DeadLetter(err.Error())
		}
		ctx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		_, err := sync.Sync(ctx, p.LocationID, p.ActorID)
		return jobs.OutcomeFromError(err)
	}
}

func IngestHandler(sync *SyncService) jobs.Handler {
	return func(ctx context.Context, env jobs.Envelope) jobs.Outcome {
		var p jobs.IngestReview
		if err := env.Decode(&p); err != nil {
			return jobs.DeadLetter(err.Error())
		}
		ctx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		_, err := sync.IngestOne(ctx, p.LocationID, p.Raw)
		return jobs.OutcomeFromError(err)
	}
}

func GenerateHandler(gen *GenerateService) jobs.Handler {
	return func(ctx context.Context, env jobs.Envelope) jobs.Outcome {
		var p jobs.GenerateReply
		if err := env.Decode(&p); err != nil {
			return jobs.DeadLetter(err.Error())
		}
		ctx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		_, err := gen.Generate(ctx, p.ReviewID, p.Voice, p.BusinessID, p.ActorID)
		return jobs.OutcomeFromError(err)
	}
}

func PublishHandler(pub *PublishService) jobs.Handler {
	return func(ctx context.Context, env jobs.Envelope) jobs.Outcome {
		var p jobs.PublishReply
		if err := env.Decode(&p); err != nil {
			return jobs.DeadLetter(err.Error())
		}
		ctx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		res, err := pub.Publish(ctx, p.ReplyID, p.FinalText, p.ActorID)
		if err == nil && res.Status == PublishStatusAlreadyPublished {
			// re-delivered job; nothing left to do
			return jobs.Completed()
		}
		return jobs.OutcomeFromError(err)
	}
}
