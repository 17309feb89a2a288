package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/rahullym/GMBpro/internal/adapters/gbp"
	"github.com/rahullym/GMBpro/internal/adapters/googleauth"
	"github.com/rahullym/GMBpro/internal/adapters/observability"
	redisad "github.com/rahullym/GMBpro/internal/adapters/redis"
	"github.com/rahullym/GMBpro/internal/adapters/redisqueue"
	"github.com/rahullym/GMBpro/internal/app"
	"github.com/rahullym/GMBpro/internal/domain"
	"github.com/rahullym/GMBpro/internal/jobs"
	"github.com/rahullym/GMBpro/internal/nlp"
	"github.com/rahullym/GMBpro/internal/shared"
	mysqlrepo "github.com/rahullym/GMBpro/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	log.Info().
		Str("base", cfg.GBPBase).
		Int("workers", cfg.Workers).
		Dur("poll_interval", cfg.PollInterval).
		Msg("worker starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	queue := redisqueue.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	provider, err := gbp.New(cfg.GBPBase, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize GBP client")
	}
	creds := googleauth.NewStore(cfg.OAuthTokenURL, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.EncryptionKey)

	syncSvc := app.NewSyncService(repo, repo, creds, provider, nlp.NewKeywordClassifier(), queue, repo, cache)
	genSvc := app.NewGenerateService(repo, repo, nlp.NewTemplateGenerator(), repo)
	pubSvc := app.NewPublishService(repo, repo, repo, creds, provider, repo, cache)

	w := jobs.NewWorker(queue, cfg.Workers, log.Logger)
	w.Register(jobs.QueuePoll, app.PollHandler(syncSvc), jobs.Policy{MaxAttempts: 3, BaseDelay: 30 * time.Second})
	w.Register(jobs.QueueIngest, app.IngestHandler(syncSvc), jobs.Policy{MaxAttempts: cfg.IngestRetries, BaseDelay: 5 * time.Second})
	w.Register(jobs.QueueGenerate, app.GenerateHandler(genSvc), jobs.Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second})
	w.Register(jobs.QueuePublish, app.PublishHandler(pubSvc), jobs.Policy{MaxAttempts: cfg.PublishRetries, BaseDelay: 10 * time.Second})

	go pollScheduler(ctx, cfg.PollInterval, repo, queue)

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("worker shut down")
}

// pollScheduler enqueues one poll job per connected location every interval.
// Missing a tick is harmless; the next one resyncs from the provider anyway.
func pollScheduler(ctx context.Context, interval time.Duration, locations domain.LocationRepository, queue jobs.Queue) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		locs, err := locations.ListConnectedLocations(ctx)
		if err != nil {
			log.Error().Err(err).Msg("list connected locations failed")
			continue
		}
		for _, loc := range locs {
			env, err := jobs.NewEnvelope(jobs.TypePollLocation, jobs.PollLocation{
				LocationID: loc.ID,
				BusinessID: loc.BusinessID,
				ActorID:    "scheduler",
			})
			if err == nil {
				err = queue.Enqueue(ctx, env)
			}
			if err != nil {
				log.Error().Err(err).Str("location_id", loc.ID).Msg("schedule poll failed")
			}
		}
		log.Info().Int("locations", len(locs)).Msg("poll cycle scheduled")
	}
}
