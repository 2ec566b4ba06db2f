package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/sitegen-api/internal/config"
	"github.com/phrazzld/sitegen-api/internal/events"
	"github.com/phrazzld/sitegen-api/internal/generation"
	"github.com/phrazzld/sitegen-api/internal/platform/gemini"
	"github.com/phrazzld/sitegen-api/internal/platform/metrics"
	"github.com/phrazzld/sitegen-api/internal/platform/objectstore"
	"github.com/phrazzld/sitegen-api/internal/platform/postgres"
	"github.com/phrazzld/sitegen-api/internal/platform/redisqueue"
	"github.com/phrazzld/sitegen-api/internal/service"
	"github.com/phrazzld/sitegen-api/internal/service/auth"
	"github.com/phrazzld/sitegen-api/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// application holds the shared process dependencies and releases them on
// shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db     *sql.DB
	redis  *redis.Client
	queue  *redisqueue.Queue
	stores task.ContentStores

	registry *prometheus.Registry
	metrics  *metrics.Recorder
	emitter  *events.InMemoryEventEmitter

	// set by startWorkers
	runner *task.Runner
}

// newApplication connects to the content store and the queue backend and
// sets up metrics and lifecycle events. Workers are started separately.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	var err error
	app.db, err = setupAppDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	app.redis, err = redisqueue.NewClient(ctx, cfg.Redis)
	if err != nil {
		app.cleanup(ctx)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("redis connection established", "address", cfg.Redis.Address)

	app.queue, err = redisqueue.New(app.redis, cfg.Queue, logger)
	if err != nil {
		app.cleanup(ctx)
		return nil, fmt.Errorf("failed to create job queue: %w", err)
	}

	app.stores = task.ContentStores{
		Domains:  postgres.NewPostgresDomainStore(app.db, logger),
		Websites: postgres.NewPostgresWebsiteStore(app.db, logger),
		Pages:    postgres.NewPostgresPageStore(app.db, logger),
		Sections: postgres.NewPostgresSectionStore(app.db, logger),
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.NewRecorder(app.registry, logger)

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(events.LogHandler{Logger: logger.With("component", "job_events")})
	app.emitter.RegisterHandler(app.metrics)

	return app, nil
}

// newJobService builds the control surface. Accepted jobs are counted and,
// when workers run in this process, wake an idle worker.
func (app *application) newJobService() (service.JobService, error) {
	hooks := []service.EnqueueHook{
		func(job *task.Job) { app.metrics.RecordEnqueued(job.Type) },
	}
	if app.runner != nil {
		runner := app.runner
		hooks = append(hooks, func(*task.Job) { runner.Notify() })
	}

	q := app.config.Queue
	return service.NewJobService(app.queue, app.stores.Domains, app.stores.Websites, service.JobOptions{
		MaxAttempts:      q.MaxAttempts,
		BackoffBase:      q.BackoffBase,
		WebsiteTimeout:   q.WebsiteTimeout,
		MoreBlogsTimeout: q.MoreBlogsTimeout,
	}, app.logger, hooks...)
}

func (app *application) newJWTService() (auth.JWTService, error) {
	jwtService, err := auth.NewJWTService(app.config.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	return jwtService, nil
}

// startWorkers wires the remote generator, the object store relocator and
// the generation worker into a runner and starts it.
func (app *application) startWorkers(ctx context.Context) error {
	generator, err := gemini.NewGenerator(ctx, app.logger.With("component", "llm_generator"), app.config.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize content generator: %w", err)
	}

	relocator, err := objectstore.NewRelocator(app.config.Storage, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	if err := relocator.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to prepare object store bucket: %w", err)
	}

	sequencer, err := generation.NewSequencer(generator, relocator, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create generation sequencer: %w", err)
	}

	worker, err := task.NewGenerationWorker(app.stores, sequencer, app.config.LLM.TitleCount, app.logger,
		task.WithJobLookup(app.queue))
	if err != nil {
		return fmt.Errorf("failed to create generation worker: %w", err)
	}

	q := app.config.Queue
	app.runner, err = task.NewRunner(app.queue, worker, task.RunnerConfig{
		WorkerCount:          q.WorkerCount,
		PollInterval:         q.PollInterval,
		StalledCheckInterval: q.StalledCheckInterval,
	}, app.logger, app.emitter)
	if err != nil {
		return fmt.Errorf("failed to create job runner: %w", err)
	}

	app.runner.Start()
	go app.metrics.WatchQueue(ctx, app.queue, 0)
	return nil
}

// cleanup stops the workers and closes connections. Running jobs get until
// ctx expires to finish.
func (app *application) cleanup(ctx context.Context) {
	if app.runner != nil {
		if err := app.runner.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Warn("job runner did not stop cleanly", "error", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
