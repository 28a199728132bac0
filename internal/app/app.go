// Package app initializes and holds the long-lived application services,
// acting as the dependency injection container for the pipeline service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/api"
	"github.com/adtechlab/newswire/internal/clock/system"
	"github.com/adtechlab/newswire/internal/config"
	"github.com/adtechlab/newswire/internal/hash/sha256"
	"github.com/adtechlab/newswire/internal/id/uuid"
	"github.com/adtechlab/newswire/internal/logging"
	"github.com/adtechlab/newswire/internal/newsapi"
	"github.com/adtechlab/newswire/internal/notify"
	"github.com/adtechlab/newswire/internal/pipeline"
	"github.com/adtechlab/newswire/internal/progress"
	progresssinks "github.com/adtechlab/newswire/internal/progress/sinks"
	memorypublisher "github.com/adtechlab/newswire/internal/publisher/memory"
	gcppublisher "github.com/adtechlab/newswire/internal/publisher/pubsub"
	queueMemory "github.com/adtechlab/newswire/internal/queue/memory"
	"github.com/adtechlab/newswire/internal/runner"
	"github.com/adtechlab/newswire/internal/scheduler"
	"github.com/adtechlab/newswire/internal/sensor"
	"github.com/adtechlab/newswire/internal/storage"
	memoryStorage "github.com/adtechlab/newswire/internal/storage/memory"
	pgstorage "github.com/adtechlab/newswire/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	apiServer *api.Server
	runner    *runner.Runner
	worker    *runner.Worker
	sched     *scheduler.Scheduler
	queue     *queueMemory.Queue
	hub       *progress.Hub
	publisher pipeline.Publisher
	pgPool    *pgxpool.Pool
}

// Build creates the application's dependencies. It fails fast: any provider
// that cannot be initialized aborts startup.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logging.InitLogger(cfg.Logging.Development)
	logger := logging.L
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies", zap.Int("port", cfg.Server.Port))

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := progresssinks.NewPrometheusSink(app.registry)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	app.hub = progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      logger.Named("progress"),
	}, promSink, progresssinks.NewLogSink(logger.Named("progress")))

	runs, snapshots, err := app.setupDatabase(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		return nil, err
	}
	notifier, err := app.setupNotifier()
	if err != nil {
		return nil, err
	}

	source, err := newsapi.NewClient(newsapi.Config{
		BaseURL:        cfg.NewsAPI.BaseURL,
		APIKey:         cfg.NewsAPI.APIKey,
		RequestTimeout: cfg.NewsAPI.RequestTimeout,
		RateRPS:        cfg.NewsAPI.RateRPS,
		RateBurst:      cfg.NewsAPI.RateBurst,
	}, logger.Named("newsapi"))
	if err != nil {
		return nil, fmt.Errorf("news client init failed: %w", err)
	}

	clock := system.New()
	fetcher := pipeline.NewFetcher(source, clock, sha256.New(), pipeline.FetchConfig{
		Categories: cfg.Pipeline.Categories,
		Lang:       cfg.Pipeline.Lang,
		MaxItems:   cfg.Pipeline.MaxItems,
		Lookback:   cfg.Pipeline.Lookback,
	}, logger.Named("fetch"))

	run := runner.New(runner.Deps{
		Fetcher:   fetcher,
		Runs:      runs,
		Snapshots: snapshots,
		Blobs:     blobs,
		Publisher: app.publisher,
		Emitter:   app.hub,
		Clock:     clock,
		IDs:       uuid.NewGenerator(),
		Logger:    logger.Named("runner"),
	})

	app.runner = run
	app.queue = queueMemory.NewQueue(cfg.Pipeline.TriggerQueue)
	app.worker = runner.NewWorker(run, app.queue, logger.Named("worker"))

	failureSensor := sensor.New(runs, notifier, clock, cfg.Schedule.SensorWindow, logger.Named("sensor"))
	app.sched = scheduler.New(scheduler.Config{
		FetchCron:   cfg.Schedule.FetchCron,
		CatchUpCron: cfg.Schedule.ProcessCron,
		SensorEvery: cfg.Schedule.SensorEvery,
	}, app.queue, failureSensor.Tick, clock, logger.Named("scheduler"))

	app.apiServer = api.NewServer(runs, snapshots, app.queue, clock, *cfg, app.registry)
	return app, nil
}

func (a *App) setupDatabase(ctx context.Context) (pipeline.RunStore, pipeline.SnapshotStore, error) {
	switch a.cfg.Database.Provider {
	case "postgres":
		a.logger.Info("using postgres store")
		pool, err := pgstorage.NewPool(ctx, pgstorage.PoolConfig{
			DSN:             a.cfg.Database.DSN,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool init failed: %w", err)
		}
		a.pgPool = pool
		runs, err := pgstorage.NewRunStore(pool)
		if err != nil {
			return nil, nil, fmt.Errorf("run store init failed: %w", err)
		}
		snapshots, err := pgstorage.NewSnapshotStore(pool)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot store init failed: %w", err)
		}
		return runs, snapshots, nil
	case "memory":
		a.logger.Info("using in-memory store; runs will not survive restarts")
		return memoryStorage.NewRunStore(), memoryStorage.NewSnapshotStore(), nil
	default:
		return nil, nil, fmt.Errorf("unknown database provider: %s", a.cfg.Database.Provider)
	}
}

func (a *App) setupArchive(ctx context.Context) (pipeline.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case "gcs":
		a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
		provider, err := storage.NewGCSProvider(ctx, a.cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		return provider, nil
	case "memory":
		return memoryStorage.NewBlobStore(), nil
	case "noop":
		a.logger.Info("raw payload archival disabled")
		return &storage.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.PubSub.Provider {
	case "pubsub":
		a.logger.Info("publishing stage events to Pub/Sub",
			zap.String("topic", a.cfg.PubSub.TopicName))
		pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = pub
		return nil
	case "noop":
		a.publisher = memorypublisher.New()
		return nil
	default:
		return fmt.Errorf("unknown pubsub provider: %s", a.cfg.PubSub.Provider)
	}
}

func (a *App) setupNotifier() (pipeline.Notifier, error) {
	switch a.cfg.Alerting.Provider {
	case "webhook":
		return notify.NewWebhookNotifier(a.cfg.Alerting.WebhookURL, a.cfg.Alerting.Timeout, a.logger.Named("notify"))
	case "log":
		return notify.NewLogNotifier(a.logger.Named("notify")), nil
	case "noop":
		return notify.NoOpNotifier{}, nil
	default:
		return nil, fmt.Errorf("unknown alerting provider: %s", a.cfg.Alerting.Provider)
	}
}

// Run starts the worker, scheduler, and HTTP server, blocking until the
// context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("worker started")
		if err := a.worker.Run(ctx); err != nil {
			a.logger.Error("worker stopped with error", zap.Error(err))
			stop()
		}
	}()

	if err := a.sched.Start(ctx); err != nil {
		stop()
		wg.Wait()
		return fmt.Errorf("scheduler start failed: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.sched.Stop()
	wg.Wait()
	return a.Close(shutdownCtx)
}

// RunOnce executes the full pipeline, or a single stage when stage is
// non-empty, and returns once the work commits. The serve loop is not
// involved; this is the one-shot CLI path.
func (a *App) RunOnce(ctx context.Context, stage pipeline.StageName) error {
	if stage == "" {
		return a.runner.RunPipeline(ctx)
	}
	_, err := a.runner.RunStage(ctx, stage)
	return err
}

// Close gracefully shuts down the remaining services.
func (a *App) Close(ctx context.Context) error {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr sync fails on some platforms.
		_ = err
	}
	a.logger.Info("shutdown complete")
	return nil
}
