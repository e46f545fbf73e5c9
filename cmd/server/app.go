package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/annotator-api/internal/analysis"
	"github.com/phrazzld/annotator-api/internal/config"
	"github.com/phrazzld/annotator-api/internal/events"
	"github.com/phrazzld/annotator-api/internal/metrics"
	"github.com/phrazzld/annotator-api/internal/objectstore"
	"github.com/phrazzld/annotator-api/internal/platform/gemini"
	"github.com/phrazzld/annotator-api/internal/platform/memory"
	"github.com/phrazzld/annotator-api/internal/platform/postgres"
	"github.com/phrazzld/annotator-api/internal/service"
	"github.com/phrazzld/annotator-api/internal/store"
	"github.com/phrazzld/annotator-api/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	batchStore store.BatchStore
	itemStore  store.ItemStore

	// Segment audio. fetcher may be a cache in front of segments.
	segments objectstore.Store
	fetcher  objectstore.Fetcher
	gcs      *objectstore.GCSStore

	analyzer analysis.Analyzer
	registry *prometheus.Registry

	eventEmitter *events.InMemoryEventEmitter
	dispatcher   *task.Dispatcher
	batchService service.BatchService
	monitor      *service.RecoveryMonitor
}

// newApplication creates a new application instance with all dependencies
// initialized. Nothing is dispatched until start is called.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	if err := app.setupStores(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupSegments(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupAnalyzer(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dispatchMetrics, err := metrics.NewDispatchMetrics(app.registry)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)

	dispatcherConfig := task.DispatcherConfig{
		CallTimeout: cfg.LLM.Timeout(),
		Emitter:     app.eventEmitter,
		Metrics:     dispatchMetrics,
	}
	if cfg.Storage.ValidateWAV {
		dispatcherConfig.ValidateAudio = objectstore.ValidateWAV
	}
	app.dispatcher = task.NewDispatcher(
		task.NewGate(cfg.Task.Concurrency),
		app.itemStore,
		app.fetcher,
		app.analyzer,
		dispatcherConfig,
		logger,
	)

	app.batchService, err = service.NewBatchService(app.batchStore, app.itemStore, app.dispatcher, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create batch service: %w", err)
	}
	// Terminal item writes feed back into auto-completion.
	app.eventEmitter.RegisterHandler(app.batchService)

	if age := cfg.Task.StuckItemAge(); age > 0 {
		app.monitor = service.NewRecoveryMonitor(app.batchService, age, cfg.Task.StuckItemCheckInterval(), logger)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

func (app *application) setupStores(ctx context.Context) error {
	switch app.config.Database.Driver {
	case config.DriverMemory:
		items := memory.NewItemStore()
		app.itemStore = items
		app.batchStore = memory.NewBatchStore(items)
		app.logger.Warn("Using in-memory batch store; batches are lost on restart")
		return nil

	case config.DriverPostgres:
		db, err := openDatabase(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		app.batchStore = postgres.NewBatchStore(db, app.logger)
		app.itemStore = postgres.NewItemStore(db, app.logger)
		return nil
	}
	return fmt.Errorf("unsupported database driver %q", app.config.Database.Driver)
}

func (app *application) setupSegments(ctx context.Context) error {
	cfg := app.config.Storage
	switch cfg.Backend {
	case config.BackendLocal:
		local, err := objectstore.NewLocalStore(cfg.LocalDir)
		if err != nil {
			return fmt.Errorf("failed to open local segment store: %w", err)
		}
		app.segments = local

	case config.BackendGCS:
		gcs, err := objectstore.NewGCSStore(ctx, cfg.Bucket, cfg.Prefix, app.logger)
		if err != nil {
			return fmt.Errorf("failed to open GCS segment store: %w", err)
		}
		app.gcs = gcs
		app.segments = gcs

	default:
		return fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	app.fetcher = app.segments
	if ttl := cfg.CacheTTL(); ttl > 0 {
		app.fetcher = objectstore.NewCachedFetcher(app.segments, ttl)
	}
	app.logger.Info("Segment store initialized",
		slog.String("backend", cfg.Backend),
		slog.Duration("cache_ttl", cfg.CacheTTL()))
	return nil
}

func (app *application) setupAnalyzer(ctx context.Context) error {
	if app.config.LLM.Provider == config.ProviderNone {
		app.analyzer = analysis.Disabled
		app.logger.Warn("No analysis provider configured; dispatched items will fail")
		return nil
	}

	analyzer, err := gemini.NewAnalyzer(ctx, app.logger, app.config.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize analyzer: %w", err)
	}
	app.analyzer = analyzer
	app.logger.Info("LLM analyzer initialized successfully",
		slog.String("model", app.config.LLM.ModelName))
	return nil
}

// start recovers interrupted batches and launches the stuck-item monitor.
func (app *application) start(ctx context.Context) error {
	if app.config.Task.RecoverOnStart {
		n, err := app.batchService.RecoverAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to recover batches: %w", err)
		}
		app.logger.Info("Startup recovery finished", slog.Int("resumed", n))
	}
	if app.monitor != nil {
		app.monitor.Start(ctx)
	}
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if err := app.start(ctx); err != nil {
		app.cleanup()
		return err
	}

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. Items still
// running when the shutdown timeout expires stay processing and are picked up
// by recovery on the next start.
func (app *application) cleanup() {
	if app.monitor != nil {
		app.monitor.Stop()
	}

	if app.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout())
		if err := app.dispatcher.Stop(ctx); err != nil {
			app.logger.Warn("Dispatcher did not drain before timeout", slog.Any("error", err))
		}
		cancel()
	}

	if app.gcs != nil {
		if err := app.gcs.Close(); err != nil {
			app.logger.Error("Error closing storage client", slog.Any("error", err))
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", slog.Any("error", err))
		}
	}

	app.logger.Info("Application shutdown completed")
}
