package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope-api/internal/config"
	"github.com/salescope/salescope-api/internal/handlers"
	"github.com/salescope/salescope-api/internal/middleware"
	"github.com/salescope/salescope-api/internal/migration"
	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/platform"
	"github.com/salescope/salescope-api/internal/reconcile"
	"github.com/salescope/salescope-api/internal/repository"
	"github.com/salescope/salescope-api/internal/routes"
	syncpkg "github.com/salescope/salescope-api/internal/sync"
	"github.com/salescope/salescope-api/internal/temporal"
	"github.com/salescope/salescope-api/internal/temporal/activities"
	"github.com/salescope/salescope-api/internal/temporal/workflows"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	logger         zerolog.Logger

	sources      repository.DataSourceRepository
	progress     repository.ProgressRepository
	entities     repository.EntityRepository
	metrics      repository.MetricsRepository
	orchestrator *syncpkg.Orchestrator
	reconciler   *reconcile.Reconciler
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	temporalLogger := temporal.NewLoggerAdapter(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		Logger: temporalLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	// Create the application instance and wire the sync engine.
	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		logger:         logger,
	}
	app.initSyncEngine(logger)

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(logger)

	// Start the scheduled reconciliation sweep.
	reconcileCron := app.startReconcileCron(logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Service-Token"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, reconcileCron, logger)

	logger.Info().Msg("Application terminated.")
}

// initSyncEngine builds the repositories, platform client factory,
// aggregator, continuation scheduler, orchestrator, and reconciler.
func (app *application) initSyncEngine(logger zerolog.Logger) {
	app.sources = repository.NewDataSourceRepository(app.db)
	app.progress = repository.NewProgressRepository(app.db)
	app.entities = repository.NewEntityRepository(app.db)
	app.metrics = repository.NewMetricsRepository(app.db)

	// Each data source carries its own platform credentials; the factory
	// shares the throttle settings across all of them.
	platformCfg := app.config.Platform
	clients := func(ds models.DataSource) syncpkg.PlatformAPI {
		baseURL := ds.BaseURL
		if baseURL == "" {
			baseURL = platformCfg.BaseURL
		}
		return platform.NewClient(platform.Config{
			BaseURL:     baseURL,
			APIKey:      ds.APIKey,
			ListDelay:   platformCfg.ListDelay,
			StatsDelay:  platformCfg.StatsDelay,
			MaxRetries:  platformCfg.MaxRetries,
			BackoffBase: platformCfg.BackoffBase,
		}, logger)
	}

	aggregator := syncpkg.NewAggregator(app.entities, app.metrics, logger)
	scheduler := temporal.NewScheduler(app.temporalClient, logger)

	app.orchestrator = syncpkg.NewOrchestrator(
		clients,
		app.sources,
		app.progress,
		app.entities,
		aggregator,
		scheduler,
		syncpkg.Config{
			TimeBudget:      app.config.Sync.TimeBudget,
			CheckpointEvery: app.config.Sync.CheckpointEvery,
			LeaseDuration:   app.config.Sync.LeaseDuration,
		},
		logger,
	)

	app.reconciler = reconcile.New(app.metrics, aggregator, reconcile.Config{
		FreshnessThreshold: app.config.Reconcile.FreshnessThreshold,
		Tolerance:          app.config.Reconcile.Tolerance,
	}, logger)
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	authHandler := handlers.NewAuthHandler(app.db, app.config, logger)
	healthHandler := handlers.NewHealthHandler(app.db)
	dataSourceHandler := handlers.NewDataSourceHandler(app.sources, logger)
	syncHandler := handlers.NewSyncHandler(app.orchestrator, app.progress, logger)
	reconcileHandler := handlers.NewReconcileHandler(app.reconciler, app.metrics, logger)

	return routes.NewRouter(authHandler, healthHandler, dataSourceHandler, syncHandler, reconcileHandler)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) worker.Worker {
	activityImpl := &activities.Activities{
		Orchestrator: app.orchestrator,
	}

	w := worker.New(app.temporalClient, temporal.TaskQueueName, worker.Options{})

	w.RegisterWorkflow(workflows.SyncContinuationWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// startReconcileCron schedules the periodic consistency sweep across all
// tenants that have data sources.
func (app *application) startReconcileCron(logger zerolog.Logger) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc(app.config.Reconcile.Schedule, func() {
		tenantIDs, err := app.sources.ListTenantIDs()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list tenants for reconciliation")
			return
		}
		for _, tenantID := range tenantIDs {
			if _, err := app.reconciler.Run(tenantID); err != nil {
				logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Scheduled reconciliation failed")
			}
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid reconcile schedule")
	}
	c.Start()
	logger.Info().Str("schedule", app.config.Reconcile.Schedule).Msg("Reconciliation sweep scheduled")
	return c
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, reconcileCron *cron.Cron, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the reconciliation sweep.
	<-reconcileCron.Stop().Done()

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}
