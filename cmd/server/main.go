package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appintegration "github.com/adsync/backend/internal/application/integration"
	"github.com/adsync/backend/internal/infrastructure/auth"
	"github.com/adsync/backend/internal/infrastructure/cache"
	"github.com/adsync/backend/internal/infrastructure/config"
	"github.com/adsync/backend/internal/infrastructure/fetch"
	"github.com/adsync/backend/internal/infrastructure/logger"
	"github.com/adsync/backend/internal/infrastructure/migration"
	"github.com/adsync/backend/internal/infrastructure/persistence"
	"github.com/adsync/backend/internal/infrastructure/scheduler"
	"github.com/adsync/backend/internal/infrastructure/storage"
	"github.com/adsync/backend/internal/infrastructure/telemetry"
	"github.com/adsync/backend/internal/interfaces/http/handler"
	"github.com/adsync/backend/internal/interfaces/http/middleware"
	"github.com/adsync/backend/internal/interfaces/http/router"
	"github.com/adsync/backend/migrations"
)

const shutdownGrace = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(baseLog)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, baseLog); err != nil {
		baseLog.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, baseLog *zap.Logger) error {
	// ---------------------------------------------------------------------------
	// Telemetry
	// ---------------------------------------------------------------------------

	tracerProvider, err := telemetry.NewTracerProvider(ctx, tracerConfig(cfg.Telemetry), baseLog)
	if err != nil {
		return fmt.Errorf("tracer provider: %w", err)
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, meterConfig(cfg.Telemetry), baseLog)
	if err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, logsConfig(cfg.Telemetry), baseLog)
	if err != nil {
		return fmt.Errorf("logger provider: %w", err)
	}
	log := loggerProvider.Bridge(baseLog, zapcore.InfoLevel)

	profiler, err := telemetry.NewProfiler(profilerConfig(cfg.Profiling), log)
	if err != nil {
		return fmt.Errorf("profiler: %w", err)
	}
	if cfg.Profiling.Enabled {
		tracerProvider.EnableSpanProfiles()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := profiler.Stop(); err != nil {
			log.Warn("Profiler stop failed", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			baseLog.Warn("Tracer shutdown failed", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			baseLog.Warn("Meter shutdown failed", zap.Error(err))
		}
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			baseLog.Warn("Log exporter shutdown failed", zap.Error(err))
		}
	}()

	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)

	log.Info("Starting adsync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("worker", cfg.Worker.Enabled),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	// ---------------------------------------------------------------------------
	// Storage
	// ---------------------------------------------------------------------------

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := applyMigrations(cfg.Database.DSN(), log); err != nil {
			return err
		}
	}

	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log).Register(db.DB); err != nil {
		return fmt.Errorf("database tracing: %w", err)
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(ctx, db.DB, meter, telemetry.DBMetricsConfig{
		Enabled:            meterProvider.IsEnabled(),
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		return fmt.Errorf("database metrics: %w", err)
	}
	if dbMetrics != nil {
		defer dbMetrics.Stop()
	}

	locker, err := cache.NewPartitionLockerFactory(cfg.Redis, cache.WithLogger(log)).CreateLocker()
	if err != nil {
		return err
	}
	defer func() {
		if err := locker.Close(); err != nil {
			log.Warn("Error closing partition locker", zap.Error(err))
		}
	}()

	profileRepo := persistence.NewGormSyncProfileRepository(db.DB)
	sessionRepo := persistence.NewGormSyncSessionRepository(db.DB)
	connectionRepo := persistence.NewGormConnectionRepository(db.DB)
	insightRepo := persistence.NewGormInsightRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	jobStore := persistence.NewGormJobStore(db.DB, persistence.WithJobStoreLogger(log.Named("job-store")))

	// ---------------------------------------------------------------------------
	// Sync core
	// ---------------------------------------------------------------------------

	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:    meter,
		Logger:   log,
		Sessions: sessionRepo,
		Jobs:     jobStore,
	})
	if err != nil {
		return fmt.Errorf("sync metrics: %w", err)
	}
	syncMetrics.Start(ctx)
	defer syncMetrics.Stop()

	ads, err := adsAdapter(cfg.Ads)
	if err != nil {
		return fmt.Errorf("ads adapter: %w", err)
	}
	storefront, err := storefrontAdapter(cfg.Storefront)
	if err != nil {
		return fmt.Errorf("storefront adapter: %w", err)
	}
	clients := fetch.NewRegistry(
		cfg.Fetch.ClientCacheSize,
		cfg.Fetch.ClientCacheTTL,
		appintegration.NewClientFactory(fetchConfig(cfg.Fetch), ads, storefront,
			fetch.WithLogger(log),
			fetch.WithRecorder(syncMetrics),
		),
		prometheus.DefaultRegisterer,
	)

	schedMetrics := scheduler.NewMetrics(prometheus.DefaultRegisterer)
	queue := scheduler.NewJobQueue(jobStore,
		scheduler.WithQueueConfig(scheduler.JobQueueConfig{LockTTL: cfg.Worker.ClaimLockTTL}),
		scheduler.WithPartitionLocker(locker),
		scheduler.WithQueueMetrics(schedMetrics),
		scheduler.WithQueueLogger(log),
	)
	syncScheduler := scheduler.NewSyncScheduler(schedulerConfig(cfg.Scheduler, cfg.Worker),
		profileRepo, sessionRepo, connectionRepo, queue,
		scheduler.WithSchedulerLogger(log),
		scheduler.WithSchedulerMetrics(schedMetrics),
	)

	syncOpts := []appintegration.SyncServiceOption{
		appintegration.WithNextScheduler(syncScheduler),
		appintegration.WithSyncRecorder(syncMetrics),
		appintegration.WithSyncLogger(log),
	}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3PayloadArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return fmt.Errorf("payload archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Payload archive bucket unavailable, archiving will fail until it exists", zap.Error(err))
		}
		syncOpts = append(syncOpts, appintegration.WithPayloadArchive(archive))
	}
	syncService := appintegration.NewSyncService(
		syncServiceConfig(cfg.Scheduler, cfg.Worker),
		appintegration.SyncRepositories{
			Connections: connectionRepo,
			Tokens:      connectionRepo,
			Sessions:    sessionRepo,
			Insights:    insightRepo,
			Orders:      orderRepo,
		},
		clients, ads, storefront,
		syncOpts...,
	)
	maintenance := appintegration.NewMaintenanceService(sessionRepo, jobStore, log,
		appintegration.MaintenanceServiceConfig{Retention: cfg.Worker.PurgeRetention})

	pool := scheduler.NewWorkerPool(workerPoolConfig(cfg.Worker), queue, syncService,
		scheduler.WithMaintenanceHandler(maintenance),
		scheduler.WithPoolLogger(log),
	)
	if cfg.Worker.Enabled {
		if err := pool.Start(ctx); err != nil {
			return fmt.Errorf("worker pool: %w", err)
		}
	}

	trigger := scheduler.NewHourlyTrigger(scheduler.HourlyTriggerConfig{
		Interval:        cfg.Scheduler.HourlyInterval,
		PurgeInterval:   24 * time.Hour,
		StaleClaimAfter: cfg.Worker.StaleClaimAfter,
		RunOnStart:      true,
	}, syncScheduler, queue,
		scheduler.WithTriggerLocker(locker),
		scheduler.WithTriggerLogger(log),
	)
	if cfg.Scheduler.Enabled {
		if err := trigger.Start(ctx); err != nil {
			return fmt.Errorf("hourly trigger: %w", err)
		}
	}

	// ---------------------------------------------------------------------------
	// HTTP
	// ---------------------------------------------------------------------------

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Secure(),
		logger.GinMiddleware(log),
		middleware.Tracing(cfg.Telemetry.ServiceName, tracerProvider.IsEnabled()),
		middleware.HTTPMetrics(meter),
		middleware.Profiling(cfg.Profiling.Enabled, "/health", "/metrics"),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Timeout(cfg.HTTP.RequestTimeout),
	)

	healthOpts := []handler.SystemHandlerOption{handler.WithHealthCheck("database", db.Ping)}
	if rl, ok := locker.(*cache.RedisPartitionLocker); ok {
		healthOpts = append(healthOpts, handler.WithHealthCheck("redis", func(ctx context.Context) error {
			return rl.Client().Ping(ctx).Err()
		}))
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion, healthOpts...)
	engine.GET("/health", systemHandler.Health)
	engine.GET("/metrics", systemHandler.Metrics())
	engine.NoRoute(middleware.NoRoute())

	if cfg.JWT.Secret == "" {
		log.Warn("jwt.secret is empty, every admin API request will be rejected")
	}
	jwtService := auth.NewJWTService(cfg.JWT)
	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)

	router.NewRouter(engine, router.WithMiddleware(
		middleware.JWTAuthMiddleware(jwtService),
		middleware.RateLimit(limiter),
	)).
		Register(router.SyncRoutes(handler.NewSyncHandler(syncScheduler, sessionRepo, pool))).
		Register(router.SystemRoutes(systemHandler)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	// ---------------------------------------------------------------------------
	// Shutdown: stop intake first, then drain workers
	// ---------------------------------------------------------------------------

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := trigger.Stop(shutdownCtx); err != nil {
		log.Warn("Hourly trigger stop failed", zap.Error(err))
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Warn("Worker pool stop failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	return nil
}

// applyMigrations runs the embedded schema over a dedicated connection,
// since closing the migrator closes the handle it was given.
func applyMigrations(dsn string, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("migrations: open database: %w", err)
	}
	m, err := migration.New(sqlDB, log.Named("migrate"), migration.WithFS(migrations.FS))
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Migrator close failed", zap.Error(err))
		}
	}()
	return m.Up()
}
