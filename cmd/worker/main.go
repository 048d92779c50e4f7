// Command worker runs the document ingestion scheduler and the admin HTTP surface.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appintegration "github.com/mobilsoft/edire/internal/application/integration"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/similarity"
	"github.com/mobilsoft/edire/internal/infrastructure/config"
	"github.com/mobilsoft/edire/internal/infrastructure/lock"
	"github.com/mobilsoft/edire/internal/infrastructure/logger"
	"github.com/mobilsoft/edire/internal/infrastructure/metrics"
	"github.com/mobilsoft/edire/internal/infrastructure/migration"
	"github.com/mobilsoft/edire/internal/infrastructure/persistence"
	"github.com/mobilsoft/edire/internal/infrastructure/scheduler"
	"github.com/mobilsoft/edire/internal/infrastructure/storage"
	"github.com/mobilsoft/edire/internal/infrastructure/telemetry"
	"github.com/mobilsoft/edire/internal/interfaces/http/handler"
	"github.com/mobilsoft/edire/internal/interfaces/http/router"
	"github.com/mobilsoft/edire/migrations"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Config file (default: config.toml lookup)")
	runOnce := flag.Bool("once", false, "Run one scheduler tick and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLog, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
		Env:     cfg.App.Env,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, baseLog, *runOnce); err != nil {
		baseLog.Error("Worker stopped with error", zap.Error(err))
		_ = logger.Sync(baseLog)
		os.Exit(1)
	}
	_ = logger.Sync(baseLog)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config, baseLog *zap.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so everything below is traced and its logs exported
	logProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		return err
	}
	log := logProvider.Bridge(baseLog, zapcore.InfoLevel)
	defer shutdownWith(log, "log provider", logProvider.Shutdown)

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer shutdownWith(log, "tracer provider", tracer.Shutdown)

	profiler, err := telemetry.NewProfiler(cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("Failed to stop profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() && tracer.IsEnabled() {
		tracer.EnableSpanProfiles()
	}

	log.Info("Starting worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", telemetry.ServiceVersion),
		zap.Int("sources", len(cfg.EnabledSources())),
	)

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database, log); err != nil {
			return err
		}
	}

	db, err := persistence.NewDatabase(cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.Enabled && cfg.Telemetry.TraceDB {
		dbTracing := telemetry.NewDBTracing(telemetry.DBTracingConfig{
			Enabled:         true,
			SlowQueryThresh: cfg.Telemetry.SlowQuery,
			DBName:          cfg.Database.DBName,
		}, log)
		if err := dbTracing.Register(db.DB); err != nil {
			return fmt.Errorf("failed to register db tracing: %w", err)
		}
	}
	log.Info("Database connected")

	syncMetrics := metrics.NewSyncMetrics()
	if sqlDB, err := db.SQL(); err == nil {
		if err := syncMetrics.RegisterDB(sqlDB, cfg.Database.DBName); err != nil {
			log.Warn("Failed to register pool metrics", zap.Error(err))
		}
	}

	runLock, redisClient, err := lock.NewFactory(cfg.Redis, cfg.Scheduler.LockTTL,
		lock.WithFactoryLogger(log),
		lock.WithLockOwner(workerID()),
	).Create(ctx)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var archive storage.PayloadArchive
	if cfg.Archive.Enabled {
		s3Archive, err := storage.NewS3Archive(ctx, cfg.Archive, storage.WithLogger(log))
		if err != nil {
			return err
		}
		ensureArchive(ctx, s3Archive, log)
		archive = s3Archive
	}

	scope := persistence.NewGormTransactionScope(db.DB)
	set, err := buildSources(cfg, scope.Stores().SyncLogs(), archive, log)
	if err != nil {
		return err
	}

	ops, err := buildOperations(cfg, set, scope, runLock, syncMetrics, log)
	if err != nil {
		return err
	}

	var sched *scheduler.SyncScheduler
	if cfg.Scheduler.Enabled || once {
		sched, err = scheduler.NewSyncScheduler(scheduler.Config{
			Schedule:             cfg.Scheduler.Schedule,
			Operation:            appintegration.OperationSyncPull,
			Budget:               cfg.Scheduler.Budget,
			MaxConcurrentSources: cfg.Scheduler.MaxConcurrentSources,
			HistorySize:          scheduler.DefaultConfig().HistorySize,
		}, ops, set.plans, log, scheduler.WithObserver(syncMetrics))
		if err != nil {
			return err
		}
	}

	if once {
		for _, job := range sched.RunOnce(ctx) {
			log.Info("Run finished",
				zap.String("source_id", job.SourceID),
				zap.String("status", string(job.Status)),
				zap.Any("counters", job.Counters),
				zap.String("error", job.Error),
			)
		}
		return nil
	}

	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	var server *http.Server
	serverErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		server = newHTTPServer(cfg, ops, set, sched, db, redisClient, syncMetrics, log)
		go func() {
			log.Info("Admin server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down worker")
	case err := <-serverErr:
		log.Error("Admin server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Admin server forced to shutdown", zap.Error(err))
		}
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	log.Info("Worker exited")
	return nil
}

func buildOperations(
	cfg *config.Config,
	set *sourceSet,
	scope integration.TransactionScope,
	runLock appintegration.RunLock,
	syncMetrics appintegration.Metrics,
	log *zap.Logger,
) (*appintegration.Operations, error) {
	thresholds := similarity.Thresholds{
		NameStrict:    cfg.Similarity.NameStrict,
		NameSecondary: cfg.Similarity.NameSecondary,
		Description:   cfg.Similarity.Description,
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	ownPartners, err := parseUUIDs(cfg.Reconcile.OwnPartnerIDs)
	if err != nil {
		return nil, fmt.Errorf("reconcile.own_partner_ids: %w", err)
	}
	rounding, err := decimal.NewFromString(cfg.Reconcile.CurrencyRounding)
	if err != nil {
		return nil, fmt.Errorf("reconcile.currency_rounding: %w", err)
	}

	primary, err := parseOptionalUUID(cfg.Routing.PrimaryTenantID)
	if err != nil {
		return nil, fmt.Errorf("routing.primary_tenant_id: %w", err)
	}
	secondary, err := parseOptionalUUID(cfg.Routing.SecondaryTenantID)
	if err != nil {
		return nil, fmt.Errorf("routing.secondary_tenant_id: %w", err)
	}
	routing, err := appintegration.NewRoutingPolicy(appintegration.RoutingConfig{
		Enabled:                  cfg.Routing.Enabled,
		PrimaryTenantID:          primary,
		SecondaryTenantID:        secondary,
		NoTaxIDToSecondary:       cfg.Routing.NoTaxIDToSecondary,
		ExemptToSecondary:        cfg.Routing.ExemptToSecondary,
		NeverInvoicedToSecondary: cfg.Routing.NeverInvoicedToSecondary,
		NonInvoiceRule:           integration.NonInvoiceRule(cfg.Routing.NonInvoiceRule),
	})
	if err != nil {
		return nil, err
	}

	guard := appintegration.NewProtectedFieldGuard(ownPartners, log, syncMetrics)
	products := appintegration.NewProductResolver(thresholds, log, syncMetrics)
	reconciler := appintegration.NewLedgerReconciler(appintegration.ReconcilerConfig{
		LegacyCutoffYear:  cfg.Reconcile.LegacyCutoffYear,
		NumberWindowDays:  cfg.Reconcile.NumberWindowDays,
		AmountWindowDays:  cfg.Reconcile.AmountWindowDays,
		CurrencyRounding:  rounding,
		ExpandVATVariants: cfg.Reconcile.ExpandVATVariants,
	}, products, log, syncMetrics)

	coordinator := appintegration.NewCoordinator(appintegration.CoordinatorDeps{
		Registry:   set.registry,
		Scope:      scope,
		Partners:   appintegration.NewPartnerResolver(thresholds, guard, log, syncMetrics),
		Products:   products,
		Routing:    routing,
		Reconciler: reconciler,
		Lock:       runLock,
		Logger:     log,
		Metrics:    syncMetrics,
	}, appintegration.CoordinatorConfig{
		Budget: cfg.Scheduler.Budget,
		Retry: appintegration.RetryPolicy{
			Attempts:  cfg.Scheduler.RetryAttempts,
			BaseDelay: cfg.Scheduler.RetryDelay,
			MaxDelay:  cfg.Scheduler.RetryMaxDelay,
		},
	})
	return appintegration.NewOperations(coordinator, set.plans), nil
}

func newHTTPServer(
	cfg *config.Config,
	ops *appintegration.Operations,
	set *sourceSet,
	sched *scheduler.SyncScheduler,
	db *persistence.Database,
	redisClient *redis.Client,
	syncMetrics *metrics.SyncMetrics,
	log *zap.Logger,
) *http.Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]handler.HealthCheck{
		"database": db.Check,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	// A nil *SyncScheduler must not reach the handler as a non-nil interface
	var history handler.RunHistory
	if sched != nil {
		history = sched
	}

	engine := router.NewRouter(router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		Token:          cfg.HTTP.Token,
	}, log).
		Public(handler.NewSystemHandler(telemetry.ServiceVersion, checks, syncMetrics.Handler())).
		Protected(handler.NewOperationsHandler(ops, set.plans, history, cfg.HTTP.OperationTimeout)).
		Setup()

	return &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}
}

// migrateUp applies the embedded migrations over a dedicated connection;
// the migrator closes the connection it is given.
func migrateUp(cfg config.DatabaseConfig, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, log)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

func shutdownWith(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("Shutdown failed", zap.String("component", name), zap.Error(err))
	}
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8])
}
