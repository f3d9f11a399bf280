package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/auth"
	"github.com/hrpay/backend/internal/infrastructure/authz"
	"github.com/hrpay/backend/internal/infrastructure/cache"
	"github.com/hrpay/backend/internal/infrastructure/config"
	"github.com/hrpay/backend/internal/infrastructure/disbursement"
	"github.com/hrpay/backend/internal/infrastructure/event"
	"github.com/hrpay/backend/internal/infrastructure/logger"
	"github.com/hrpay/backend/internal/infrastructure/payslip"
	"github.com/hrpay/backend/internal/infrastructure/persistence"
	"github.com/hrpay/backend/internal/infrastructure/storage"
	"github.com/hrpay/backend/internal/infrastructure/taxengine"
	"github.com/hrpay/backend/internal/infrastructure/telemetry"
	"github.com/hrpay/backend/internal/interfaces/http/handler"
	"github.com/hrpay/backend/internal/interfaces/http/middleware"
	"github.com/hrpay/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	eventWorkers   = 4
	eventQueueSize = 256
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, cfg.App.Name)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting payroll backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logsProvider.Tee(log, logger.ParseLevel(cfg.Log.Level))

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:              cfg.Telemetry.ProfilingEnabled,
		ServerAddress:        cfg.Telemetry.ProfilerAddress,
		ApplicationName:      cfg.Telemetry.ServiceName,
		MutexProfileFraction: cfg.Telemetry.ProfilerMutexFraction,
		BlockProfileRate:     cfg.Telemetry.ProfilerBlockRate,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	meter := meterProvider.Meter("github.com/hrpay/backend")
	payrollMetrics, err := telemetry.NewPayrollMetrics(meter)
	if err != nil {
		log.Fatal("Failed to register payroll metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.SlowQuery = cfg.Telemetry.DBSlowQueryThresh
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithPlugin(telemetry.NewDBTracingPlugin(dbTracing, log)),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Redis backs idempotency keys and token revocation when enabled
	var redisClient *redis.Client
	var blacklist auth.TokenBlacklist = auth.NewInMemoryTokenBlacklist()
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		blacklist = auth.NewRedisTokenBlacklist(redisClient)
	}
	idempotency, err := newIdempotencyStore(ctx, cfg, redisClient, log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}

	// Collaborators
	taxCalculator, err := taxengine.New(cfg.TaxEngine, log)
	if err != nil {
		log.Fatal("Failed to initialize tax engine client", zap.Error(err))
	}
	gateway, err := disbursement.New(cfg.Disbursement, log)
	if err != nil {
		log.Fatal("Failed to initialize disbursement client", zap.Error(err))
	}
	objects, err := newObjectStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	// Application services
	repos := persistence.NewPayrollRepositories(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	eventBus := event.NewInMemoryEventBus(log, event.WithWorkers(eventWorkers, eventQueueSize))

	channels := apppayroll.NewPaymentChannelBinder(txScope, repos.Employees, log)
	channels.SetEventPublisher(eventBus)

	reconciler := apppayroll.NewDeductionReconciler(txScope, repos, taxCalculator, log)
	reconciler.SetTaxConcurrency(cfg.TaxEngine.Concurrency)
	reconciler.SetEventPublisher(eventBus)
	reconciler.SetMetrics(payrollMetrics)

	workflow := apppayroll.NewPayrollWorkflowContext(repos.Periods, repos.Records)
	workflow.SetTTL(cfg.Payroll.WorkflowCacheTTL)

	periods := apppayroll.NewPeriodStateMachine(txScope, repos, reconciler, channels, gateway, workflow, log)
	periods.SetEventPublisher(eventBus)
	periods.SetMetrics(payrollMetrics)
	periods.SetIdempotencyStore(idempotency, cfg.Idempotency.TTL)

	documents := apppayroll.NewDocumentService(repos, objects, log)
	documents.SetConfig(apppayroll.DocumentServiceConfig{
		UploadURLExpiry:   cfg.Storage.PresignExpiration,
		DownloadURLExpiry: cfg.Storage.DownloadExpiry,
	})

	var payslips *apppayroll.PayslipPublisher
	if cfg.Payroll.PayslipsEnabled {
		payslips = apppayroll.NewPayslipPublisher(repos, documents, payslip.NewRenderer(cfg.Payroll.PayslipCompany), log)
		eventBus.Subscribe(
			event.NewIdempotentHandler(payslips, idempotency, log,
				event.WithKeyFunc(event.ByAggregate),
				event.WithTTL(cfg.Idempotency.TTL),
			),
			payslips.EventTypes()...,
		)
	}

	employees := apppayroll.NewEmployeeService(txScope, repos.Employees, log)

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Authorization
	mode, err := authz.ParseMode(cfg.Authz.Mode)
	if err != nil {
		log.Fatal("Invalid authz mode", zap.Error(err))
	}
	authorizer, err := authz.NewAuthorizer(cfg.Authz.ModelPath, cfg.Authz.PolicyPath, mode, log)
	if err != nil {
		log.Fatal("Failed to load authorization policy", zap.Error(err))
	}
	guard := func(obj, act string) gin.HandlerFunc {
		return middleware.RequirePermission(authorizer, obj, act, log)
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to configure request validation", zap.Error(err))
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		logger.GinMiddleware(log),
		middleware.HTTPMetrics(meter, log),
		middleware.Secure(0),
		middleware.CORSWithConfig(cors),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Timeout(cfg.HTTP.RequestTimeout),
	)

	jwtConfig := middleware.DefaultJWTConfig(auth.NewJWTService(cfg.JWT))
	jwtConfig.TokenBlacklist = blacklist
	jwtConfig.Logger = log

	payrollHandler := handler.NewPayrollHandler(periods, documents, payslips)
	payrollHandler.SetDefaultCurrency(cfg.Payroll.DefaultCurrency)
	handlers := router.Handlers{
		Payroll:    payrollHandler,
		Employees:  handler.NewEmployeeHandler(employees, channels),
		Documents:  handler.NewDocumentHandler(documents),
		Deductions: handler.NewDeductionHandler(reconciler),
		Auth:       handler.NewAuthHandler(blacklist, cfg.JWT.AccessTokenExpiration, log),
	}

	router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithAPIMiddleware(
			middleware.JWTAuthMiddleware(jwtConfig),
			middleware.BusinessContext(),
			middleware.TracingAttributes(),
		),
	).Register(router.PayrollAPI(handlers, guard)...).Setup()

	checks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	router.SystemRoutes(engine, handler.NewSystemHandler(cfg.App.Name, version, checks))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// drain queued events after the last request has published
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	if closer, ok := idempotency.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing traces", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	// last, so the lines above are exported too
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing logs", zap.Error(err))
	}
}

// newIdempotencyStore shares the Redis connection when there is one
func newIdempotencyStore(ctx context.Context, cfg *config.Config, client *redis.Client, log *zap.Logger) (shared.IdempotencyStore, error) {
	if client != nil {
		return cache.NewRedisIdempotencyStoreWithClient(client, cfg.Idempotency.KeyPrefix), nil
	}
	return cache.NewIdempotencyStore(ctx, cfg.Redis, cfg.Idempotency, log)
}

// newObjectStorage returns S3 when storage is enabled, else the in-memory stub
func newObjectStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (apppayroll.ObjectStorageService, error) {
	if !cfg.Storage.Enabled {
		log.Warn("Object storage disabled, documents are kept in memory")
		return storage.NewStubObjectStorage(), nil
	}
	s3, err := storage.NewS3ObjectStorage(&cfg.Storage,
		storage.WithLogger(log),
		storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
	)
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}
