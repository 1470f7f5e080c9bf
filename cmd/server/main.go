package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appentity "github.com/erp/platform/internal/application/entity"
	apporg "github.com/erp/platform/internal/application/organization"
	appposting "github.com/erp/platform/internal/application/posting"
	appreport "github.com/erp/platform/internal/application/report"
	apprule "github.com/erp/platform/internal/application/rule"
	appsmartcode "github.com/erp/platform/internal/application/smartcode"
	"github.com/erp/platform/internal/domain/guardrail"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/erp/platform/internal/infrastructure/auth"
	"github.com/erp/platform/internal/infrastructure/cache"
	"github.com/erp/platform/internal/infrastructure/config"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/infrastructure/migration"
	"github.com/erp/platform/internal/infrastructure/persistence"
	"github.com/erp/platform/internal/infrastructure/scheduler"
	"github.com/erp/platform/internal/infrastructure/seed"
	"github.com/erp/platform/internal/infrastructure/telemetry"
	"github.com/erp/platform/internal/interfaces/http/handler"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/erp/platform/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const systemOrganizationName = "System"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}

	// The log bridge needs a logger of its own before the application logger exists
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	log, err := logger.New(logCfg, logProvider.ZapCore(cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting business core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter(telemetry.MeterName)
	observer, err := telemetry.NewObserver(meter)
	if err != nil {
		log.Fatal("Failed to create telemetry instruments", zap.Error(err))
	}

	// Database
	gormLog := logger.NewSQLLogger(log, logger.GormLevel(cfg.Log.Level),
		logger.WithSlowStatement(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		if _, err := telemetry.RegisterPoolMetrics(meter, sqlDB); err != nil {
			log.Warn("Failed to register connection pool metrics", zap.Error(err))
		}
	}
	if err := migrateSchema(cfg, db, log); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Repositories
	orgRepo := persistence.NewGormOrganizationRepository(db.DB)
	entityRepo := persistence.NewGormEntityRepository(db.DB)
	attributeRepo := persistence.NewGormAttributeRepository(db.DB)
	relationshipRepo := persistence.NewGormRelationshipRepository(db.DB)
	txRepo := persistence.NewGormTransactionRepository(db.DB)
	resolver := persistence.NewGormReferenceResolver(db.DB)

	settingsCache, err := cache.NewSettingsCacheFromConfig(ctx, cfg.Redis, cfg.SettingsCache, orgRepo,
		cache.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize settings cache", zap.Error(err))
	}
	defer func() {
		_ = settingsCache.Close()
	}()
	go func() {
		if err := settingsCache.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Settings invalidation listener stopped", zap.Error(err))
		}
	}()

	// Engines
	registry, err := seed.Registry(cfg.SmartCode.SeedFile, log)
	if err != nil {
		log.Fatal("Failed to seed smart code registry", zap.Error(err))
	}
	guard := guardrail.NewDefaultEngine(registry, resolver, guardrail.Config{
		BalanceTolerance: cfg.Guardrail.BalanceTolerance,
		LookupTimeout:    cfg.Guardrail.LookupTimeout,
	}, guardrail.WithObserver(observer), guardrail.WithLogger(log))

	ruleLoader := apprule.NewLoader(entityRepo, attributeRepo)
	ruleEngine := ucr.NewEngine(ruleLoader,
		ucr.WithBudget(cfg.UCR.EvaluationBudget),
		ucr.WithMaxActiveRules(cfg.UCR.MaxActiveRules),
		ucr.WithCacheTTL(cfg.UCR.CacheTTL),
		ucr.WithLanguage(language.Make(cfg.UCR.Language)),
		ucr.WithEngineObserver(observer),
		ucr.WithEngineLogger(log),
	)
	if _, err := telemetry.RegisterActiveRules(meter, ruleEngine); err != nil {
		log.Warn("Failed to register active rule gauge", zap.Error(err))
	}

	// Application services
	orgService := apporg.NewService(orgRepo, guard,
		apporg.WithSettingsInvalidator(settingsCache), apporg.WithLogger(log))
	entityService := appentity.NewService(entityRepo, attributeRepo, relationshipRepo, guard,
		appentity.WithLogger(log))
	ruleService := apprule.NewService(entityRepo, attributeRepo, ruleLoader, ruleEngine, guard,
		apprule.WithLogger(log))
	postingService := appposting.NewService(txRepo, entityRepo, settingsCache, registry, guard, ruleEngine,
		appposting.WithConfig(appposting.Config{
			DefaultThreshold:     cfg.Posting.DefaultThreshold,
			DefaultBatchInterval: cfg.Posting.DefaultBatchInterval,
		}),
		appposting.WithObserver(observer),
		appposting.WithLogger(log),
	)
	reportService := appreport.NewService(entityRepo, attributeRepo, txRepo, settingsCache,
		appreport.WithLogger(log))
	smartCodeService := appsmartcode.NewService(registry, entityRepo, guard, cfg.SmartCode.SystemOrganizationID,
		appsmartcode.WithLogger(log))

	if _, err := orgService.EnsureOrganization(ctx, cfg.SmartCode.SystemOrganizationID, systemOrganizationName, shared.SystemActor()); err != nil {
		log.Fatal("Failed to ensure system organization", zap.Error(err))
	}
	if n, err := smartCodeService.LoadPersisted(ctx); err != nil {
		log.Fatal("Failed to load persisted smart code templates", zap.Error(err))
	} else if n > 0 {
		log.Info("Persisted smart code templates loaded", zap.Int("templates", n))
	}

	// Batch posting
	batchPoster, err := scheduler.NewBatchPoster(cfg.Scheduler, postingService, log,
		scheduler.WithBatchObserver(observer))
	if err != nil {
		log.Fatal("Failed to create batch poster", zap.Error(err))
	}
	systemOpts := []handler.SystemHandlerOption{
		handler.WithHealthCheck("database", func(context.Context) error { return db.Ping() }),
	}
	if cfg.Scheduler.Enabled {
		if err := batchPoster.Start(ctx); err != nil {
			log.Fatal("Failed to start batch poster", zap.Error(err))
		}
		systemOpts = append(systemOpts, handler.WithBatchScheduler(batchPoster))
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	engine.Use(middleware.CORSWithConfig(corsCfg))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	systemHandler := handler.NewSystemHandler(version, systemOpts...)
	engine.GET("/health", systemHandler.Health)
	engine.GET("/health/live", systemHandler.Liveness)

	jwtService := auth.NewJWTService(cfg.JWT)
	r := router.NewRouter(engine, router.WithAPIMiddleware(
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
		}),
		middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			Validator: jwtService,
			Required:  cfg.JWT.Required,
		}),
		middleware.Scope(),
		middleware.SpanAttributes(),
	))
	r.Register(router.CoreGroups(router.Handlers{
		Organizations: handler.NewOrganizationHandler(orgService),
		Entities:      handler.NewEntityHandler(entityService),
		Transactions:  handler.NewTransactionHandler(postingService),
		Rules:         handler.NewRuleHandler(ruleService),
		SmartCodes:    handler.NewSmartCodeHandler(smartCodeService),
		Reports:       handler.NewReportHandler(reportService),
		System:        systemHandler,
	})...).Setup()

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		if err := batchPoster.Stop(shutdownCtx); err != nil {
			log.Error("Batch poster did not drain", zap.Error(err))
		}
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logger": logProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

// migrateSchema applies the embedded SQL migrations on postgres. SQLite has no
// migration driver wired in, so it falls back to GORM's AutoMigrate.
func migrateSchema(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	if cfg.Database.Driver == "sqlite" {
		return db.AutoMigrate()
	}
	m, err := migration.NewFromURL(cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return m.Up()
}
