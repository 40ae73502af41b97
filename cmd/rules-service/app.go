package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	_ "github.com/lib/pq" // PostgreSQL driver

	"dealguard/internal/broker"
	"dealguard/internal/config"
	"dealguard/internal/constants"
	"dealguard/internal/evaluation"
	"dealguard/internal/logger"
	"dealguard/internal/management"
	"dealguard/internal/rules"
	"dealguard/pkg/bootstrap"
	"dealguard/pkg/circuitbreaker"
	"dealguard/pkg/health"
	"dealguard/pkg/metrics"
	"dealguard/pkg/middleware"
	"dealguard/pkg/migrations"
	"dealguard/pkg/ratelimit"
	"dealguard/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	catalog        *rules.Catalog
	producer       broker.Producer
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initCatalog(); err != nil {
		return fmt.Errorf("failed to load rule catalog: %w", err)
	}

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initCatalog() error {
	if path := a.config.Catalog.Path; path != "" {
		catalog, err := rules.LoadCatalogFile(path)
		if err != nil {
			return err
		}
		a.catalog = catalog
		a.logger.Infow("Rule catalog loaded", "path", path, "rules", catalog.Len())
		return nil
	}

	catalog, err := rules.DefaultCatalog()
	if err != nil {
		return err
	}
	a.catalog = catalog
	a.logger.Infow("Embedded rule catalog loaded", "rules", catalog.Len())
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Database.RunMigrations {
		if err := migrations.RunPostgres(db); err != nil {
			db.Close()
			return err
		}
		a.logger.Info("Database migrations applied")
	}

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.DefaultConfig()
		rl := a.config.Management.RateLimit
		if rl.RPS > 0 {
			rateLimitConfig.RPS = rl.RPS
		}
		if rl.Burst > 0 {
			rateLimitConfig.Burst = rl.Burst
		}
		if rl.CleanupInterval > 0 {
			rateLimitConfig.CleanupInterval = time.Duration(rl.CleanupInterval) * time.Second
		}
		if rl.MaxAge > 0 {
			rateLimitConfig.MaxAge = time.Duration(rl.MaxAge) * time.Second
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	repo := management.NewRepository(a.db)
	versioningRepo := management.NewVersioningRepository(a.db)

	opts := []management.ServiceOption{
		management.WithVersioning(versioningRepo),
	}

	if a.config.Broker.Enabled && a.config.Broker.Kafka.RuleEventsTopic != "" {
		a.producer = broker.NewProducer(a.config.Broker, a.logger)
		ruleEvents := management.NewRuleEventProducer(a.producer, a.config.Broker.Kafka.RuleEventsTopic)
		opts = append(opts, management.WithRuleEvents(ruleEvents))
		a.logger.Infow("Rule event producer initialized", "topic", a.config.Broker.Kafka.RuleEventsTopic)
	}

	svc := management.NewService(a.catalog, repo, repo, opts...)

	managementHandler := management.NewHandler(svc, a.logger)
	managementHandler.RegisterRoutes(router)

	snapshot := evaluation.NewSnapshotReader(repo, repo, a.newSnapshotBreaker())
	evaluator := rules.NewEvaluator(a.logger)
	engine := rules.NewEngine(evaluator, a.logger, a.config.Evaluation.Workers)
	evalSvc := evaluation.NewService(a.catalog, snapshot, engine, a.logger, a.config.Evaluation.MaxRecords)

	evaluationHandler := evaluation.NewHandler(evalSvc, a.logger)
	evaluationHandler.RegisterRoutes(router)

	metrics.RegisterEvaluationMetrics()
	metrics.RegisterManagementMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewCatalogChecker(a.catalog.Len))

	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

// newSnapshotBreaker builds the circuit breaker guarding evaluation-path
// database reads. Management CRUD goes straight to the repository; only the
// hot path sheds load.
func (a *App) newSnapshotBreaker() *circuitbreaker.Wrapper {
	cfg := circuitbreaker.DefaultConfig("evaluation-snapshot")

	cb := a.config.CircuitBreaker
	if cb.Enabled {
		if cb.MaxRequests > 0 {
			cfg.MaxRequests = cb.MaxRequests
		}
		if cb.Interval > 0 {
			cfg.Interval = cb.Interval
		}
		if cb.Timeout > 0 {
			cfg.Timeout = cb.Timeout
		}
		if cb.FailureRatio > 0 && cb.MinRequests > 0 {
			cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= cb.MinRequests && ratio >= cb.FailureRatio
			}
		}
	}

	return circuitbreaker.NewWrapper(cfg)
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(ctx, a.db)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
