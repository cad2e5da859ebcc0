package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	orchapp "github.com/ipaas/backend/internal/application/orchestration"
	resapp "github.com/ipaas/backend/internal/application/resilience"
	"github.com/ipaas/backend/internal/domain/classification"
	"github.com/ipaas/backend/internal/domain/shared"
	"github.com/ipaas/backend/internal/infrastructure/cache"
	"github.com/ipaas/backend/internal/infrastructure/config"
	"github.com/ipaas/backend/internal/infrastructure/event"
	"github.com/ipaas/backend/internal/infrastructure/httpclient"
	"github.com/ipaas/backend/internal/infrastructure/logger"
	"github.com/ipaas/backend/internal/infrastructure/persistence"
	"github.com/ipaas/backend/internal/infrastructure/telemetry"
	"github.com/ipaas/backend/internal/interfaces/http/handler"
	"github.com/ipaas/backend/internal/interfaces/http/middleware"
	"github.com/ipaas/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

//	@title			iPaaS Orchestration API
//	@version		1.0
//	@description	Ticket and event orchestration core: webhook ingestion, flow orchestration and resilient downstream delivery

//	@host		localhost:8080
//	@BasePath	/api/v1

// deliveryClientAdapter bridges the application delivery port to the
// resilient HTTP client
type deliveryClientAdapter struct {
	client *httpclient.ResilientClient
}

func (a *deliveryClientAdapter) Deliver(ctx context.Context, req orchapp.DeliveryRequest) error {
	return a.client.Deliver(ctx, httpclient.Delivery{
		CorrelationID: req.CorrelationID,
		Target:        req.Target,
		Method:        req.Method,
		Path:          req.Path,
		Payload:       req.Payload,
		ResumeStatus:  req.ResumeStatus,
		Replay:        req.Replay,
	})
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting iPaaS Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection with zap-backed GORM logger
	gormLogLevel := gormlogger.Warn
	if cfg.Log.Level == "debug" {
		gormLogLevel = gormlogger.Info
	}
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := db.AutoMigrate(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize telemetry
	shutdownCtx := context.Background()
	meterProvider, err := telemetry.NewMeterProvider(shutdownCtx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()
	deliveryMetrics := telemetry.NewDeliveryMetrics(meterProvider.Meter("ipaas"), log)

	// Initialize repositories
	recordRepo := persistence.NewGormCorrelationRecordRepository(db.DB)
	dlqRepo := persistence.NewGormDLQRepository(db.DB)

	// Idempotency store: Redis when configured, in-memory otherwise
	var idempotencyStore shared.IdempotencyStore
	if cfg.Idempotency.Enabled {
		store, err := cache.NewRedisIdempotencyStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("Redis unavailable, falling back to in-memory idempotency store", zap.Error(err))
			idempotencyStore = cache.NewInMemoryIdempotencyStore()
		} else {
			idempotencyStore = store
			log.Info("Redis idempotency store connected", zap.String("addr", cfg.Redis.Addr()))
		}
		defer func() {
			if err := idempotencyStore.Close(); err != nil {
				log.Error("Error closing idempotency store", zap.Error(err))
			}
		}()
	}

	// Event bus for domain event distribution
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(shutdownCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Resilient downstream delivery client
	deliveryClient := httpclient.NewResilientClient(
		cfg.Downstreams,
		cfg.Retry,
		cfg.Breaker,
		dlqRepo,
		log,
		httpclient.WithMetrics(deliveryMetrics),
	)

	// Initialize application services
	orchestratorOpts := []orchapp.OrchestratorOption{
		orchapp.WithDeliveryMetrics(deliveryMetrics),
	}
	if idempotencyStore != nil {
		orchestratorOpts = append(orchestratorOpts, orchapp.WithIdempotencyStore(idempotencyStore, shared.IdempotencyConfig{
			Enabled: true,
			TTL:     cfg.Idempotency.TTL,
		}))
	}
	orchestrator := orchapp.NewFlowOrchestrator(
		recordRepo,
		classification.NewClassifier(),
		&deliveryClientAdapter{client: deliveryClient},
		log,
		orchestratorOpts...,
	)
	orchestrator.SetEventPublisher(eventBus)

	adminService := resapp.NewAdminService(dlqRepo, deliveryClient.Breakers(), orchestrator, log)

	// Initialize HTTP handlers
	webhookHandler := handler.NewWebhookHandler(orchestrator)
	callbackHandler := handler.NewCallbackHandler(orchestrator)
	ticketHandler := handler.NewTicketHandler(orchestrator)
	resilienceHandler := handler.NewResilienceHandler(adminService)
	systemHandler := handler.NewSystemHandler(db)

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack: request ID, panic recovery, request logging,
	// security headers, CORS, body limit, then rate limiting
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.HTTPMetrics(meterProvider.Meter("http.server"), cfg.Telemetry.Enabled))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", systemHandler.Health)

	// Inbound integration endpoints: webhook intake is rate limited per
	// source so one chatty system cannot starve the rest
	sourceLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, time.Minute)
	engine.POST("/webhook/:source", middleware.RateLimitBySource(sourceLimiter), webhookHandler.Ingest)
	engine.POST("/callback/:source", callbackHandler.Apply)

	// Versioned admin and query API
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	ticketRoutes := router.NewDomainGroup("tickets", "/tickets")
	ticketRoutes.GET("", ticketHandler.List)
	ticketRoutes.GET("/:id", ticketHandler.Get)

	resilienceRoutes := router.NewDomainGroup("resilience", "/resilience")
	resilienceRoutes.GET("/status", resilienceHandler.Status)
	resilienceRoutes.GET("/circuit-breaker", resilienceHandler.ListBreakers)
	resilienceRoutes.POST("/circuit-breaker/reset", resilienceHandler.ResetBreaker)
	resilienceRoutes.GET("/dlq/messages", resilienceHandler.ListDLQ)
	resilienceRoutes.GET("/dlq/messages/:id", resilienceHandler.GetDLQEntry)
	resilienceRoutes.POST("/dlq/messages/:id/retry", resilienceHandler.RetryDLQEntry)
	resilienceRoutes.POST("/dlq/messages/:id/resolve", resilienceHandler.ResolveDLQEntry)
	resilienceRoutes.GET("/metrics", resilienceHandler.Metrics)

	r.Register(ticketRoutes).
		Register(resilienceRoutes)
	r.Setup()

	// Create HTTP server with config
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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
