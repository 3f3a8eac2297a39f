package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinereserve/api/routes"
	"cinereserve/internal/app"
	"cinereserve/internal/reconciliation"
	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/constants"
	"cinereserve/internal/shared/database"
	"cinereserve/pkg/logger"
	"cinereserve/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// Rebuild the logger now that mode and level are known
	appLogger = logger.NewWithWriter(os.Stdout, cfg.LogLevel)
	logger.SetDefault(appLogger)

	db, err := database.InitDB(cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	core, err := app.NewCore(cfg, db.PostgreSQL, db.CacheService(constants.CACHE_PREFIX), appLogger)
	if err != nil {
		appLogger.Error("failed to wire booking core", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := core.Close(); err != nil {
			appLogger.Error("Error closing event publisher", slog.Any("error", err))
		}
	}()

	// Rate limiter; falls back to an in-process window without Redis
	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.Redis, &ratelimit.Config{
			Enabled:                 cfg.RateLimit.Enabled,
			WindowDuration:          cfg.RateLimit.WindowDuration,
			DefaultRequests:         cfg.RateLimit.DefaultRequests,
			PublicRequests:          cfg.RateLimit.PublicRequests,
			BookingRequests:         cfg.RateLimit.BookingRequests,
			BookingCriticalRequests: cfg.RateLimit.BookingCriticalRequests,
			AdminRequests:           cfg.RateLimit.AdminRequests,
			HealthRequests:          cfg.RateLimit.HealthRequests,
			WhitelistedIPs:          cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Bool("redis", db.Redis != nil),
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	// Reconciliation jobs run in-process unless an external sweeper owns them
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	defer jobsCancel()

	var jobs *reconciliation.JobProcessor
	if cfg.Booking.JobsEnabled {
		jobs = reconciliation.NewJobProcessor(core.Reconciler, &reconciliation.JobConfig{
			SweepInterval:   cfg.Booking.SweepInterval,
			RecheckInterval: cfg.Booking.RecheckInterval,
		}, appLogger)
		jobs.Start(jobsCtx)
		defer jobs.Stop()
	}

	router := setupRouter(cfg, db, core, jobs, rateLimiter, appLogger)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("api_status", fmt.Sprintf("http://localhost:%s/status", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("payment_provider", core.Gateway.Name()),
			slog.Bool("redis_cache", db.Redis != nil),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, core *app.Core, jobs *reconciliation.JobProcessor, rateLimiter *ratelimit.RateLimiter, appLogger *logger.Logger) *gin.Engine {
	engine := gin.New()

	// Logs requests + recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter, appLogger))
	}

	appRouter := routes.NewRouter(cfg, db, core, jobs)
	appRouter.SetupRoutes(engine)

	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
