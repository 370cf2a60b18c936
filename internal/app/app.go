package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/internal/handlers"
	"github.com/threadpick/threadpick/internal/middleware"
	"github.com/threadpick/threadpick/internal/services"
	"github.com/threadpick/threadpick/internal/validation"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *database.Database
	services  *services.Services
	handlers  *handlers.Handlers
	validator *validation.SchemaValidator
	router    *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	svc, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schemas: %w", err)
	}
	app.validator = validator

	app.handlers = handlers.New(app.logger, svc)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Services() *services.Services {
	return a.services
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if err := a.services.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing services")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware. Compression registers before the guard so the
	// guard's response capture sees the plaintext body it later replays.
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Security())
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Versioning())
	router.Use(middleware.Compression())
	router.Use(middleware.Guard(a.services.Guard, a.services.Metrics))

	// Liveness and Prometheus exposition stay outside the rate limiter.
	router.GET("/health", a.handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.registerAPI(router.Group("/api"))
	a.registerAPI(router.Group("/api/v1"))

	a.router = router
}

// registerAPI mounts the full route table under the given group so the
// unversioned and v1 prefixes serve identical surfaces.
func (a *App) registerAPI(api *gin.RouterGroup) {
	rl := func(class string) gin.HandlerFunc {
		return middleware.RateLimit(a.services.RateLimit, a.services.Metrics, class)
	}

	api.POST("/session", rl("session"),
		middleware.ValidateBody(a.validator, "session-create"),
		a.handlers.Session.Create)

	api.GET("/recommend/:sessionId", rl("recommend"), a.handlers.Recommendation.Recommend)
	api.POST("/recommendations/batch", rl("batch"),
		middleware.ValidateBody(a.validator, "recommendations-batch"),
		a.handlers.Recommendation.RecommendBatch)

	api.POST("/feedback", rl("feedback"),
		middleware.ValidateBody(a.validator, "feedback"),
		a.handlers.Feedback.Submit)
	api.POST("/feedback/batch", rl("batch"),
		middleware.ValidateBody(a.validator, "feedback-batch"),
		a.handlers.Feedback.SubmitBatch)
	api.GET("/feedback/status/:sessionId/:productId/:action", rl("general"), a.handlers.Feedback.Status)

	api.GET("/duplicate-detection/stats", rl("general"), a.handlers.Admin.GuardStats)

	api.GET("/cache/stats", rl("general"), a.handlers.Admin.CacheStats)
	api.POST("/cache/clear", rl("general"), a.handlers.Admin.CacheClear)
	api.POST("/cache/invalidate/session/:sessionId", rl("general"), a.handlers.Admin.CacheInvalidateSession)

	api.GET("/health", rl("general"), a.handlers.Health.Health)
	api.GET("/metrics", rl("general"), a.handlers.Health.Metrics)
	api.GET("/version", rl("general"), a.handlers.Health.Version)

	if a.config.Server.DebugRoutes {
		api.POST("/duplicate-detection/reset", rl("general"), a.handlers.Admin.GuardReset)
		api.GET("/debug/score/:sessionId/:productId", rl("general"), a.handlers.Recommendation.DebugScore)
	}
}
