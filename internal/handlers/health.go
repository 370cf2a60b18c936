package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/middleware"
	"github.com/threadpick/threadpick/internal/services"
)

type HealthHandler struct {
	health *services.HealthService
	guard  *services.GuardService
	cache  *services.RecommendationCache
	repos  *services.Repositories
	logger *logrus.Logger
	start  time.Time
}

func NewHealthHandler(health *services.HealthService, guard *services.GuardService, cache *services.RecommendationCache, repos *services.Repositories, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		health: health,
		guard:  guard,
		cache:  cache,
		repos:  repos,
		logger: logger,
		start:  time.Now(),
	}
}

// Health handles GET /health and GET /api/health.
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.health.CheckHealth(c.Request.Context())
	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// Metrics handles GET /api/metrics, a JSON summary of the core counters.
// Prometheus exposition lives at /metrics.
func (h *HealthHandler) Metrics(c *gin.Context) {
	productCount, err := h.repos.Products.Count(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Failed to count products for metrics")
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"uptime_seconds": int(time.Since(h.start).Seconds()),
		"catalog_size":   productCount,
		"guard":          h.guard.Stats(),
		"cache":          h.cache.Stats(),
		"timestamp":      time.Now().UTC(),
	})
}

// Version handles GET /api/version.
func (h *HealthHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"current_version":    middleware.CurrentAPIVersion,
		"supported_versions": []string{middleware.CurrentAPIVersion},
	})
}
