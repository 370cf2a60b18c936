package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/services"
)

// AdminHandler exposes guard and cache administration.
type AdminHandler struct {
	guard           *services.GuardService
	cache           *services.RecommendationCache
	recommendations *services.RecommendationService
	logger          *logrus.Logger
}

func NewAdminHandler(guard *services.GuardService, cache *services.RecommendationCache, recommendations *services.RecommendationService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{guard: guard, cache: cache, recommendations: recommendations, logger: logger}
}

// GuardStats handles GET /api/duplicate-detection/stats.
func (h *AdminHandler) GuardStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": h.guard.Stats()})
}

// GuardReset handles POST /api/duplicate-detection/reset. Dev-only.
func (h *AdminHandler) GuardReset(c *gin.Context) {
	h.guard.Reset()
	h.logger.Warn("Guard tables reset")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "guard tables cleared"})
}

// CacheStats handles GET /api/cache/stats.
func (h *AdminHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": h.cache.Stats()})
}

// CacheClear handles POST /api/cache/clear.
func (h *AdminHandler) CacheClear(c *gin.Context) {
	h.cache.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "cache cleared"})
}

// CacheInvalidateSession handles POST /api/cache/invalidate/session/:sessionId.
func (h *AdminHandler) CacheInvalidateSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		badRequest(c, "sessionId must be a valid UUID", nil)
		return
	}
	h.recommendations.InvalidateSession(sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": sessionID})
}
