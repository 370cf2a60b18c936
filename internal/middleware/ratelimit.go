package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threadpick/threadpick/internal/services"
	"github.com/threadpick/threadpick/pkg/models"
)

// RateLimit enforces the per-IP window for one endpoint class. Every
// response carries the X-RateLimit-* headers; rejections add Retry-After.
func RateLimit(limiter *services.RateLimitService, metrics *services.Metrics, class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, info := limiter.Allow(c.Request.Context(), c.ClientIP(), class)

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", info.Reset.UTC().Format(time.RFC3339))

		if !allowed {
			metrics.RateLimitRejections.WithLabelValues(class).Inc()
			retryAfter := time.Until(info.Reset).Seconds()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(int(retryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:             "rate_limited",
				Message:           "too many requests for this endpoint class",
				RetryAfterSeconds: &retryAfter,
				Details: models.RateLimitInfo{
					Limit:     info.Limit,
					Remaining: info.Remaining,
					Window:    info.Window,
					Reset:     info.Reset,
				},
				Timestamp: time.Now().UTC(),
			})
			return
		}
		c.Next()
	}
}
