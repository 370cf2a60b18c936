package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threadpick/threadpick/internal/validation"
	"github.com/threadpick/threadpick/pkg/models"
)

// ValidateBody checks the request body against one of the embedded JSON
// schemas before the handler binds it.
func ValidateBody(validator *validation.SchemaValidator, schemaName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(body) == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "validation",
				Message:   "request body is required",
				Timestamp: time.Now().UTC(),
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		result := validator.ValidateBytes(schemaName, body)
		if !result.Valid {
			c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "validation",
				Message:   "request validation failed",
				Details:   result.Errors,
				Timestamp: time.Now().UTC(),
			})
			return
		}
		c.Next()
	}
}
