package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/threadpick/threadpick/internal/services"
	"github.com/threadpick/threadpick/pkg/models"
)

// IdempotencyKeyContext is where the guard stores the resolved key for the
// handler chain.
const IdempotencyKeyContext = "idempotency_key"

type feedbackBody struct {
	SessionID      string `json:"session_id"`
	ProductID      string `json:"product_id"`
	Action         string `json:"action"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Guard applies the duplicate and conflict checks to every mutating request.
// Precedence: idempotency replay, feedback conflict windows, then the general
// fingerprint. Responses produced under an idempotency key are captured and
// cached for replay.
func Guard(guard *services.GuardService, metrics *services.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "validation",
				Message:   "failed to read request body",
				Timestamp: time.Now().UTC(),
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		// The Idempotency-Key header is canonical; the body field is an
		// accepted alias.
		idemKey := c.GetHeader("Idempotency-Key")

		var fb feedbackBody
		isFeedback := strings.HasSuffix(c.FullPath(), "/feedback")
		if isFeedback {
			if err := json.Unmarshal(body, &fb); err != nil {
				fb = feedbackBody{}
			}
			if idemKey == "" {
				idemKey = fb.IdempotencyKey
			}
		}

		if replay := guard.Replay(idemKey); replay != nil {
			c.Header("X-Duplicate-Detection", "idempotent_retry")
			c.Header("X-Original-Timestamp", replay.OriginalAt.UTC().Format(time.RFC3339))
			c.Data(replay.Status, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		sessionID, sessionOK := parseSessionID(fb.SessionID)
		if isFeedback && sessionOK && fb.ProductID != "" {
			if conflict := guard.CheckFeedback(sessionID, fb.ProductID, idemKey); conflict != nil {
				rejectConflict(c, metrics, conflict)
				return
			}
		}

		fingerprint := services.Fingerprint(
			c.ClientIP(), c.Request.Method, c.Request.URL.Path, body, c.Request.URL.RawQuery)
		if conflict := guard.CheckFingerprint(fingerprint); conflict != nil {
			rejectConflict(c, metrics, conflict)
			return
		}

		guard.RecordPass(fingerprint)
		if isFeedback && sessionOK && fb.ProductID != "" {
			guard.RecordFeedback(sessionID, fb.ProductID, models.Action(fb.Action), idemKey)
		}
		c.Set(IdempotencyKeyContext, idemKey)

		if idemKey == "" {
			c.Next()
			return
		}

		capture := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		if capture.Status() < http.StatusInternalServerError {
			guard.StoreResponse(idemKey, capture.Status(), capture.Header().Get("Content-Type"), capture.buf.Bytes())
		}
	}
}

func parseSessionID(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	return id, err == nil
}

func rejectConflict(c *gin.Context, metrics *services.Metrics, conflict *services.GuardConflict) {
	metrics.GuardRejections.WithLabelValues(conflict.Kind).Inc()
	retryAfter := conflict.RetryAfter
	c.AbortWithStatusJSON(http.StatusConflict, models.ErrorResponse{
		Error:             conflict.Kind,
		Message:           conflict.Suggestion,
		ConflictInfo:      conflict.Info(),
		RetryAfterSeconds: &retryAfter,
		Timestamp:         time.Now().UTC(),
	})
}

// captureWriter tees the response body so it can be cached for idempotent
// replay.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.buf.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
