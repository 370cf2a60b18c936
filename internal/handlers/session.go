package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/services"
	"github.com/threadpick/threadpick/pkg/models"
)

type SessionHandler struct {
	sessions *services.SessionService
	logger   *logrus.Logger
}

func NewSessionHandler(sessions *services.SessionService, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// Create handles POST /api/session.
func (h *SessionHandler) Create(c *gin.Context) {
	var req models.SessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid session request", err.Error())
		return
	}
	if req.UserID == "" {
		badRequest(c, "userId is required", nil)
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.SessionCreateResponse{
		Success:       true,
		SessionID:     session.SessionID,
		Algorithm:     "LinUCB",
		Configuration: h.sessions.Configuration(session),
	})
}
