package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/services"
	"github.com/threadpick/threadpick/pkg/models"
)

type FeedbackHandler struct {
	feedback *services.FeedbackService
	guard    *services.GuardService
	logger   *logrus.Logger
}

func NewFeedbackHandler(feedback *services.FeedbackService, guard *services.GuardService, logger *logrus.Logger) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback, guard: guard, logger: logger}
}

// Submit handles POST /api/feedback. The guard middleware has already
// cleared the request and recorded its tuple.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid feedback request", err.Error())
		return
	}
	if !models.ValidAction(req.Action) {
		badRequest(c, "action must be one of love, like, dislike, skip, neutral", nil)
		return
	}

	resp, err := h.feedback.Process(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitBatch handles POST /api/feedback/batch.
func (h *FeedbackHandler) SubmitBatch(c *gin.Context) {
	var req models.FeedbackBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid batch feedback request", err.Error())
		return
	}
	if len(req.Feedbacks) == 0 || len(req.Feedbacks) > 50 {
		badRequest(c, "feedbacks must contain between 1 and 50 items", nil)
		return
	}
	for i := range req.Feedbacks {
		if !models.ValidAction(req.Feedbacks[i].Action) {
			badRequest(c, "action must be one of love, like, dislike, skip, neutral", gin.H{"index": i})
			return
		}
	}

	resp, ok := h.feedback.ProcessBatch(c.Request.Context(), &req)
	if !ok {
		c.JSON(http.StatusConflict, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Status handles GET /api/feedback/status/:sessionId/:productId/:action.
func (h *FeedbackHandler) Status(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		badRequest(c, "sessionId must be a valid UUID", nil)
		return
	}
	action := c.Param("action")
	if !models.ValidAction(action) {
		badRequest(c, "action must be one of love, like, dislike, skip, neutral", nil)
		return
	}

	status := h.guard.Status(sessionID, c.Param("productId"), models.Action(action))
	if !status.Found {
		c.JSON(http.StatusNotFound, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
