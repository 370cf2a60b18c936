package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/internal/services"
	"github.com/threadpick/threadpick/pkg/models"
)

type Handlers struct {
	Session        *SessionHandler
	Recommendation *RecommendationHandler
	Feedback       *FeedbackHandler
	Admin          *AdminHandler
	Health         *HealthHandler
}

func New(logger *logrus.Logger, svc *services.Services) *Handlers {
	return &Handlers{
		Session:        NewSessionHandler(svc.Session, logger),
		Recommendation: NewRecommendationHandler(svc.Recommendation, logger),
		Feedback:       NewFeedbackHandler(svc.Feedback, svc.Guard, logger),
		Admin:          NewAdminHandler(svc.Guard, svc.Cache, svc.Recommendation, logger),
		Health:         NewHealthHandler(svc.Health, svc.Guard, svc.Cache, svc.Repos, logger),
	}
}

// respondError maps service errors onto the common envelope.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	message := "internal server error"

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		status, kind, message = http.StatusNotFound, "session_not_found", err.Error()
	case errors.Is(err, services.ErrProductNotFound), errors.Is(err, database.ErrNotFound):
		status, kind, message = http.StatusNotFound, "product_not_found", "product not found"
	case errors.Is(err, services.ErrSessionInactive):
		status, kind, message = http.StatusGone, "session_inactive", err.Error()
	case errors.Is(err, services.ErrNoCandidates):
		status, kind, message = http.StatusNotFound, "no_candidates", err.Error()
	case errors.Is(err, services.ErrInvalidFeatureVector):
		status, kind, message = http.StatusBadRequest, "validation", err.Error()
	case errors.Is(err, services.ErrSingularModel):
		status, kind, message = http.StatusInternalServerError, "model_singular", "model state is numerically unusable"
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("Request failed")
	}

	c.JSON(status, models.ErrorResponse{
		Error:     kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func badRequest(c *gin.Context, message string, details interface{}) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:     "validation",
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}
