package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/services"
	"github.com/threadpick/threadpick/pkg/models"
)

const maxRecommendationCount = 20

type RecommendationHandler struct {
	recommendations *services.RecommendationService
	logger          *logrus.Logger
}

func NewRecommendationHandler(recommendations *services.RecommendationService, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recommendations, logger: logger}
}

// Recommend handles GET /api/recommend/:sessionId.
func (h *RecommendationHandler) Recommend(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		badRequest(c, "sessionId must be a valid UUID", nil)
		return
	}

	filters, err := parseFilters(c)
	if err != nil {
		badRequest(c, err.Error(), nil)
		return
	}

	count := 1
	if raw := c.Query("limit"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count < 1 || count > maxRecommendationCount {
			badRequest(c, "limit must be an integer between 1 and 20", nil)
			return
		}
	}

	resp, err := h.recommendations.Recommend(c.Request.Context(), sessionID, filters, count)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecommendBatch handles POST /api/recommendations/batch.
func (h *RecommendationHandler) RecommendBatch(c *gin.Context) {
	var req models.BatchRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid batch request", err.Error())
		return
	}
	if len(req.Requests) == 0 || len(req.Requests) > 10 {
		badRequest(c, "requests must contain between 1 and 10 items", nil)
		return
	}

	resp := models.BatchRecommendationResponse{Success: true}
	for _, item := range req.Requests {
		count := item.Count
		if count < 1 {
			count = 1
		}
		filters := models.RecommendationFilters{}
		if req.GlobalSettings != nil {
			filters = *req.GlobalSettings
		}
		if item.Filters != nil {
			filters = *item.Filters
		}

		result := models.BatchRecommendationResult{SessionID: item.SessionID}
		out, err := h.recommendations.Recommend(c.Request.Context(), item.SessionID, filters, count)
		if err != nil {
			result.Error = err.Error()
			resp.Failed++
		} else {
			result.Success = true
			result.Response = out
			resp.Successful++
		}
		resp.Results = append(resp.Results, result)
	}
	resp.Success = resp.Failed == 0

	c.JSON(http.StatusOK, resp)
}

// DebugScore handles GET /api/debug/score/:sessionId/:productId. Registered
// only when debug routes are enabled.
func (h *RecommendationHandler) DebugScore(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		badRequest(c, "sessionId must be a valid UUID", nil)
		return
	}

	out, err := h.recommendations.DebugScore(c.Request.Context(), sessionID, c.Param("productId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func parseFilters(c *gin.Context) (models.RecommendationFilters, error) {
	var filters models.RecommendationFilters
	if raw := c.Query("minPrice"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return filters, errInvalidPrice("minPrice")
		}
		filters.MinPrice = &v
	}
	if raw := c.Query("maxPrice"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return filters, errInvalidPrice("maxPrice")
		}
		filters.MaxPrice = &v
	}
	filters.Category = c.Query("category")
	return filters, nil
}

type invalidPriceError string

func errInvalidPrice(field string) error { return invalidPriceError(field) }

func (e invalidPriceError) Error() string {
	return string(e) + " must be a non-negative number"
}
