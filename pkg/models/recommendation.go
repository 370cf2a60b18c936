package models

import (
	"time"

	"github.com/google/uuid"
)

// RecommendationFilters are the caller-supplied catalog filters.
type RecommendationFilters struct {
	MinPrice *float64 `json:"minPrice,omitempty"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
	Category string   `json:"category,omitempty"`
}

// RecommendedItem is one scored pick with its score decomposition.
type RecommendedItem struct {
	Product          *Product `json:"product"`
	ConfidenceScore  float64  `json:"confidence_score"`
	BaseScore        float64  `json:"base_score"`
	DiversityBonus   float64  `json:"diversity_bonus"`
	ExplorationBonus float64  `json:"exploration_bonus"`
	Algorithm        string   `json:"algorithm"`
	Reasoning        string   `json:"reasoning"`
}

type UserStats struct {
	ProductsSeen      int `json:"products_seen"`
	TotalInteractions int `json:"total_interactions"`
	LovedItems        int `json:"loved_items"`
	DislikedItems     int `json:"disliked_items"`
}

type DiversityInfo struct {
	ExcludedProducts  int      `json:"excluded_products"`
	AvoidedCategories []string `json:"avoided_categories,omitempty"`
	AvoidedColors     []string `json:"avoided_colors,omitempty"`
	AvoidedBrands     []string `json:"avoided_brands,omitempty"`
	CandidatePoolSize int      `json:"candidate_pool_size"`
}

type RecommendationResponse struct {
	Success         bool                  `json:"success"`
	SessionID       uuid.UUID             `json:"session_id"`
	Recommendation  *RecommendedItem      `json:"recommendation,omitempty"`
	Recommendations []RecommendedItem     `json:"recommendations,omitempty"`
	Partial         bool                  `json:"partial,omitempty"`
	UserStats       UserStats             `json:"user_stats"`
	DiversityInfo   DiversityInfo         `json:"diversity_info"`
	FiltersApplied  RecommendationFilters `json:"filters_applied"`
	CacheHit        bool                  `json:"cache_hit,omitempty"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

type BatchRecommendationItem struct {
	SessionID uuid.UUID              `json:"sessionId" validate:"required"`
	Count     int                    `json:"count,omitempty" validate:"omitempty,min=1,max=20"`
	Filters   *RecommendationFilters `json:"filters,omitempty"`
}

type BatchRecommendationRequest struct {
	Requests       []BatchRecommendationItem `json:"requests" validate:"required,min=1,max=10"`
	GlobalSettings *RecommendationFilters    `json:"globalSettings,omitempty"`
}

type BatchRecommendationResult struct {
	SessionID uuid.UUID               `json:"session_id"`
	Success   bool                    `json:"success"`
	Response  *RecommendationResponse `json:"response,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

type BatchRecommendationResponse struct {
	Success    bool                        `json:"success"`
	Successful int                         `json:"successful_requests"`
	Failed     int                         `json:"failed_requests"`
	Results    []BatchRecommendationResult `json:"results"`
}
