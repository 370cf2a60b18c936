package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackRequest is the canonical feedback body. The Idempotency-Key header
// is canonical; the idempotency_key body field is accepted as an alias at the
// boundary.
type FeedbackRequest struct {
	SessionID      uuid.UUID              `json:"session_id" validate:"required"`
	ProductID      string                 `json:"product_id" validate:"required"`
	Action         string                 `json:"action" validate:"required,oneof=love like dislike skip neutral"`
	Context        map[string]interface{} `json:"context,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

type LearningUpdate struct {
	Action            string  `json:"action"`
	Reward            float64 `json:"reward"`
	TotalInteractions int     `json:"total_interactions"`
	Alpha             float64 `json:"alpha"`
}

// PreferenceComponent maps one θ component back to its named feature slot.
type PreferenceComponent struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

type UserInsights struct {
	TopPositive    []PreferenceComponent `json:"top_positive"`
	TopNegative    []PreferenceComponent `json:"top_negative"`
	ConfidenceTier string                `json:"confidence_tier"`
}

type ScoreEvolution struct {
	ScoreBefore float64 `json:"score_before"`
	ScoreAfter  float64 `json:"score_after"`
	Delta       float64 `json:"delta"`
}

type DiversityStats struct {
	SeenCategories int `json:"seen_categories"`
	SeenColors     int `json:"seen_colors"`
	SeenBrands     int `json:"seen_brands"`
}

type FeedbackResponse struct {
	Success        bool           `json:"success"`
	SessionID      uuid.UUID      `json:"session_id"`
	ProductID      string         `json:"product_id"`
	LearningUpdate LearningUpdate `json:"learning_update"`
	UserInsights   UserInsights   `json:"user_insights"`
	DiversityStats DiversityStats `json:"diversity_stats"`
	ScoreEvolution ScoreEvolution `json:"score_evolution"`
	Timestamp      time.Time      `json:"timestamp"`
}

type FeedbackBatchOptions struct {
	ContinueOnError        bool `json:"continueOnError,omitempty"`
	UpdateModelImmediately bool `json:"updateModelImmediately,omitempty"`
	IgnoreConflicts        bool `json:"ignoreConflicts,omitempty"`
}

type FeedbackBatchRequest struct {
	Feedbacks []FeedbackRequest    `json:"feedbacks" validate:"required,min=1,max=50"`
	Options   FeedbackBatchOptions `json:"options,omitempty"`
}

type FeedbackBatchItemResult struct {
	Index    int               `json:"index"`
	Success  bool              `json:"success"`
	Response *FeedbackResponse `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type BatchConflict struct {
	Index         int    `json:"index"`
	ConflictsWith int    `json:"conflicts_with"`
	ProductID     string `json:"product_id"`
	Message       string `json:"message"`
}

type FeedbackBatchResponse struct {
	Success             bool                      `json:"success"`
	SuccessfulFeedbacks int                       `json:"successful_feedbacks"`
	FailedFeedbacks     int                       `json:"failed_feedbacks"`
	Results             []FeedbackBatchItemResult `json:"results"`
	Errors              []string                  `json:"errors,omitempty"`
	Conflicts           []BatchConflict           `json:"conflicts,omitempty"`
}

// FeedbackStatus is the guard-record view returned by the status endpoint.
type FeedbackStatus struct {
	Found          bool      `json:"found"`
	SessionID      uuid.UUID `json:"session_id,omitempty"`
	ProductID      string    `json:"product_id,omitempty"`
	Action         string    `json:"action,omitempty"`
	Processed      bool      `json:"processed,omitempty"`
	RecordedAt     time.Time `json:"recorded_at,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}
