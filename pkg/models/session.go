package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionActive   = "active"
	SessionInactive = "inactive"
)

// Session holds the per-session bandit configuration and counters. The fitted
// model itself is derived state, reconstructible from the interaction log.
type Session struct {
	SessionID         uuid.UUID              `json:"session_id" db:"session_id"`
	UserID            string                 `json:"user_id" db:"user_id"`
	Alpha             float64                `json:"alpha" db:"alpha"`
	Dimensions        int                    `json:"dimensions" db:"dimensions"`
	TotalInteractions int                    `json:"total_interactions" db:"total_interactions"`
	Status            string                 `json:"status" db:"status"`
	Context           map[string]interface{} `json:"context,omitempty" db:"context"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
}

type SessionCreateRequest struct {
	UserID  string                 `json:"userId" validate:"required"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type SessionCreateResponse struct {
	Success       bool                 `json:"success"`
	SessionID     uuid.UUID            `json:"session_id"`
	Algorithm     string               `json:"algorithm"`
	Configuration SessionConfiguration `json:"configuration"`
}

type SessionConfiguration struct {
	Alpha               float64 `json:"alpha"`
	FeatureDimensions   int     `json:"feature_dimensions"`
	ExplorationStrategy string  `json:"exploration_strategy"`
}
