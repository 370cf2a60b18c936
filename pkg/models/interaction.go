package models

import (
	"time"

	"github.com/google/uuid"
)

// Action is the strict feedback vocabulary.
type Action string

const (
	ActionLove    Action = "love"
	ActionLike    Action = "like"
	ActionDislike Action = "dislike"
	ActionSkip    Action = "skip"
	ActionNeutral Action = "neutral"
)

// ValidAction reports whether s is one of the five accepted actions.
func ValidAction(s string) bool {
	switch Action(s) {
	case ActionLove, ActionLike, ActionDislike, ActionSkip, ActionNeutral:
		return true
	}
	return false
}

// Interaction is a write-once reward event. The timestamp-ordered sequence of
// a session's interactions is the authoritative stream the model is replayed
// from.
type Interaction struct {
	ID            int64     `json:"-" db:"id"`
	SessionID     uuid.UUID `json:"session_id" db:"session_id"`
	ProductID     string    `json:"product_id" db:"product_id"`
	Action        Action    `json:"action" db:"action"`
	Reward        float64   `json:"reward" db:"reward"`
	FeatureVector []float64 `json:"feature_vector" db:"feature_vector"`
	ScoreBefore   float64   `json:"score_before" db:"score_before"`
	ScoreAfter    float64   `json:"score_after" db:"score_after"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// HistoryEntry records that a product was shown to a session, and optionally
// the action the user later took on it.
type HistoryEntry struct {
	ID              int64      `json:"-" db:"id"`
	SessionID       uuid.UUID  `json:"session_id" db:"session_id"`
	ProductID       string     `json:"product_id" db:"product_id"`
	ShownAt         time.Time  `json:"shown_at" db:"shown_at"`
	UserAction      *Action    `json:"user_action,omitempty" db:"user_action"`
	ActionTimestamp *time.Time `json:"action_timestamp,omitempty" db:"action_timestamp"`
}
