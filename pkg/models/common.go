package models

import "time"

// ConflictInfo describes a guard rejection.
type ConflictInfo struct {
	Type              string    `json:"type"`
	Timestamp         time.Time `json:"timestamp"`
	Suggestion        string    `json:"suggestion,omitempty"`
	RetryAfterSeconds float64   `json:"retry_after_seconds,omitempty"`
}

// ErrorResponse is the common error envelope.
type ErrorResponse struct {
	Success           bool          `json:"success"`
	Error             string        `json:"error"`
	Message           string        `json:"message"`
	ConflictInfo      *ConflictInfo `json:"conflict_info,omitempty"`
	RetryAfterSeconds *float64      `json:"retry_after_seconds,omitempty"`
	Details           interface{}   `json:"details,omitempty"`
	Timestamp         time.Time     `json:"timestamp"`
}

type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Window    string    `json:"window"`
	Reset     time.Time `json:"reset"`
}
