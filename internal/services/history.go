package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/pkg/models"
)

// HistoryService tracks which products each session has been shown and what
// the user did with them. Retention is capped per session; the newest entries
// survive the trim.
type HistoryService struct {
	cfg     config.HistoryConfig
	history database.HistoryRepository
	logger  *logrus.Logger
}

func NewHistoryService(cfg config.HistoryConfig, history database.HistoryRepository, logger *logrus.Logger) *HistoryService {
	return &HistoryService{cfg: cfg, history: history, logger: logger}
}

// RecordShown appends the recommended products to the session's history.
func (s *HistoryService) RecordShown(ctx context.Context, sessionID uuid.UUID, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	err := s.history.Append(ctx, sessionID, productIDs, time.Now().UTC(), s.cfg.MaxEntries)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to record shown products")
	}
	return err
}

// RecordAction annotates the most recent history entry for the product with
// the user's action. Feedback on a product that was never shown is legal; the
// annotation is skipped with a warning.
func (s *HistoryService) RecordAction(ctx context.Context, sessionID uuid.UUID, productID string, action models.Action) error {
	matched, err := s.history.MarkAction(ctx, sessionID, productID, action, time.Now().UTC())
	if err != nil {
		return err
	}
	if !matched {
		s.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"product_id": productID,
		}).Warn("Feedback for a product with no history entry, annotation skipped")
	}
	return nil
}

// ClearAction removes the action annotation from the most recent matching
// entry. Used to roll back a failed feedback write.
func (s *HistoryService) ClearAction(ctx context.Context, sessionID uuid.UUID, productID string) error {
	return s.history.ClearAction(ctx, sessionID, productID)
}

// Recent returns up to limit history entries, newest first.
func (s *HistoryService) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	return s.history.Recent(ctx, sessionID, limit)
}

// Count returns the session's retained history length.
func (s *HistoryService) Count(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return s.history.Count(ctx, sessionID)
}

// Stats summarizes session activity for response envelopes.
func (s *HistoryService) Stats(ctx context.Context, sessionID uuid.UUID, interactions []models.Interaction) (models.UserStats, error) {
	seen, err := s.history.Count(ctx, sessionID)
	if err != nil {
		return models.UserStats{}, err
	}
	stats := models.UserStats{
		ProductsSeen:      seen,
		TotalInteractions: len(interactions),
	}
	for _, in := range interactions {
		switch in.Action {
		case models.ActionLove:
			stats.LovedItems++
		case models.ActionDislike:
			stats.DislikedItems++
		}
	}
	return stats, nil
}
