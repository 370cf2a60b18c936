package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/pkg/models"
)

// BanditService owns the per-session LinUCB models. Fitted models are an
// in-process cache over the interaction log; a cache miss replays the log,
// which yields the same model the incremental updates produced.
type BanditService struct {
	cfg          config.BanditConfig
	interactions database.InteractionRepository
	logger       *logrus.Logger

	mu     sync.Mutex
	models map[uuid.UUID]*LinUCBModel
}

func NewBanditService(cfg config.BanditConfig, interactions database.InteractionRepository, logger *logrus.Logger) *BanditService {
	return &BanditService{
		cfg:          cfg,
		interactions: interactions,
		logger:       logger,
		models:       make(map[uuid.UUID]*LinUCBModel),
	}
}

// ModelFor returns the session's fitted model, replaying the interaction log
// on a cache miss.
func (s *BanditService) ModelFor(ctx context.Context, sessionID uuid.UUID) (*LinUCBModel, error) {
	s.mu.Lock()
	if m, ok := s.models[sessionID]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	log, err := s.interactions.BySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interaction log: %w", err)
	}

	m := NewLinUCBModel(s.cfg.Dimensions, s.cfg.Regularization)
	for _, in := range log {
		if err := m.Update(in.FeatureVector, in.Reward); err != nil {
			return nil, fmt.Errorf("replay failed at interaction %d: %w", in.ID, err)
		}
	}
	if len(log) > 0 {
		s.logger.WithFields(logrus.Fields{
			"session_id":   sessionID,
			"interactions": len(log),
		}).Debug("Rebuilt bandit model from interaction log")
	}

	s.mu.Lock()
	s.models[sessionID] = m
	s.mu.Unlock()
	return m, nil
}

// Invalidate drops the cached model so the next access replays from the log.
func (s *BanditService) Invalidate(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.models, sessionID)
	s.mu.Unlock()
}

// Regularization exposes the ridge parameter for score calls.
func (s *BanditService) Regularization() float64 {
	return s.cfg.Regularization
}

// RewardFor maps an action onto its configured reward.
func (s *BanditService) RewardFor(action models.Action) float64 {
	switch action {
	case models.ActionLove:
		return s.cfg.Rewards.Love
	case models.ActionLike:
		return s.cfg.Rewards.Like
	case models.ActionNeutral:
		return s.cfg.Rewards.Neutral
	case models.ActionSkip:
		return s.cfg.Rewards.Skip
	case models.ActionDislike:
		return s.cfg.Rewards.Dislike
	}
	return 0
}

// NextAlpha applies the exploration decay schedule. Alpha shrinks once the
// session has enough interactions and is clamped to the configured bounds.
func (s *BanditService) NextAlpha(current float64, totalInteractions int) float64 {
	next := current
	if totalInteractions > s.cfg.DecayAfter {
		next *= s.cfg.AlphaDecay
	}
	if next < s.cfg.AlphaMin {
		next = s.cfg.AlphaMin
	}
	if next > s.cfg.AlphaMax {
		next = s.cfg.AlphaMax
	}
	return next
}

// ConfidenceTier buckets model maturity by interaction count and preference
// strength.
func (s *BanditService) ConfidenceTier(totalInteractions int, thetaNorm float64) string {
	switch {
	case totalInteractions >= 20 && thetaNorm > 1.0:
		return "very_high"
	case totalInteractions >= 10 && thetaNorm > 0.5:
		return "high"
	case totalInteractions >= 5 && thetaNorm > 0.3:
		return "medium"
	case totalInteractions >= 3:
		return "low"
	}
	return "very_low"
}

// Insights extracts the strongest learned preferences from θ, split into
// positive and negative components.
func (s *BanditService) Insights(m *LinUCBModel, topN int) (positive, negative []models.PreferenceComponent, err error) {
	theta, err := m.Theta(s.cfg.Regularization)
	if err != nil {
		return nil, nil, err
	}

	type component struct {
		idx    int
		weight float64
	}
	var pos, neg []component
	for i, w := range theta {
		if w > 0 {
			pos = append(pos, component{i, w})
		} else if w < 0 {
			neg = append(neg, component{i, w})
		}
	}
	sort.Slice(pos, func(i, j int) bool { return pos[i].weight > pos[j].weight })
	sort.Slice(neg, func(i, j int) bool { return neg[i].weight < neg[j].weight })

	take := func(list []component) []models.PreferenceComponent {
		if len(list) > topN {
			list = list[:topN]
		}
		out := make([]models.PreferenceComponent, 0, len(list))
		for _, c := range list {
			out = append(out, models.PreferenceComponent{
				Feature: FeatureName(c.idx),
				Weight:  c.weight,
			})
		}
		return out
	}
	return take(pos), take(neg), nil
}
