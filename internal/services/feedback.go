package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/internal/messaging"
	"github.com/threadpick/threadpick/pkg/models"
)

// Feedback errors mapped to status codes by the handlers.
var (
	ErrProductNotFound      = errors.New("product not found")
	ErrInvalidFeatureVector = errors.New("product has an invalid feature vector")
)

// FeedbackService applies one reward event to a session: history annotation,
// interaction append, model update, counters, cache invalidation. The two
// persistent writes are ordered so a failed append rolls the history
// annotation back.
type FeedbackService struct {
	historyCfg config.HistoryConfig

	sessions  *SessionService
	bandit    *BanditService
	diversity *DiversityController
	history   *HistoryService
	guard     *GuardService
	cache     *RecommendationCache
	extractor *FeatureExtractor
	producer  *messaging.Producer

	products     database.ProductRepository
	interactions database.InteractionRepository
	metrics      *Metrics
	logger       *logrus.Logger
}

func NewFeedbackService(
	historyCfg config.HistoryConfig,
	sessions *SessionService,
	bandit *BanditService,
	diversity *DiversityController,
	history *HistoryService,
	guard *GuardService,
	cache *RecommendationCache,
	extractor *FeatureExtractor,
	producer *messaging.Producer,
	products database.ProductRepository,
	interactions database.InteractionRepository,
	metrics *Metrics,
	logger *logrus.Logger,
) *FeedbackService {
	return &FeedbackService{
		historyCfg:   historyCfg,
		sessions:     sessions,
		bandit:       bandit,
		diversity:    diversity,
		history:      history,
		guard:        guard,
		cache:        cache,
		extractor:    extractor,
		producer:     producer,
		products:     products,
		interactions: interactions,
		metrics:      metrics,
		logger:       logger,
	}
}

// Process applies one feedback event. The guard has already passed the
// request; this holds the per-session lock across the read-modify-write.
func (s *FeedbackService) Process(ctx context.Context, req *models.FeedbackRequest) (*models.FeedbackResponse, error) {
	action := models.Action(req.Action)

	lock := s.sessions.Lock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.sessions.Get(ctx, req.SessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionInactive
	}

	product, err := s.products.Get(ctx, req.ProductID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	x := product.FeatureVector
	if len(x) == 0 {
		x = s.extractor.Extract(product)
	}
	probe := &models.Product{FeatureVector: x}
	if !probe.HasValidFeatureVector() {
		return nil, ErrInvalidFeatureVector
	}

	if err := s.history.RecordAction(ctx, req.SessionID, req.ProductID, action); err != nil {
		return nil, err
	}

	model, err := s.bandit.ModelFor(ctx, req.SessionID)
	if err != nil {
		s.rollbackHistory(ctx, req)
		return nil, err
	}

	lambda := s.bandit.Regularization()
	reward := s.bandit.RewardFor(action)

	scoreBefore, _, _, err := model.Score(x, session.Alpha, lambda)
	if err != nil {
		s.rollbackHistory(ctx, req)
		return nil, err
	}
	if err := model.Update(x, reward); err != nil {
		s.rollbackHistory(ctx, req)
		return nil, err
	}
	scoreAfter, _, _, err := model.Score(x, session.Alpha, lambda)
	if err != nil {
		s.bandit.Invalidate(req.SessionID)
		s.rollbackHistory(ctx, req)
		return nil, err
	}

	interaction := &models.Interaction{
		SessionID:     req.SessionID,
		ProductID:     req.ProductID,
		Action:        action,
		Reward:        reward,
		FeatureVector: x,
		ScoreBefore:   scoreBefore,
		ScoreAfter:    scoreAfter,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.interactions.Insert(ctx, interaction); err != nil {
		// The model cache now disagrees with the log; drop it and undo the
		// history annotation so no partial state survives.
		s.bandit.Invalidate(req.SessionID)
		s.rollbackHistory(ctx, req)
		return nil, fmt.Errorf("failed to persist interaction: %w", err)
	}

	session.TotalInteractions++
	session.Alpha = s.bandit.NextAlpha(session.Alpha, session.TotalInteractions)
	if err := s.sessions.Update(ctx, session); err != nil {
		s.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to update session counters")
	}

	s.guard.MarkProcessed(req.SessionID, req.ProductID)
	s.cache.InvalidateSession(req.SessionID)
	s.metrics.FeedbackProcessed.WithLabelValues(string(action)).Inc()

	s.producer.PublishInteraction(ctx, interaction)

	return s.buildResponse(ctx, session, model, interaction)
}

// rollbackHistory best-effort clears the action annotation written before
// the failed write.
func (s *FeedbackService) rollbackHistory(ctx context.Context, req *models.FeedbackRequest) {
	if err := s.history.ClearAction(ctx, req.SessionID, req.ProductID); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": req.SessionID,
			"product_id": req.ProductID,
		}).Error("Failed to roll back history annotation")
	}
}

func (s *FeedbackService) buildResponse(ctx context.Context, session *models.Session, model *LinUCBModel, interaction *models.Interaction) (*models.FeedbackResponse, error) {
	lambda := s.bandit.Regularization()

	thetaNorm, err := model.ThetaNorm(lambda)
	if err != nil {
		return nil, err
	}
	positive, negative, err := s.bandit.Insights(model, 3)
	if err != nil {
		return nil, err
	}

	profile, err := s.diversity.Profile(ctx, session.SessionID, s.historyCfg.MaxEntries)
	if err != nil {
		return nil, err
	}

	return &models.FeedbackResponse{
		Success:   true,
		SessionID: session.SessionID,
		ProductID: interaction.ProductID,
		LearningUpdate: models.LearningUpdate{
			Action:            string(interaction.Action),
			Reward:            interaction.Reward,
			TotalInteractions: session.TotalInteractions,
			Alpha:             session.Alpha,
		},
		UserInsights: models.UserInsights{
			TopPositive:    positive,
			TopNegative:    negative,
			ConfidenceTier: s.bandit.ConfidenceTier(session.TotalInteractions, thetaNorm),
		},
		DiversityStats: profile.Stats(),
		ScoreEvolution: models.ScoreEvolution{
			ScoreBefore: interaction.ScoreBefore,
			ScoreAfter:  interaction.ScoreAfter,
			Delta:       interaction.ScoreAfter - interaction.ScoreBefore,
		},
		Timestamp: interaction.Timestamp,
	}, nil
}

// ProcessBatch applies up to the batch limit of feedbacks, detecting
// intra-batch duplicates first. With ignoreConflicts the first occurrence of
// each duplicated pair is still processed exactly once.
func (s *FeedbackService) ProcessBatch(ctx context.Context, req *models.FeedbackBatchRequest) (*models.FeedbackBatchResponse, bool) {
	conflicts := IntraBatchConflicts(req.Feedbacks)
	if len(conflicts) > 0 && !req.Options.IgnoreConflicts {
		return &models.FeedbackBatchResponse{
			Success:   false,
			Conflicts: conflicts,
		}, false
	}

	conflicted := make(map[int]bool, len(conflicts))
	for _, c := range conflicts {
		conflicted[c.Index] = true
	}

	resp := &models.FeedbackBatchResponse{Success: true}
	for i := range req.Feedbacks {
		item := &req.Feedbacks[i]
		if conflicted[i] {
			continue
		}

		// ignoreConflicts only relaxes intra-batch duplicates; the guard's
		// conflict windows apply to every item regardless.
		if guardConflict := s.guard.CheckFeedback(item.SessionID, item.ProductID, item.IdempotencyKey); guardConflict != nil {
			resp.FailedFeedbacks++
			resp.Results = append(resp.Results, models.FeedbackBatchItemResult{
				Index: i,
				Error: guardConflict.Kind,
			})
			resp.Errors = append(resp.Errors, fmt.Sprintf("index %d: %s", i, guardConflict.Kind))
			if !req.Options.ContinueOnError {
				break
			}
			continue
		}
		s.guard.RecordFeedback(item.SessionID, item.ProductID, models.Action(item.Action), item.IdempotencyKey)

		result, err := s.Process(ctx, item)
		if err != nil {
			resp.FailedFeedbacks++
			resp.Results = append(resp.Results, models.FeedbackBatchItemResult{
				Index: i,
				Error: err.Error(),
			})
			resp.Errors = append(resp.Errors, fmt.Sprintf("index %d: %s", i, err.Error()))
			if !req.Options.ContinueOnError {
				break
			}
			continue
		}
		resp.SuccessfulFeedbacks++
		resp.Results = append(resp.Results, models.FeedbackBatchItemResult{
			Index:    i,
			Success:  true,
			Response: result,
		})
	}

	resp.Success = resp.FailedFeedbacks == 0
	return resp, true
}
