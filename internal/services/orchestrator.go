package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/pkg/models"
)

// Recoverable recommendation errors, mapped to status codes by the handlers.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session inactive")
	ErrNoCandidates    = errors.New("no candidates match the current filters")
)

// RecommendationService runs the full recommend pipeline: resolve session,
// derive diversity rules, sample candidates, score with the session's model,
// pick stochastically, and record what was shown.
type RecommendationService struct {
	historyCfg config.HistoryConfig

	sessions  *SessionService
	bandit    *BanditService
	diversity *DiversityController
	history   *HistoryService
	cache     *RecommendationCache
	extractor *FeatureExtractor

	products     database.ProductRepository
	interactions database.InteractionRepository
	metrics      *Metrics
	logger       *logrus.Logger
}

func NewRecommendationService(
	historyCfg config.HistoryConfig,
	sessions *SessionService,
	bandit *BanditService,
	diversity *DiversityController,
	history *HistoryService,
	cache *RecommendationCache,
	extractor *FeatureExtractor,
	products database.ProductRepository,
	interactions database.InteractionRepository,
	metrics *Metrics,
	logger *logrus.Logger,
) *RecommendationService {
	return &RecommendationService{
		historyCfg:   historyCfg,
		sessions:     sessions,
		bandit:       bandit,
		diversity:    diversity,
		history:      history,
		cache:        cache,
		extractor:    extractor,
		products:     products,
		interactions: interactions,
		metrics:      metrics,
		logger:       logger,
	}
}

type scoredCandidate struct {
	product          *models.Product
	base             float64
	ucb              float64
	diversityBonus   float64
	explorationBonus float64
	final            float64
}

// Recommend produces count recommendations for the session. Writes to the
// session's history, so it holds the per-session lock for its full span.
func (s *RecommendationService) Recommend(ctx context.Context, sessionID uuid.UUID, filters models.RecommendationFilters, count int) (*models.RecommendationResponse, error) {
	if count < 1 {
		count = 1
	}

	lock := s.sessions.Lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionInactive
	}

	historyLength, err := s.history.Count(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cacheKey := s.cache.Key(sessionID, filters, count, historyLength)
	if cached := s.cache.Get(cacheKey); cached != nil {
		s.metrics.CacheHits.Inc()
		s.metrics.RecommendationsServed.WithLabelValues("hit").Inc()
		hit := *cached
		hit.CacheHit = true
		return &hit, nil
	}
	s.metrics.CacheMisses.Inc()

	profile, err := s.diversity.Profile(ctx, sessionID, s.historyCfg.MaxEntries)
	if err != nil {
		return nil, err
	}

	candidates, err := s.sampleCandidates(ctx, filters, profile)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	model, err := s.bandit.ModelFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.metrics.CandidatePoolSize.Observe(float64(len(candidates)))
	scoringStart := time.Now()
	scored := s.scoreCandidates(candidates, model, session, profile)
	s.metrics.ScoringDuration.Observe(time.Since(scoringStart).Seconds())
	if len(scored) == 0 {
		return nil, ErrNoCandidates
	}

	selected := s.selectCandidates(scored, count)
	partial := len(selected) < count

	items := make([]models.RecommendedItem, 0, len(selected))
	shownIDs := make([]string, 0, len(selected))
	for _, c := range selected {
		items = append(items, models.RecommendedItem{
			Product:          c.product,
			ConfidenceScore:  c.final,
			BaseScore:        c.base,
			DiversityBonus:   c.diversityBonus,
			ExplorationBonus: c.explorationBonus,
			Algorithm:        algorithmName,
			Reasoning:        s.reasoning(session, c),
		})
		shownIDs = append(shownIDs, c.product.ProductID)
	}

	if err := s.history.RecordShown(ctx, sessionID, shownIDs); err != nil {
		return nil, err
	}

	interactions, err := s.interactions.BySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	stats, err := s.history.Stats(ctx, sessionID, interactions)
	if err != nil {
		return nil, err
	}

	info := profile.Info()
	info.CandidatePoolSize = len(candidates)

	resp := &models.RecommendationResponse{
		Success:        true,
		SessionID:      sessionID,
		UserStats:      stats,
		DiversityInfo:  info,
		FiltersApplied: filters,
		Partial:        partial,
		GeneratedAt:    time.Now().UTC(),
	}
	if count == 1 && len(items) == 1 {
		resp.Recommendation = &items[0]
	} else {
		resp.Recommendations = items
	}

	s.cache.Put(cacheKey, resp)
	s.metrics.RecommendationsServed.WithLabelValues("miss").Inc()
	return resp, nil
}

// sampleCandidates builds the combined predicate and samples the pool,
// retrying once with jittered backoff on a transient catalog failure.
func (s *RecommendationService) sampleCandidates(ctx context.Context, filters models.RecommendationFilters, profile *DiversityProfile) ([]*models.Product, error) {
	query := models.CandidateQuery{
		MinPrice:        filters.MinPrice,
		MaxPrice:        filters.MaxPrice,
		Category:        filters.Category,
		ExcludeIDs:      profile.ExcludeIDs,
		AvoidCategories: profile.AvoidCategories,
		AvoidColors:     profile.AvoidColors,
		AvoidBrands:     profile.AvoidBrands,
		SampleSize:      s.diversity.SampleSize(),
	}

	candidates, err := s.products.Candidates(ctx, query)
	if err != nil {
		s.logger.WithError(err).Warn("Candidate query failed, retrying once")
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
		candidates, err = s.products.Candidates(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to sample candidates: %w", err)
		}
	}
	return candidates, nil
}

// scoreCandidates runs the UCB decomposition for every candidate with a valid
// feature vector. Invalid vectors are dropped with a warning.
func (s *RecommendationService) scoreCandidates(candidates []*models.Product, model *LinUCBModel, session *models.Session, profile *DiversityProfile) []scoredCandidate {
	explorationBonus := s.diversity.ExplorationBonus(session.TotalInteractions)
	lambda := s.bandit.Regularization()

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, p := range candidates {
		x := p.FeatureVector
		if len(x) == 0 {
			x = s.extractor.Extract(p)
		}
		probe := &models.Product{FeatureVector: x}
		if !probe.HasValidFeatureVector() {
			s.logger.WithField("product_id", p.ProductID).Warn("Dropping candidate with invalid feature vector")
			continue
		}

		ucb, base, _, err := model.Score(x, session.Alpha, lambda)
		if err != nil {
			s.logger.WithError(err).WithField("product_id", p.ProductID).Warn("Failed to score candidate")
			continue
		}

		diversityBonus := s.diversity.Bonus(p, profile)
		scored = append(scored, scoredCandidate{
			product:          p,
			base:             base,
			ucb:              ucb,
			diversityBonus:   diversityBonus,
			explorationBonus: explorationBonus,
			final:            ucb + diversityBonus + explorationBonus,
		})
	}
	return scored
}

// selectCandidates sorts by final score and draws count distinct winners via
// the stochastic top-K pick.
func (s *RecommendationService) selectCandidates(scored []scoredCandidate, count int) []scoredCandidate {
	sort.Slice(scored, func(i, j int) bool { return scored[i].final > scored[j].final })

	var selected []scoredCandidate
	for len(selected) < count && len(scored) > 0 {
		idx := s.diversity.PickFromTop(len(scored))
		selected = append(selected, scored[idx])
		scored = append(scored[:idx], scored[idx+1:]...)
	}
	return selected
}

func (s *RecommendationService) reasoning(session *models.Session, c scoredCandidate) string {
	if session.TotalInteractions == 0 {
		return "exploring your taste, rate a few items to sharpen picks"
	}
	switch {
	case c.diversityBonus > 0 && c.base > 0:
		return fmt.Sprintf("matches your learned preferences after %d ratings, with a fresh twist", session.TotalInteractions)
	case c.base > 0:
		return fmt.Sprintf("matches your learned preferences after %d ratings", session.TotalInteractions)
	default:
		return "broadening the selection beyond what you have rated so far"
	}
}

// DebugScore reports the UCB decomposition for one (session, product) pair.
// Scoring touches the model's cached inverse, so it runs under the session
// lock like every other model access.
func (s *RecommendationService) DebugScore(ctx context.Context, sessionID uuid.UUID, productID string) (map[string]interface{}, error) {
	lock := s.sessions.Lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	model, err := s.bandit.ModelFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	x := product.FeatureVector
	if len(x) == 0 {
		x = s.extractor.Extract(product)
	}
	ucb, base, width, err := model.Score(x, session.Alpha, s.bandit.Regularization())
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"session_id":      sessionID,
		"product_id":      productID,
		"alpha":           session.Alpha,
		"expected_reward": base,
		"confidence":      session.Alpha * width,
		"ucb":             ucb,
	}, nil
}

// InvalidateSession drops all cached responses and the fitted model for the
// session.
func (s *RecommendationService) InvalidateSession(sessionID uuid.UUID) {
	s.bandit.Invalidate(sessionID)
	s.cache.InvalidateSession(sessionID)
}
