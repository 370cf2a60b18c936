package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/messaging"
	"github.com/threadpick/threadpick/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testBanditConfig() config.BanditConfig {
	return config.BanditConfig{
		Alpha:          1.0,
		AlphaMin:       0.05,
		AlphaMax:       2.0,
		AlphaDecay:     0.95,
		DecayAfter:     10,
		Dimensions:     models.FeatureDimensions,
		Regularization: 0.01,
		Rewards: config.RewardsConfig{
			Love:    2.0,
			Like:    1.0,
			Neutral: 0.0,
			Skip:    0.0,
			Dislike: -1.0,
		},
	}
}

func testDiversityConfig() config.DiversityConfig {
	return config.DiversityConfig{
		ExclusionWindow:  20,
		LovedWindow:      10,
		CategoryLimit:    3,
		ColorLimit:       2,
		BrandLimit:       3,
		CandidateSample:  200,
		TopK:             5,
		CategoryBonus:    0.20,
		ColorBonus:       0.15,
		BrandBonus:       0.10,
		ExplorationBase:  0.30,
		ExplorationStep:  0.01,
		ExplorationFloor: 0.05,
	}
}

func testGuardConfig() config.GuardConfig {
	return config.GuardConfig{
		GeneralWindow:     30 * time.Second,
		RapidWindow:       5 * time.Second,
		SameActionWindow:  60 * time.Second,
		IdempotencyWindow: 24 * time.Hour,
		CleanupInterval:   time.Minute,
		CleanupEnabled:    false,
	}
}

type testStack struct {
	repos *Repositories

	sessions  *SessionService
	bandit    *BanditService
	diversity *DiversityController
	history   *HistoryService
	guard     *GuardService
	cache     *RecommendationCache
	recommend *RecommendationService
	feedback  *FeedbackService
}

// newTestStack wires the full service graph over the in-memory repositories.
func newTestStack(t *testing.T) *testStack {
	t.Helper()

	logger := testLogger()
	repos := NewRepositories(nil)

	banditCfg := testBanditConfig()
	historyCfg := config.HistoryConfig{MaxEntries: 100}

	extractor := NewFeatureExtractor()
	metrics := NewMetrics(prometheus.NewRegistry())
	sessions := NewSessionService(banditCfg, repos.Sessions, logger)
	bandit := NewBanditService(banditCfg, repos.Interactions, logger)
	diversity := NewDiversityController(testDiversityConfig(), repos.History, repos.Products, logger)
	history := NewHistoryService(historyCfg, repos.History, logger)
	guard := NewGuardService(testGuardConfig(), logger)
	t.Cleanup(guard.Stop)
	cache := NewRecommendationCache(config.CacheConfig{Enabled: true, TTL: 5 * time.Minute, MaxEntries: 1000})
	producer := messaging.NewProducer(config.KafkaConfig{}, logger)

	recommend := NewRecommendationService(
		historyCfg, sessions, bandit, diversity, history, cache, extractor,
		repos.Products, repos.Interactions, metrics, logger,
	)
	feedback := NewFeedbackService(
		historyCfg, sessions, bandit, diversity, history, guard, cache,
		extractor, producer, repos.Products, repos.Interactions, metrics, logger,
	)

	return &testStack{
		repos:     repos,
		sessions:  sessions,
		bandit:    bandit,
		diversity: diversity,
		history:   history,
		guard:     guard,
		cache:     cache,
		recommend: recommend,
		feedback:  feedback,
	}
}

func (ts *testStack) newSession(t *testing.T) *models.Session {
	t.Helper()
	session, err := ts.sessions.Create(context.Background(), &models.SessionCreateRequest{UserID: "user-1"})
	require.NoError(t, err)
	return session
}

// seedCatalog inserts n products spread across categories, colors, and brands.
func (ts *testStack) seedCatalog(t *testing.T, n int) []*models.Product {
	t.Helper()
	categories := []string{"tops", "bottoms", "dresses", "outerwear", "shoes"}
	colors := []string{"black", "white", "grey", "blue", "red", "green", "brown", "pink"}
	styles := []string{"classic", "trendy", "bohemian", "minimalist", "vintage"}

	extractor := NewFeatureExtractor()
	out := make([]*models.Product, 0, n)
	for i := 0; i < n; i++ {
		p := &models.Product{
			ProductID:    fmt.Sprintf("p-%03d", i),
			Name:         fmt.Sprintf("Item %d", i),
			Brand:        fmt.Sprintf("brand-%d", i%4),
			CategoryMain: categories[i%len(categories)],
			PrimaryColor: colors[i%len(colors)],
			Occasion:     "casual",
			Season:       "summer",
			Style:        styles[i%len(styles)],
			Price:        float64(20 + i),
		}
		p.FeatureVector = extractor.Extract(p)
		require.NoError(t, ts.repos.Products.Upsert(context.Background(), p))
		out = append(out, p)
	}
	return out
}
