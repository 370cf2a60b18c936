package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/internal/messaging"
)

// Repositories groups the storage interfaces the services run against.
type Repositories struct {
	Products     database.ProductRepository
	Sessions     database.SessionRepository
	History      database.HistoryRepository
	Interactions database.InteractionRepository
}

// NewRepositories selects the Postgres implementations when a pool is
// available and the in-memory ones otherwise.
func NewRepositories(db *database.Database) *Repositories {
	if db != nil && db.PG != nil {
		return &Repositories{
			Products:     database.NewProductRepository(db.PG),
			Sessions:     database.NewSessionRepository(db.PG),
			History:      database.NewHistoryRepository(db.PG),
			Interactions: database.NewInteractionRepository(db.PG),
		}
	}
	return &Repositories{
		Products:     database.NewMemoryProductRepository(),
		Sessions:     database.NewMemorySessionRepository(),
		History:      database.NewMemoryHistoryRepository(),
		Interactions: database.NewMemoryInteractionRepository(),
	}
}

type Services struct {
	Repos *Repositories

	Extractor      *FeatureExtractor
	Session        *SessionService
	Bandit         *BanditService
	Diversity      *DiversityController
	History        *HistoryService
	Guard          *GuardService
	RateLimit      *RateLimitService
	Cache          *RecommendationCache
	Recommendation *RecommendationService
	Feedback       *FeedbackService
	Health         *HealthService
	Metrics        *Metrics
	Producer       *messaging.Producer
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	repos := NewRepositories(db)

	extractor := NewFeatureExtractor()
	metrics := NewMetrics(prometheus.DefaultRegisterer)
	sessionService := NewSessionService(cfg.Bandit, repos.Sessions, logger)
	banditService := NewBanditService(cfg.Bandit, repos.Interactions, logger)
	diversityController := NewDiversityController(cfg.Diversity, repos.History, repos.Products, logger)
	historyService := NewHistoryService(cfg.History, repos.History, logger)
	guardService := NewGuardService(cfg.Guard, logger)
	cache := NewRecommendationCache(cfg.Cache)
	producer := messaging.NewProducer(cfg.Kafka, logger)

	var redisClient *redis.Client
	if db != nil {
		redisClient = db.Redis
	}
	rateLimitService := NewRateLimitService(cfg.RateLimit, logger, redisClient)

	recommendationService := NewRecommendationService(
		cfg.History, sessionService, banditService, diversityController,
		historyService, cache, extractor, repos.Products, repos.Interactions,
		metrics, logger,
	)
	feedbackService := NewFeedbackService(
		cfg.History, sessionService, banditService, diversityController,
		historyService, guardService, cache, extractor, producer,
		repos.Products, repos.Interactions, metrics, logger,
	)
	healthService := NewHealthService(logger, db)

	return &Services{
		Repos:          repos,
		Extractor:      extractor,
		Session:        sessionService,
		Bandit:         banditService,
		Diversity:      diversityController,
		History:        historyService,
		Guard:          guardService,
		RateLimit:      rateLimitService,
		Cache:          cache,
		Recommendation: recommendationService,
		Feedback:       feedbackService,
		Health:         healthService,
		Metrics:        metrics,
		Producer:       producer,
	}, nil
}

// Close releases background resources owned by the service layer.
func (s *Services) Close() error {
	s.Guard.Stop()
	return s.Producer.Close()
}
