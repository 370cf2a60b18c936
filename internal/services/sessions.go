package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/pkg/models"
)

const algorithmName = "LinUCB"

// SessionService creates and loads sessions and serializes writers per
// session. Any operation that mutates session state must hold the session's
// lock for its full read-modify-write span.
type SessionService struct {
	cfg      config.BanditConfig
	sessions database.SessionRepository
	logger   *logrus.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewSessionService(cfg config.BanditConfig, sessions database.SessionRepository, logger *logrus.Logger) *SessionService {
	return &SessionService{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// Lock returns the mutex serializing writers for one session.
func (s *SessionService) Lock(sessionID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Create starts a fresh session with the configured initial alpha.
func (s *SessionService) Create(ctx context.Context, req *models.SessionCreateRequest) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		SessionID:  uuid.New(),
		UserID:     req.UserID,
		Alpha:      s.cfg.Alpha,
		Dimensions: s.cfg.Dimensions,
		Status:     models.SessionActive,
		Context:    req.Context,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.SessionID,
		"user_id":    session.UserID,
		"alpha":      session.Alpha,
	}).Info("Session created")
	return session, nil
}

// Get loads a session. Callers map database.ErrNotFound to a 404.
func (s *SessionService) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// Update persists mutated session counters.
func (s *SessionService) Update(ctx context.Context, session *models.Session) error {
	return s.sessions.Update(ctx, session)
}

// Configuration describes the session's bandit setup for the create response.
func (s *SessionService) Configuration(session *models.Session) models.SessionConfiguration {
	return models.SessionConfiguration{
		Alpha:               session.Alpha,
		FeatureDimensions:   session.Dimensions,
		ExplorationStrategy: "ucb",
	}
}
