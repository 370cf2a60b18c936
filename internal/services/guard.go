package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/pkg/models"
)

// Conflict kinds surfaced as 409s.
const (
	ConflictRapidFeedback    = "rapid_feedback"
	ConflictFeedback         = "feedback_conflict"
	ConflictDuplicateRequest = "duplicate_request"
	ConflictBatch            = "batch_conflict"
)

// GuardConflict is a guard rejection with enough detail for the 409 body.
type GuardConflict struct {
	Kind       string
	At         time.Time
	RetryAfter float64
	Suggestion string
}

func (c *GuardConflict) Info() *models.ConflictInfo {
	return &models.ConflictInfo{
		Type:              c.Kind,
		Timestamp:         c.At,
		Suggestion:        c.Suggestion,
		RetryAfterSeconds: c.RetryAfter,
	}
}

// ReplayedResponse is a response served verbatim from the idempotency cache.
type ReplayedResponse struct {
	Status      int
	Body        []byte
	ContentType string
	OriginalAt  time.Time
	ReplayCount int
}

type fingerprintRecord struct {
	at time.Time
}

type feedbackRecord struct {
	sessionID      uuid.UUID
	productID      string
	action         models.Action
	idempotencyKey string
	processed      bool
	at             time.Time
}

type idempotencyRecord struct {
	status      int
	body        []byte
	contentType string
	createdAt   time.Time
	replayCount int
}

// GuardService implements request deduplication and feedback conflict
// detection. All three tables are process-local; multi-replica deployments
// need session-affinity routing in front of this.
type GuardService struct {
	cfg    config.GuardConfig
	logger *logrus.Logger

	mu           sync.Mutex
	fingerprints map[string]*fingerprintRecord
	feedbacks    map[string]*feedbackRecord
	idempotency  map[string]*idempotencyRecord

	rejected int64
	replayed int64
	passed   int64

	stopOnce sync.Once
	stop     chan struct{}
}

func NewGuardService(cfg config.GuardConfig, logger *logrus.Logger) *GuardService {
	g := &GuardService{
		cfg:          cfg,
		logger:       logger,
		fingerprints: make(map[string]*fingerprintRecord),
		feedbacks:    make(map[string]*feedbackRecord),
		idempotency:  make(map[string]*idempotencyRecord),
		stop:         make(chan struct{}),
	}
	if cfg.CleanupEnabled {
		go g.cleanupLoop()
	}
	return g
}

// Fingerprint derives the general dedup hash for one request.
func Fingerprint(ip, method, path string, body []byte, query string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|", ip, method, path, query)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func feedbackKey(sessionID uuid.UUID, productID string) string {
	return sessionID.String() + "|" + productID
}

// Replay looks up a prior response for the idempotency key. On a hit the
// stored status and body are returned verbatim.
func (g *GuardService) Replay(key string) *ReplayedResponse {
	if key == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.idempotency[key]
	if !ok || time.Since(rec.createdAt) > g.cfg.IdempotencyWindow {
		return nil
	}
	rec.replayCount++
	g.replayed++
	return &ReplayedResponse{
		Status:      rec.status,
		Body:        rec.body,
		ContentType: rec.contentType,
		OriginalAt:  rec.createdAt,
		ReplayCount: rec.replayCount,
	}
}

// CheckFeedback applies the feedback conflict windows for one
// (session, product) pair. A nil return means the request may proceed; the
// caller must then RecordFeedback before processing.
func (g *GuardService) CheckFeedback(sessionID uuid.UUID, productID, idempotencyKey string) *GuardConflict {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.feedbacks[feedbackKey(sessionID, productID)]
	if !ok {
		return nil
	}

	// Matching idempotency keys are retries, handled by the replay path.
	if idempotencyKey != "" && rec.idempotencyKey == idempotencyKey {
		return nil
	}

	elapsed := time.Since(rec.at)
	switch {
	case elapsed < g.cfg.RapidWindow:
		g.rejected++
		return &GuardConflict{
			Kind:       ConflictRapidFeedback,
			At:         rec.at,
			RetryAfter: (g.cfg.RapidWindow - elapsed).Seconds(),
			Suggestion: "slow down, feedback for this product was just recorded",
		}
	case elapsed < g.cfg.SameActionWindow:
		g.rejected++
		return &GuardConflict{
			Kind:       ConflictFeedback,
			At:         rec.at,
			RetryAfter: (g.cfg.SameActionWindow - elapsed).Seconds(),
			Suggestion: "wait before changing your rating for this product",
		}
	}
	// Beyond the window the user may change their mind.
	return nil
}

// CheckFingerprint applies the general dedup window.
func (g *GuardService) CheckFingerprint(hash string) *GuardConflict {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.fingerprints[hash]
	if !ok {
		return nil
	}
	elapsed := time.Since(rec.at)
	if elapsed >= g.cfg.GeneralWindow {
		return nil
	}
	g.rejected++
	return &GuardConflict{
		Kind:       ConflictDuplicateRequest,
		At:         rec.at,
		RetryAfter: (g.cfg.GeneralWindow - elapsed).Seconds(),
		Suggestion: "identical request already received",
	}
}

// RecordPass registers the fingerprint once a request clears the guard.
func (g *GuardService) RecordPass(hash string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fingerprints[hash] = &fingerprintRecord{at: time.Now()}
	g.passed++
}

// RecordFeedback registers the feedback tuple with processed=false.
func (g *GuardService) RecordFeedback(sessionID uuid.UUID, productID string, action models.Action, idempotencyKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feedbacks[feedbackKey(sessionID, productID)] = &feedbackRecord{
		sessionID:      sessionID,
		productID:      productID,
		action:         action,
		idempotencyKey: idempotencyKey,
		at:             time.Now(),
	}
}

// MarkProcessed flips the feedback record once the mutation committed.
func (g *GuardService) MarkProcessed(sessionID uuid.UUID, productID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.feedbacks[feedbackKey(sessionID, productID)]; ok {
		rec.processed = true
	}
}

// StoreResponse caches the committed response under the idempotency key.
func (g *GuardService) StoreResponse(key string, status int, contentType string, body []byte) {
	if key == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idempotency[key] = &idempotencyRecord{
		status:      status,
		body:        append([]byte(nil), body...),
		contentType: contentType,
		createdAt:   time.Now(),
	}
}

// Status exposes the guard record for the inspection endpoint. The action in
// the path must match the recorded one.
func (g *GuardService) Status(sessionID uuid.UUID, productID string, action models.Action) *models.FeedbackStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.feedbacks[feedbackKey(sessionID, productID)]
	if !ok || rec.action != action {
		return &models.FeedbackStatus{Found: false}
	}
	return &models.FeedbackStatus{
		Found:          true,
		SessionID:      rec.sessionID,
		ProductID:      rec.productID,
		Action:         string(rec.action),
		Processed:      rec.processed,
		RecordedAt:     rec.at,
		IdempotencyKey: rec.idempotencyKey,
	}
}

// IntraBatchConflicts reports duplicate (session, product) pairs inside one
// batch, indexed by position.
func IntraBatchConflicts(items []models.FeedbackRequest) []models.BatchConflict {
	seen := make(map[string]int)
	var conflicts []models.BatchConflict
	for i, item := range items {
		key := feedbackKey(item.SessionID, item.ProductID)
		if first, dup := seen[key]; dup {
			conflicts = append(conflicts, models.BatchConflict{
				Index:         i,
				ConflictsWith: first,
				ProductID:     item.ProductID,
				Message:       fmt.Sprintf("duplicate feedback for product %s at index %d", item.ProductID, first),
			})
			continue
		}
		seen[key] = i
	}
	return conflicts
}

// Stats reports table sizes and counters for the stats endpoint.
func (g *GuardService) Stats() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]interface{}{
		"fingerprints":      len(g.fingerprints),
		"feedback_records":  len(g.feedbacks),
		"idempotency_keys":  len(g.idempotency),
		"rejected":          g.rejected,
		"idempotent_replay": g.replayed,
		"passed":            g.passed,
	}
}

// Reset clears all tables. Dev-only endpoint.
func (g *GuardService) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fingerprints = make(map[string]*fingerprintRecord)
	g.feedbacks = make(map[string]*feedbackRecord)
	g.idempotency = make(map[string]*idempotencyRecord)
}

// Stop terminates the cleanup loop.
func (g *GuardService) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *GuardService) cleanupLoop() {
	ticker := time.NewTicker(g.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.cleanup()
		case <-g.stop:
			return
		}
	}
}

// cleanup purges expired entries. Feedback records get a doubled window so
// the status endpoint can still answer shortly after expiry.
func (g *GuardService) cleanup() {
	now := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	for hash, rec := range g.fingerprints {
		if now.Sub(rec.at) > g.cfg.GeneralWindow {
			delete(g.fingerprints, hash)
		}
	}
	for key, rec := range g.feedbacks {
		if now.Sub(rec.at) > 2*g.cfg.SameActionWindow {
			delete(g.feedbacks, key)
		}
	}
	for key, rec := range g.idempotency {
		if now.Sub(rec.createdAt) > g.cfg.IdempotencyWindow {
			delete(g.idempotency, key)
		}
	}
}

// CleanupNow runs one cleanup pass. Exposed for tests.
func (g *GuardService) CleanupNow(_ context.Context) {
	g.cleanup()
}
