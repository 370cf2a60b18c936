package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/pkg/models"
)

func newGuard(t *testing.T, cfg config.GuardConfig) *GuardService {
	t.Helper()
	g := NewGuardService(cfg, testLogger())
	t.Cleanup(g.Stop)
	return g
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("10.0.0.1", "POST", "/api/feedback", []byte(`{"x":1}`), "")
	b := Fingerprint("10.0.0.1", "POST", "/api/feedback", []byte(`{"x":1}`), "")
	assert.Equal(t, a, b, "deterministic")
	assert.Len(t, a, 32)

	assert.NotEqual(t, a, Fingerprint("10.0.0.2", "POST", "/api/feedback", []byte(`{"x":1}`), ""), "ip matters")
	assert.NotEqual(t, a, Fingerprint("10.0.0.1", "POST", "/api/feedback", []byte(`{"x":2}`), ""), "body matters")
	assert.NotEqual(t, a, Fingerprint("10.0.0.1", "POST", "/api/feedback", []byte(`{"x":1}`), "q=1"), "query matters")
}

func TestGuardService_CheckFingerprint(t *testing.T) {
	g := newGuard(t, testGuardConfig())

	hash := Fingerprint("10.0.0.1", "POST", "/api/feedback", []byte("body"), "")
	assert.Nil(t, g.CheckFingerprint(hash), "first sighting passes")

	g.RecordPass(hash)
	conflict := g.CheckFingerprint(hash)
	require.NotNil(t, conflict)
	assert.Equal(t, ConflictDuplicateRequest, conflict.Kind)
	assert.Greater(t, conflict.RetryAfter, 0.0)
	assert.LessOrEqual(t, conflict.RetryAfter, 30.0)

	assert.Nil(t, g.CheckFingerprint("other-hash"))
}

func TestGuardService_FingerprintWindowExpires(t *testing.T) {
	cfg := testGuardConfig()
	cfg.GeneralWindow = 20 * time.Millisecond
	g := newGuard(t, cfg)

	hash := Fingerprint("10.0.0.1", "POST", "/api/feedback", []byte("body"), "")
	g.RecordPass(hash)
	require.NotNil(t, g.CheckFingerprint(hash))

	time.Sleep(30 * time.Millisecond)
	assert.Nil(t, g.CheckFingerprint(hash), "expired fingerprints pass again")
}

func TestGuardService_CheckFeedbackRapid(t *testing.T) {
	g := newGuard(t, testGuardConfig())
	sessionID := uuid.New()

	assert.Nil(t, g.CheckFeedback(sessionID, "p-1", ""))
	g.RecordFeedback(sessionID, "p-1", models.ActionLike, "")

	// Any action for the same pair inside the rapid window conflicts,
	// including a changed one.
	conflict := g.CheckFeedback(sessionID, "p-1", "")
	require.NotNil(t, conflict)
	assert.Equal(t, ConflictRapidFeedback, conflict.Kind)
	assert.Greater(t, conflict.RetryAfter, 0.0)
	assert.LessOrEqual(t, conflict.RetryAfter, 5.0)

	assert.Nil(t, g.CheckFeedback(sessionID, "p-2", ""), "other products unaffected")
	assert.Nil(t, g.CheckFeedback(uuid.New(), "p-1", ""), "other sessions unaffected")
}

func TestGuardService_CheckFeedbackSameWindow(t *testing.T) {
	cfg := testGuardConfig()
	cfg.RapidWindow = 10 * time.Millisecond
	cfg.SameActionWindow = 200 * time.Millisecond
	g := newGuard(t, cfg)
	sessionID := uuid.New()

	g.RecordFeedback(sessionID, "p-1", models.ActionDislike, "")
	time.Sleep(30 * time.Millisecond)

	conflict := g.CheckFeedback(sessionID, "p-1", "")
	require.NotNil(t, conflict)
	assert.Equal(t, ConflictFeedback, conflict.Kind)
	assert.Greater(t, conflict.RetryAfter, 0.0)
	assert.Less(t, conflict.RetryAfter, 0.2)

	time.Sleep(200 * time.Millisecond)
	assert.Nil(t, g.CheckFeedback(sessionID, "p-1", ""), "beyond the window the user may change their mind")
}

func TestGuardService_SameIdempotencyKeyPasses(t *testing.T) {
	g := newGuard(t, testGuardConfig())
	sessionID := uuid.New()

	g.RecordFeedback(sessionID, "p-1", models.ActionLove, "key-1")

	assert.Nil(t, g.CheckFeedback(sessionID, "p-1", "key-1"), "matching key is a retry")
	require.NotNil(t, g.CheckFeedback(sessionID, "p-1", "key-2"), "different key conflicts")
	require.NotNil(t, g.CheckFeedback(sessionID, "p-1", ""), "missing key conflicts")
}

func TestGuardService_IdempotentReplay(t *testing.T) {
	g := newGuard(t, testGuardConfig())

	assert.Nil(t, g.Replay("unknown"))
	assert.Nil(t, g.Replay(""), "empty key never replays")

	body := []byte(`{"success":true}`)
	g.StoreResponse("key-1", http.StatusOK, "application/json", body)

	replay := g.Replay("key-1")
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusOK, replay.Status)
	assert.Equal(t, body, replay.Body)
	assert.Equal(t, "application/json", replay.ContentType)
	assert.Equal(t, 1, replay.ReplayCount)

	assert.Equal(t, 2, g.Replay("key-1").ReplayCount, "replay count accumulates")
}

func TestGuardService_ReplayWindowExpires(t *testing.T) {
	cfg := testGuardConfig()
	cfg.IdempotencyWindow = 20 * time.Millisecond
	g := newGuard(t, cfg)

	g.StoreResponse("key-1", http.StatusOK, "application/json", []byte("{}"))
	time.Sleep(30 * time.Millisecond)
	assert.Nil(t, g.Replay("key-1"))
}

func TestGuardService_Status(t *testing.T) {
	g := newGuard(t, testGuardConfig())
	sessionID := uuid.New()

	assert.False(t, g.Status(sessionID, "p-1", models.ActionLove).Found)

	g.RecordFeedback(sessionID, "p-1", models.ActionLove, "key-9")
	status := g.Status(sessionID, "p-1", models.ActionLove)
	require.True(t, status.Found)
	assert.Equal(t, "love", status.Action)
	assert.False(t, status.Processed)
	assert.Equal(t, "key-9", status.IdempotencyKey)

	assert.False(t, g.Status(sessionID, "p-1", models.ActionLike).Found, "action must match the record")

	g.MarkProcessed(sessionID, "p-1")
	assert.True(t, g.Status(sessionID, "p-1", models.ActionLove).Processed)
}

func TestIntraBatchConflicts(t *testing.T) {
	sessionID := uuid.New()
	other := uuid.New()

	items := []models.FeedbackRequest{
		{SessionID: sessionID, ProductID: "p-1", Action: "like"},
		{SessionID: sessionID, ProductID: "p-2", Action: "love"},
		{SessionID: sessionID, ProductID: "p-1", Action: "dislike"},
		{SessionID: other, ProductID: "p-1", Action: "like"},
	}

	conflicts := IntraBatchConflicts(items)
	require.Len(t, conflicts, 1)
	assert.Equal(t, 2, conflicts[0].Index)
	assert.Equal(t, 0, conflicts[0].ConflictsWith)
	assert.Equal(t, "p-1", conflicts[0].ProductID)

	assert.Empty(t, IntraBatchConflicts(items[:2]))
}

func TestGuardService_Cleanup(t *testing.T) {
	cfg := testGuardConfig()
	cfg.GeneralWindow = 10 * time.Millisecond
	cfg.SameActionWindow = 10 * time.Millisecond
	cfg.IdempotencyWindow = 10 * time.Millisecond
	g := newGuard(t, cfg)
	sessionID := uuid.New()

	g.RecordPass("hash-1")
	g.RecordFeedback(sessionID, "p-1", models.ActionLike, "")
	g.StoreResponse("key-1", http.StatusOK, "application/json", []byte("{}"))

	// Feedback records survive one window past expiry for the status endpoint.
	time.Sleep(15 * time.Millisecond)
	g.CleanupNow(context.Background())
	stats := g.Stats()
	assert.Equal(t, 0, stats["fingerprints"])
	assert.Equal(t, 1, stats["feedback_records"])
	assert.Equal(t, 0, stats["idempotency_keys"])

	time.Sleep(15 * time.Millisecond)
	g.CleanupNow(context.Background())
	assert.Equal(t, 0, g.Stats()["feedback_records"])
}

func TestGuardService_StatsAndReset(t *testing.T) {
	g := newGuard(t, testGuardConfig())
	sessionID := uuid.New()

	g.RecordPass("hash-1")
	g.RecordFeedback(sessionID, "p-1", models.ActionLike, "")
	require.NotNil(t, g.CheckFeedback(sessionID, "p-1", ""))

	stats := g.Stats()
	assert.Equal(t, 1, stats["fingerprints"])
	assert.Equal(t, 1, stats["feedback_records"])
	assert.Equal(t, int64(1), stats["rejected"])
	assert.Equal(t, int64(1), stats["passed"])

	g.Reset()
	stats = g.Stats()
	assert.Equal(t, 0, stats["fingerprints"])
	assert.Equal(t, 0, stats["feedback_records"])
}
