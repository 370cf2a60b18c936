package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/pkg/models"
)

func newTestCache(cfg config.CacheConfig) *RecommendationCache {
	return NewRecommendationCache(cfg)
}

func cachedResponse(sessionID uuid.UUID) *models.RecommendationResponse {
	return &models.RecommendationResponse{
		Success:     true,
		SessionID:   sessionID,
		GeneratedAt: time.Now().UTC(),
	}
}

func TestRecommendationCache_Key(t *testing.T) {
	c := newTestCache(config.CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: 10})
	sessionID := uuid.New()
	min := 10.0

	base := c.Key(sessionID, models.RecommendationFilters{}, 1, 0)
	assert.Equal(t, base, c.Key(sessionID, models.RecommendationFilters{}, 1, 0), "deterministic")

	assert.NotEqual(t, base, c.Key(sessionID, models.RecommendationFilters{MinPrice: &min}, 1, 0), "filters change the key")
	assert.NotEqual(t, base, c.Key(sessionID, models.RecommendationFilters{}, 2, 0), "count changes the key")
	assert.NotEqual(t, base, c.Key(sessionID, models.RecommendationFilters{}, 1, 5), "history length changes the key")
	assert.NotEqual(t, base, c.Key(uuid.New(), models.RecommendationFilters{}, 1, 0), "session changes the key")

	assert.Contains(t, base, sessionID.String()+":", "key is prefixed for per-session invalidation")
}

func TestRecommendationCache_GetPut(t *testing.T) {
	c := newTestCache(config.CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: 10})
	sessionID := uuid.New()
	key := c.Key(sessionID, models.RecommendationFilters{}, 1, 0)

	assert.Nil(t, c.Get(key), "miss on empty cache")

	resp := cachedResponse(sessionID)
	c.Put(key, resp)
	got := c.Get(key)
	require.NotNil(t, got)
	assert.Equal(t, sessionID, got.SessionID)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
}

func TestRecommendationCache_TTLExpiry(t *testing.T) {
	c := newTestCache(config.CacheConfig{Enabled: true, TTL: 20 * time.Millisecond, MaxEntries: 10})
	sessionID := uuid.New()
	key := c.Key(sessionID, models.RecommendationFilters{}, 1, 0)

	c.Put(key, cachedResponse(sessionID))
	require.NotNil(t, c.Get(key))

	time.Sleep(30 * time.Millisecond)
	assert.Nil(t, c.Get(key), "expired entries miss")
}

func TestRecommendationCache_LRUEviction(t *testing.T) {
	c := newTestCache(config.CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: 2})

	s1, s2, s3 := uuid.New(), uuid.New(), uuid.New()
	k1 := c.Key(s1, models.RecommendationFilters{}, 1, 0)
	k2 := c.Key(s2, models.RecommendationFilters{}, 1, 0)
	k3 := c.Key(s3, models.RecommendationFilters{}, 1, 0)

	c.Put(k1, cachedResponse(s1))
	c.Put(k2, cachedResponse(s2))

	// Touch k1 so k2 becomes the eviction victim.
	require.NotNil(t, c.Get(k1))
	c.Put(k3, cachedResponse(s3))

	assert.NotNil(t, c.Get(k1))
	assert.Nil(t, c.Get(k2), "least recently used entry evicted")
	assert.NotNil(t, c.Get(k3))
	assert.Equal(t, int64(1), c.Stats()["evictions"])
}

func TestRecommendationCache_InvalidateSession(t *testing.T) {
	c := newTestCache(config.CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: 10})
	target, other := uuid.New(), uuid.New()

	k1 := c.Key(target, models.RecommendationFilters{}, 1, 0)
	k2 := c.Key(target, models.RecommendationFilters{}, 3, 0)
	k3 := c.Key(other, models.RecommendationFilters{}, 1, 0)
	c.Put(k1, cachedResponse(target))
	c.Put(k2, cachedResponse(target))
	c.Put(k3, cachedResponse(other))

	c.InvalidateSession(target)

	assert.Nil(t, c.Get(k1))
	assert.Nil(t, c.Get(k2))
	assert.NotNil(t, c.Get(k3), "other sessions untouched")
}

func TestRecommendationCache_Clear(t *testing.T) {
	c := newTestCache(config.CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: 10})
	sessionID := uuid.New()
	key := c.Key(sessionID, models.RecommendationFilters{}, 1, 0)

	c.Put(key, cachedResponse(sessionID))
	c.Clear()
	assert.Nil(t, c.Get(key))
	assert.Equal(t, 0, c.Stats()["entries"])
}

func TestRecommendationCache_Disabled(t *testing.T) {
	c := newTestCache(config.CacheConfig{Enabled: false, TTL: time.Minute, MaxEntries: 10})
	sessionID := uuid.New()
	key := c.Key(sessionID, models.RecommendationFilters{}, 1, 0)

	c.Put(key, cachedResponse(sessionID))
	assert.Nil(t, c.Get(key))
}
