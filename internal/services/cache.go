package services

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/pkg/models"
)

// RecommendationCache is a process-local LRU with TTL expiry. Keys include
// the session's history length, so any feedback that grows the log changes
// the key and stale entries simply stop being addressable.
type RecommendationCache struct {
	cfg config.CacheConfig

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	key       string
	response  *models.RecommendationResponse
	expiresAt time.Time
}

func NewRecommendationCache(cfg config.CacheConfig) *RecommendationCache {
	return &RecommendationCache{
		cfg:     cfg,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Key derives the cache key from everything that determines the response.
// The session id prefixes the hash so per-session invalidation can match.
func (c *RecommendationCache) Key(sessionID uuid.UUID, filters models.RecommendationFilters, count, historyLength int) string {
	payload, _ := json.Marshal(filters)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d", sessionID, payload, count, historyLength)))
	return sessionID.String() + ":" + hex.EncodeToString(sum[:16])
}

// Get returns a cached response, or nil on a miss or expired entry.
func (c *RecommendationCache) Get(key string) *models.RecommendationResponse {
	if !c.cfg.Enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return nil
	}
	c.order.MoveToFront(el)
	c.hits++
	return entry.response
}

// Put stores a response, evicting the least recently used entry at capacity.
func (c *RecommendationCache) Put(key string, resp *models.RecommendationResponse) {
	if !c.cfg.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.response = resp
		entry.expiresAt = time.Now().Add(c.cfg.TTL)
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.cfg.MaxEntries && c.order.Len() > 0 {
		c.removeLocked(c.order.Back())
		c.evictions++
	}

	el := c.order.PushFront(&cacheEntry{
		key:       key,
		response:  resp,
		expiresAt: time.Now().Add(c.cfg.TTL),
	})
	c.entries[key] = el
}

func (c *RecommendationCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}

// InvalidateSession drops every entry belonging to one session.
func (c *RecommendationCache) InvalidateSession(sessionID uuid.UUID) {
	prefix := sessionID.String() + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(el)
		}
	}
}

// Clear drops every entry.
func (c *RecommendationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats reports cache effectiveness for the admin endpoint.
func (c *RecommendationCache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return map[string]interface{}{
		"enabled":   c.cfg.Enabled,
		"entries":   c.order.Len(),
		"max":       c.cfg.MaxEntries,
		"ttl":       c.cfg.TTL.String(),
		"hits":      c.hits,
		"misses":    c.misses,
		"evictions": c.evictions,
		"hit_rate":  hitRate,
	}
}
