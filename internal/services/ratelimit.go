package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/pkg/models"
)

// RateLimitService enforces per-source-IP sliding windows, one bucket per
// endpoint class. With redis configured the window is shared across replicas;
// without it, an in-process window covers the single-instance deployment.
// Redis failures fail open.
type RateLimitService struct {
	cfg         config.RateLimitConfig
	logger      *logrus.Logger
	redisClient *redis.Client

	whitelist map[string]bool

	mu    sync.Mutex
	local map[string][]time.Time
}

func NewRateLimitService(cfg config.RateLimitConfig, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	whitelist := make(map[string]bool, len(cfg.Whitelist))
	for _, ip := range cfg.Whitelist {
		whitelist[ip] = true
	}
	return &RateLimitService{
		cfg:         cfg,
		logger:      logger,
		redisClient: redisClient,
		whitelist:   whitelist,
		local:       make(map[string][]time.Time),
	}
}

// limitFor returns the class cap, falling back to the general class.
func (s *RateLimitService) limitFor(class string) int {
	if limit, ok := s.cfg.Classes[class]; ok {
		return limit
	}
	return s.cfg.Classes["general"]
}

// Allow consumes one slot for the (ip, class) bucket and reports the window
// state. Whitelisted IPs always pass.
func (s *RateLimitService) Allow(ctx context.Context, ip, class string) (bool, *models.RateLimitInfo) {
	limit := s.limitFor(class)
	window := s.cfg.Window
	now := time.Now()
	reset := now.Add(window)

	if !s.cfg.Enabled || s.whitelist[ip] {
		return true, &models.RateLimitInfo{
			Limit:     limit,
			Remaining: limit,
			Window:    window.String(),
			Reset:     reset,
		}
	}

	var count int
	if s.redisClient != nil {
		count = s.countRedis(ctx, ip, class, now, window, limit)
	} else {
		count = s.countLocal(ip, class, now, window)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, &models.RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		Window:    window.String(),
		Reset:     reset,
	}
}

// countRedis runs the sliding window as an atomic pipeline and returns the
// post-insert count. Redis errors return 1 so the request passes.
func (s *RateLimitService) countRedis(ctx context.Context, ip, class string, now time.Time, window time.Duration, limit int) int {
	key := fmt.Sprintf("rate_limit:%s:%s", class, ip)
	windowStart := now.Add(-window)

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipe := s.redisClient.Pipeline()
	pipe.ZRemRangeByScore(rctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(rctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	countCmd := pipe.ZCard(rctx, key)
	pipe.Expire(rctx, key, window)

	if _, err := pipe.Exec(rctx); err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		return 1
	}
	return int(countCmd.Val())
}

// countLocal is the in-process fallback, pruning expired stamps per call.
func (s *RateLimitService) countLocal(ip, class string, now time.Time, window time.Duration) int {
	key := class + ":" + ip
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := s.local[key]
	kept := stamps[:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.local[key] = kept
	return len(kept)
}
