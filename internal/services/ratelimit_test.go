package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadpick/threadpick/internal/config"
)

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled: true,
		Window:  time.Minute,
		Classes: map[string]int{
			"session":   5,
			"recommend": 30,
			"feedback":  50,
			"batch":     10,
			"general":   100,
		},
	}
}

func TestRateLimitService_ClassLimits(t *testing.T) {
	ctx := context.Background()
	s := NewRateLimitService(testRateLimitConfig(), testLogger(), nil)

	for i := 0; i < 5; i++ {
		allowed, info := s.Allow(ctx, "10.0.0.1", "session")
		assert.True(t, allowed, "request %d within the limit", i+1)
		assert.Equal(t, 5, info.Limit)
	}

	allowed, info := s.Allow(ctx, "10.0.0.1", "session")
	assert.False(t, allowed, "sixth session request rejected")
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, "1m0s", info.Window)
	assert.True(t, info.Reset.After(time.Now()))
}

func TestRateLimitService_ClassesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewRateLimitService(testRateLimitConfig(), testLogger(), nil)

	for i := 0; i < 5; i++ {
		allowed, _ := s.Allow(ctx, "10.0.0.1", "session")
		require.True(t, allowed)
	}
	allowed, _ := s.Allow(ctx, "10.0.0.1", "session")
	require.False(t, allowed)

	allowed, _ = s.Allow(ctx, "10.0.0.1", "recommend")
	assert.True(t, allowed, "exhausting one class leaves others intact")
}

func TestRateLimitService_PerIPBuckets(t *testing.T) {
	ctx := context.Background()
	s := NewRateLimitService(testRateLimitConfig(), testLogger(), nil)

	for i := 0; i < 6; i++ {
		s.Allow(ctx, "10.0.0.1", "session")
	}
	allowed, _ := s.Allow(ctx, "10.0.0.2", "session")
	assert.True(t, allowed, "other IPs have their own window")
}

func TestRateLimitService_Whitelist(t *testing.T) {
	ctx := context.Background()
	cfg := testRateLimitConfig()
	cfg.Whitelist = []string{"127.0.0.1"}
	s := NewRateLimitService(cfg, testLogger(), nil)

	for i := 0; i < 20; i++ {
		allowed, info := s.Allow(ctx, "127.0.0.1", "session")
		assert.True(t, allowed)
		assert.Equal(t, 5, info.Remaining, "whitelisted IPs never consume slots")
	}
}

func TestRateLimitService_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := testRateLimitConfig()
	cfg.Enabled = false
	s := NewRateLimitService(cfg, testLogger(), nil)

	for i := 0; i < 50; i++ {
		allowed, _ := s.Allow(ctx, "10.0.0.1", "session")
		assert.True(t, allowed)
	}
}

func TestRateLimitService_UnknownClassFallsBackToGeneral(t *testing.T) {
	ctx := context.Background()
	s := NewRateLimitService(testRateLimitConfig(), testLogger(), nil)

	_, info := s.Allow(ctx, "10.0.0.1", "mystery")
	assert.Equal(t, 100, info.Limit)
}

func TestRateLimitService_WindowSlides(t *testing.T) {
	ctx := context.Background()
	cfg := testRateLimitConfig()
	cfg.Window = 30 * time.Millisecond
	cfg.Classes = map[string]int{"session": 2, "general": 100}
	s := NewRateLimitService(cfg, testLogger(), nil)

	allowed, _ := s.Allow(ctx, "10.0.0.1", "session")
	require.True(t, allowed)
	allowed, _ = s.Allow(ctx, "10.0.0.1", "session")
	require.True(t, allowed)
	allowed, _ = s.Allow(ctx, "10.0.0.1", "session")
	require.False(t, allowed)

	time.Sleep(40 * time.Millisecond)
	allowed, _ = s.Allow(ctx, "10.0.0.1", "session")
	assert.True(t, allowed, "slots free up as the window slides")
}
