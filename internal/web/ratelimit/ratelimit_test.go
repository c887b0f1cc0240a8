package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dphaener/ddmark/internal/cli/config"
)

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	tb := NewTokenBucket(TokenBucketConfig{Capacity: 3, Window: 3 * time.Second, Now: clk.Now})
	defer tb.Stop()

	for _, remaining := range []int{2, 1, 0} {
		d, err := tb.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, remaining, d.Remaining)
	}

	d, err := tb.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, clk.Now().Add(time.Second), d.ResetAt)

	other, err := tb.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys have separate buckets")

	clk.Advance(time.Second)
	d, err = tb.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "one token refilled")

	clk.Advance(time.Hour)
	d, err = tb.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining, "refill is capped at capacity")
	assert.Equal(t, clk.Now(), d.ResetAt)
}

func TestTokenBucket_Cleanup(t *testing.T) {
	clk := newClock()
	tb := NewTokenBucket(TokenBucketConfig{Capacity: 1, Window: time.Second, Now: clk.Now})
	defer tb.Stop()

	_, _ = tb.Allow(context.Background(), "a")
	_, _ = tb.Allow(context.Background(), "b")
	require.Equal(t, 2, tb.size())

	tb.cleanup()
	assert.Equal(t, 2, tb.size(), "recently used buckets are kept")

	clk.Advance(2 * time.Second)
	tb.cleanup()
	assert.Equal(t, 0, tb.size())
}

func TestTokenBucket_StopIsIdempotent(t *testing.T) {
	tb := NewTokenBucket(TokenBucketConfig{Capacity: 1, Window: time.Second, CleanupInterval: time.Millisecond})
	tb.Stop()
	assert.NotPanics(t, tb.Stop)
}

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*RedisLimiter, *clock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := newClock()
	rl, err := NewRedisLimiter(RedisLimiterConfig{
		Client: client,
		Limit:  limit,
		Window: window,
		Prefix: "test:",
		Now:    clk.Now,
	})
	require.NoError(t, err)
	return rl, clk, mr
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	rl, clk, mr := newRedisLimiter(t, 2, time.Minute)
	start := clk.Now()

	for _, remaining := range []int{1, 0} {
		d, err := rl.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2, d.Limit)
		assert.Equal(t, remaining, d.Remaining)
	}
	assert.True(t, mr.Exists("test:client"))

	clk.Advance(10 * time.Second)
	d, err := rl.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.ResetAt.Equal(start.Add(time.Minute)), "reset when the oldest request leaves the window, got %s", d.ResetAt)

	other, err := rl.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clk.Advance(time.Minute)
	d, err = rl.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "old requests slid out of the window")
	assert.Equal(t, 1, d.Remaining)
}

func TestRedisLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	rl, _, _ := newRedisLimiter(t, 1, time.Minute)

	d, err := rl.Allow(ctx, "client")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = rl.Allow(ctx, "client")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, rl.Reset(ctx, "client"))
	d, err = rl.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	rl, _, mr := newRedisLimiter(t, 1, time.Minute)
	mr.Close()

	_, err := rl.Allow(context.Background(), "client")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis rate limit check failed")
}

func TestNewRedisLimiter_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	tests := []struct {
		name   string
		config RedisLimiterConfig
		errMsg string
	}{
		{"no client", RedisLimiterConfig{Limit: 1, Window: time.Second}, "client"},
		{"no limit", RedisLimiterConfig{Client: client, Window: time.Second}, "limit"},
		{"no window", RedisLimiterConfig{Client: client, Limit: 1}, "window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedisLimiter(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	t.Run("memory", func(t *testing.T) {
		l, closeFn, err := New(ctx, config.RateLimitConfig{Requests: 5, Window: time.Minute, Backend: "memory"}, "")
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &TokenBucket{}, l)
	})

	t.Run("redis", func(t *testing.T) {
		l, closeFn, err := New(ctx, config.RateLimitConfig{Requests: 5, Window: time.Minute, Backend: "redis"}, "redis://"+mr.Addr())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &RedisLimiter{}, l)

		d, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.Equal(t, 4, d.Remaining)
	})

	t.Run("bad redis url", func(t *testing.T) {
		_, _, err := New(ctx, config.RateLimitConfig{Requests: 5, Window: time.Minute, Backend: "redis"}, "://nope")
		require.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := New(ctx, config.RateLimitConfig{Requests: 5, Window: time.Minute, Backend: "disk"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk")
	})
}
