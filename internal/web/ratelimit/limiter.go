// Package ratelimit throttles API clients. The in-memory token bucket
// suits a single server; the Redis sliding window is shared by every
// replica pointing at the same Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dphaener/ddmark/internal/cli/config"
)

// Limiter decides whether the request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (*Decision, error)
}

// Decision is the outcome of one Allow call
type Decision struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Remaining is the number of requests left in the current window
	Remaining int
	// ResetAt is when the next request is guaranteed to be allowed
	ResetAt time.Time
	// Allowed indicates whether the request should be allowed
	Allowed bool
}

// New builds the limiter selected by cfg. The redis backend connects to
// redisURL. The returned close function releases the backend.
func New(ctx context.Context, cfg config.RateLimitConfig, redisURL string) (Limiter, func() error, error) {
	switch cfg.Backend {
	case "memory", "":
		tb := NewTokenBucket(TokenBucketConfig{
			Capacity:        cfg.Requests,
			Window:          cfg.Window,
			CleanupInterval: 5 * cfg.Window,
		})
		return tb, func() error { tb.Stop(); return nil }, nil
	case "redis":
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rl, err := NewRedisLimiter(RedisLimiterConfig{
			Client: client,
			Limit:  cfg.Requests,
			Window: cfg.Window,
			Prefix: "ddmark:ratelimit:",
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return rl, client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
}
