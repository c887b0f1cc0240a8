package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then records the
// request when the window still has room. Scores are Unix milliseconds. It
// returns {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)
local allowed = 0
if current < limit then
	redis.call('ZADD', key, now, ARGV[5])
	current = current + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ttl)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_score = now
if oldest[2] then
	oldest_score = tonumber(oldest[2])
end
return {allowed, current, oldest_score}
`)

// RedisLimiter is a sliding window limiter shared through Redis
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// RedisLimiterConfig holds configuration for the Redis rate limiter
type RedisLimiterConfig struct {
	Client *redis.Client
	Limit  int
	Window time.Duration
	Prefix string
	// Now replaces time.Now in tests
	Now func() time.Time
}

// NewRedisLimiter creates a Redis rate limiter
func NewRedisLimiter(config RedisLimiterConfig) (*RedisLimiter, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RedisLimiter{
		client: config.Client,
		limit:  config.Limit,
		window: config.Window,
		prefix: config.Prefix,
		now:    config.Now,
	}, nil
}

// Allow records one request for key when the window has room
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Decision, error) {
	now := r.now()
	raw, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixMilli(),
		now.Add(-r.window).UnixMilli(),
		r.limit,
		r.window.Milliseconds(),
		strconv.FormatInt(now.UnixMilli(), 10)+":"+uuid.NewString(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return nil, errors.New("unexpected redis script result")
	}
	allowed, ok1 := values[0].(int64)
	count, ok2 := values[1].(int64)
	oldest, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("unexpected redis script result")
	}

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now
	if remaining == 0 {
		resetAt = time.UnixMilli(oldest).Add(r.window)
	}
	return &Decision{
		Limit:     r.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		Allowed:   allowed == 1,
	}, nil
}

// Reset forgets every request recorded for key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
