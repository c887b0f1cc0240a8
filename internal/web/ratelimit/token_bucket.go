package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is an in-memory token bucket per key. Each bucket holds up to
// Capacity tokens and refills Capacity tokens per Window.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity int
	window   time.Duration
	now      func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketConfig holds configuration for the token bucket rate limiter
type TokenBucketConfig struct {
	Capacity int
	Window   time.Duration
	// CleanupInterval is how often idle buckets are dropped; zero disables
	// the cleanup goroutine
	CleanupInterval time.Duration
	// Now replaces time.Now in tests
	Now func() time.Time
}

// NewTokenBucket creates a token bucket limiter
func NewTokenBucket(config TokenBucketConfig) *TokenBucket {
	if config.Capacity <= 0 {
		config.Capacity = 1
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	tb := &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: config.Capacity,
		window:   config.Window,
		now:      config.Now,
		done:     make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go tb.cleanupLoop(config.CleanupInterval)
	}
	return tb
}

// Allow takes one token from key's bucket
func (tb *TokenBucket) Allow(_ context.Context, key string) (*Decision, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.capacity), lastRefill: now}
		tb.buckets[key] = b
	}

	perToken := tb.window / time.Duration(tb.capacity)
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += float64(elapsed) / float64(perToken)
		if b.tokens > float64(tb.capacity) {
			b.tokens = float64(tb.capacity)
		}
		b.lastRefill = now
	}

	d := &Decision{Limit: tb.capacity}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = int(b.tokens)
	var wait time.Duration
	if b.tokens < 1 {
		wait = time.Duration((1 - b.tokens) * float64(perToken))
	}
	d.ResetAt = now.Add(wait)
	return d, nil
}

// Stop ends the cleanup goroutine
func (tb *TokenBucket) Stop() {
	tb.stopOnce.Do(func() { close(tb.done) })
}

func (tb *TokenBucket) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tb.cleanup()
		case <-tb.done:
			return
		}
	}
}

// cleanup drops buckets idle for at least one window; they are full again
func (tb *TokenBucket) cleanup() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	threshold := tb.now().Add(-tb.window)
	for key, b := range tb.buckets {
		if b.lastRefill.Before(threshold) {
			delete(tb.buckets, key)
		}
	}
}

// size returns the number of tracked keys
func (tb *TokenBucket) size() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}
