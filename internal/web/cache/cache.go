// Package cache stores rendered diagrams so that identical documents are
// converted once. Keys are derived from the diagram kind and the document
// text; values are JSON-encoded diagram sources.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dphaener/ddmark/internal/cli/config"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL. A zero TTL uses the
	// backend default; a negative TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values owned by this cache
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// Options holds configuration shared by the backends
type Options struct {
	// DefaultTTL is used when Set is called with a zero TTL
	DefaultTTL time.Duration
	// Prefix is prepended to all keys
	Prefix string
	// MaxItems bounds the memory backend; zero means unbounded
	MaxItems int
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		DefaultTTL: 10 * time.Minute,
		Prefix:     "ddmark:",
		MaxItems:   1000,
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}

// New builds the backend selected by cfg. The "none" backend returns a nil
// Cache, which DiagramCache treats as disabled.
func New(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	opts := Options{DefaultTTL: cfg.TTL, Prefix: cfg.Prefix, MaxItems: cfg.MaxItems}

	switch cfg.Backend {
	case "memory":
		return NewMemoryCache(opts), nil
	case "redis":
		rc, err := NewRedisCacheFromURL(ctx, cfg.RedisURL, opts)
		if err != nil {
			return nil, err
		}
		return rc, nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
