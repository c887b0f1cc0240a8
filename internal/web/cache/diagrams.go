package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/metrics"
	"github.com/dphaener/ddmark/pkg/diagram"
)

// Key derives the cache key of a conversion: the hex SHA-256 of the kind,
// a NUL separator and the document.
func Key(kind diagram.Kind, markdown string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(markdown))
	return "diagram:" + hex.EncodeToString(h.Sum(nil))
}

// ETag is a strong entity tag for a rendered body.
func ETag(src diagram.Source) string {
	sum := sha256.Sum256([]byte(string(src.Language) + "\x00" + src.Body))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// Compiler is the conversion DiagramCache wraps.
type Compiler interface {
	Compile(kind diagram.Kind, markdown string) (diagram.Source, error)
}

// DiagramCache memoizes conversions. Backend failures are logged and
// counted, never returned: the conversion simply runs uncached.
type DiagramCache struct {
	backend  Cache
	compiler Compiler
	ttl      time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewDiagramCache wraps compiler with backend. A nil backend disables
// caching; m and logger may be nil.
func NewDiagramCache(backend Cache, compiler Compiler, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *DiagramCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagramCache{backend: backend, compiler: compiler, ttl: ttl, metrics: m, logger: logger}
}

// Compile returns the cached conversion of markdown, converting and storing
// it on a miss. Only successful conversions are stored. The second result
// reports a cache hit.
func (c *DiagramCache) Compile(ctx context.Context, kind diagram.Kind, markdown string) (diagram.Source, bool, error) {
	if c.backend == nil {
		src, err := c.compiler.Compile(kind, markdown)
		return src, false, err
	}

	key := Key(kind, markdown)
	if data, err := c.backend.Get(ctx, key); err == nil {
		var src diagram.Source
		if err := json.Unmarshal(data, &src); err == nil {
			c.metrics.IncrementCache(metrics.CacheHit)
			return src, true, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
		c.metrics.IncrementCache(metrics.CacheError)
	} else if IsCacheMiss(err) {
		c.metrics.IncrementCache(metrics.CacheMiss)
	} else {
		c.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		c.metrics.IncrementCache(metrics.CacheError)
	}

	src, err := c.compiler.Compile(kind, markdown)
	if err != nil {
		return diagram.Source{}, false, err
	}

	data, err := json.Marshal(src)
	if err == nil {
		err = c.backend.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
	return src, false, nil
}

// Invalidate drops the cached conversion of markdown.
func (c *DiagramCache) Invalidate(ctx context.Context, kind diagram.Kind, markdown string) error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Delete(ctx, Key(kind, markdown))
}

// Close closes the backend.
func (c *DiagramCache) Close() error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Close()
}
