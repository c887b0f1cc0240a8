package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/cli/config"
	"github.com/dphaener/ddmark/internal/metrics"
	"github.com/dphaener/ddmark/internal/store"
	"github.com/dphaener/ddmark/internal/web/cache"
)

// services are the long-lived pieces watch, serve and export share
type services struct {
	metrics  *metrics.Metrics
	diagrams *cache.DiagramCache
	store    *store.Store
}

// newServices builds the cached converter and, when withStore is set and a
// database is configured, opens the document store
func newServices(ctx context.Context, cfg *config.Config, logger *zap.Logger, withStore bool) (*services, error) {
	m := metrics.New()

	backend, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, &configError{err: fmt.Errorf("cache: %w", err)}
	}
	logger.Debug("diagram cache ready", zap.String("backend", cfg.Cache.Backend))

	s := &services{
		metrics:  m,
		diagrams: cache.NewDiagramCache(backend, newConverter(cfg, logger), cfg.Cache.TTL, m, logger),
	}

	if withStore && cfg.Database.Enabled() {
		st, err := store.Open(ctx, cfg.Database, logger)
		if err != nil {
			_ = s.diagrams.Close()
			return nil, err
		}
		s.store = st
	}
	return s, nil
}

// Close releases the cache and the store
func (s *services) Close() error {
	var first error
	if err := s.diagrams.Close(); err != nil {
		first = err
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
