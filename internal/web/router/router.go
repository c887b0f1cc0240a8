// Package router wires the HTTP API of ddmark onto a chi router.
package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/cli/config"
	"github.com/dphaener/ddmark/internal/metrics"
	"github.com/dphaener/ddmark/internal/store"
	"github.com/dphaener/ddmark/internal/web/middleware"
	"github.com/dphaener/ddmark/internal/web/profiling"
	"github.com/dphaener/ddmark/internal/web/ratelimit"
	"github.com/dphaener/ddmark/internal/web/response"
	"github.com/dphaener/ddmark/pkg/diagram"
)

// Diagrams converts documents, usually through the rendered-diagram cache.
// The second result reports a cache hit.
type Diagrams interface {
	Compile(ctx context.Context, kind diagram.Kind, markdown string) (diagram.Source, bool, error)
}

// Documents is the read side of the document store
type Documents interface {
	Get(ctx context.Context, id string) (*store.Document, error)
	List(ctx context.Context, kind string) ([]store.Document, error)
}

// Deps holds what the routes need. Diagrams is required; a nil Documents
// makes the document routes answer 503 and a nil Preview leaves
// /ws/preview unrouted.
type Deps struct {
	Diagrams  Diagrams
	Documents Documents
	Metrics   *metrics.Metrics
	Preview   http.Handler
	// RateLimiter throttles /api/v1 per client address when set
	RateLimiter ratelimit.Limiter
	Logger      *zap.Logger
	Server      config.ServerConfig
	// Profiling mounts pprof under /debug/pprof
	Profiling bool
}

// New builds the API handler
func New(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{
		diagrams:  deps.Diagrams,
		documents: deps.Documents,
		metrics:   deps.Metrics,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(logger, "/healthz", "/metrics"),
		middleware.Recovery(),
		middleware.CORS(middleware.DefaultCORSConfig(deps.Server.AllowedOrigins)),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderMethodNotAllowed(w)
	})

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	if deps.Preview != nil {
		r.Method(http.MethodGet, "/ws/preview", deps.Preview)
	}

	if deps.Profiling {
		profiling.RegisterRoutes(r, profiling.DefaultConfig())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimit(deps.RateLimiter, nil))
		}
		r.Get("/kinds", h.kinds)
		r.With(middleware.BodyLimit(deps.Server.MaxBodyBytes)).Post("/diagrams/{kind}", h.convert)
		r.Get("/documents", h.documentDiagrams)
		r.Get("/documents/{id}/diagram", h.documentDiagram)
	})

	return r
}
