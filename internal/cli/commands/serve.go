package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/watch"
	"github.com/dphaener/ddmark/internal/web/profiling"
	"github.com/dphaener/ddmark/internal/web/ratelimit"
	"github.com/dphaener/ddmark/internal/web/router"
	"github.com/dphaener/ddmark/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *GlobalOptions) *cobra.Command {
	var (
		host      string
		port      int
		watchDocs bool
		kind      string
		pprof     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the diagram conversion HTTP service",
		Long: `Run the HTTP conversion service.

Routes:
  POST /api/v1/diagrams/{kind}          convert the request body
  GET  /api/v1/documents                stream stored documents as diagrams
  GET  /api/v1/documents/{id}/diagram   convert one stored document
  GET  /api/v1/kinds                    list diagram kinds
  GET  /healthz                         liveness
  GET  /metrics                         Prometheus metrics
  GET  /ws/preview                      live previews (with --watch)
  GET  /debug/pprof/                    profiling (with --pprof)

Document routes need database.url in the config. Conversions are cached in
the configured cache backend. server.rate_limit throttles /api/v1 per client
address.`,
		Example: `  ddmark serve --port 9000
  ddmark serve --watch docs`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.Setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if len(args) > 0 {
				cfg.Watch.Paths = args
			}
			if kind == "" {
				kind = cfg.Render.DefaultKind
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := newServices(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			deps := router.Deps{
				Diagrams:  svc.diagrams,
				Metrics:   svc.metrics,
				Logger:    logger,
				Server:    cfg.Server,
				Profiling: pprof,
			}
			if svc.store != nil {
				deps.Documents = svc.store
			} else {
				logger.Info("no database configured; document routes disabled")
			}
			if cfg.Server.RateLimit.Enabled() {
				limiter, closeLimiter, err := ratelimit.New(ctx, cfg.Server.RateLimit, cfg.Cache.RedisURL)
				if err != nil {
					return &configError{err: fmt.Errorf("rate limit: %w", err)}
				}
				defer func() { _ = closeLimiter() }()
				deps.RateLimiter = limiter
				logger.Info("rate limiting enabled",
					zap.Int("requests", cfg.Server.RateLimit.Requests),
					zap.Duration("window", cfg.Server.RateLimit.Window),
					zap.String("backend", cfg.Server.RateLimit.Backend))
			}
			if pprof {
				logger.Warn("profiling endpoints enabled", zap.String("path", profiling.DefaultPath))
			}

			var hooks []server.ShutdownHook
			if watchDocs {
				hub := watch.NewHub(cfg.Server.AllowedOrigins, svc.metrics, logger)
				previewer, err := watch.NewPreviewer(watch.PreviewConfig{
					Watch: cfg.Watch,
					Kind:  kind,
				}, svc.diagrams, hub, logger)
				if err != nil {
					hub.Close()
					return err
				}
				if err := previewer.Start(ctx); err != nil {
					hub.Close()
					return err
				}
				defer func() { _ = previewer.Stop() }()
				defer hub.Close()

				deps.Preview = hub
				logger.Info("live preview enabled", zap.Strings("paths", cfg.Watch.Paths))
				// Hijacked websocket connections outlive http.Server.Shutdown.
				hooks = append(hooks, closeHub(hub))
			}

			return runServer(ctx, cmd.OutOrStdout(), cfg, router.New(deps), logger, hooks...)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from config)")
	cmd.Flags().BoolVarP(&watchDocs, "watch", "w", false, "Watch Markdown files and push previews to /ws/preview")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Diagram kind for watched files (default from config)")
	cmd.Flags().BoolVar(&pprof, "pprof", false, "Mount pprof under /debug/pprof")

	return cmd
}
