package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/cli/config"
	"github.com/dphaener/ddmark/internal/watch"
	"github.com/dphaener/ddmark/internal/web/router"
	"github.com/dphaener/ddmark/internal/web/server"
	"github.com/dphaener/ddmark/pkg/diagram"
)

// NewWatchCommand creates the watch command
func NewWatchCommand(opts *GlobalOptions) *cobra.Command {
	var (
		kind   string
		output string
		serve  bool
		port   int
	)

	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Re-render diagrams whenever design documents change",
		Long: `Watch Markdown design documents and re-render their diagrams on every save.

Every .md or .markdown file under the given paths (default: watch.paths from
the config) is rendered once at startup and again whenever it changes. Each
diagram is written to <output>/<name>.<kind>.<mmd|puml>.

With --serve, rendered diagrams are also pushed to browsers connected to
ws://<host>:<port>/ws/preview.`,
		Example: `  # Watch the docs directory
  ddmark watch docs

  # Push previews to a browser on port 3000
  ddmark watch docs --serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.Setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if len(args) > 0 {
				cfg.Watch.Paths = args
			}
			if kind == "" {
				kind = cfg.Render.DefaultKind
			}
			if !cmd.Flags().Changed("output") {
				output = cfg.Render.OutputDir
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := newServices(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			var hub *watch.Hub
			if serve {
				hub = watch.NewHub(cfg.Server.AllowedOrigins, svc.metrics, logger)
				defer hub.Close()
			}

			previewer, err := watch.NewPreviewer(watch.PreviewConfig{
				Watch:     cfg.Watch,
				Kind:      kind,
				OutputDir: output,
				OnRender:  renderReporter(cmd.OutOrStdout(), output),
			}, svc.diagrams, hub, logger)
			if err != nil {
				return err
			}
			if err := previewer.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = previewer.Stop() }()

			color.New(color.FgCyan, color.Bold).Fprintf(cmd.OutOrStdout(), "Watching %v for changes (Ctrl+C to stop)\n", cfg.Watch.Paths)

			if !serve {
				<-ctx.Done()
				return nil
			}
			handler := router.New(router.Deps{
				Diagrams: svc.diagrams,
				Metrics:  svc.metrics,
				Preview:  hub,
				Logger:   logger,
				Server:   cfg.Server,
			})
			return runServer(ctx, cmd.OutOrStdout(), cfg, handler, logger, closeHub(hub))
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Diagram kind or auto (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory rendered diagrams are written to; empty disables writing (default from config)")
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve live previews over a websocket")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Preview server port (default from config)")

	return cmd
}

// renderReporter prints one status line per rendered file
func renderReporter(w io.Writer, outputDir string) func(*watch.Message) {
	var mu sync.Mutex
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	return func(m *watch.Message) {
		mu.Lock()
		defer mu.Unlock()
		if m.Type == watch.MessageError {
			detail := ""
			if m.Error != nil {
				detail = m.Error.Message
				if m.Error.Code != "" {
					detail = fmt.Sprintf("%s [%s]", detail, m.Error.Code)
				}
			}
			red.Fprintf(w, "✗ %s: %s\n", m.File, detail)
			return
		}
		if outputDir == "" || m.Body == "" {
			green.Fprintf(w, "✓ %s (%s)\n", m.File, m.Kind)
			return
		}
		green.Fprintf(w, "✓ %s → %s\n", m.File, filepath.Join(outputDir, previewFileName(m)))
	}
}

// previewFileName mirrors the name the previewer writes a message's body to
func previewFileName(m *watch.Message) string {
	stem := strings.TrimSuffix(filepath.Base(m.File), filepath.Ext(m.File))
	return diagram.Source{Kind: m.Kind, Language: m.Language}.FileName(stem)
}

// closeHub disconnects preview clients on shutdown
func closeHub(hub *watch.Hub) server.ShutdownHook {
	return func(context.Context) error {
		hub.Close()
		return nil
	}
}

// runServer serves handler on the configured address until ctx is done
func runServer(ctx context.Context, out io.Writer, cfg *config.Config, handler http.Handler, logger *zap.Logger, hooks ...server.ShutdownHook) error {
	srv, err := server.New(server.FromConfig(cfg.Server, handler, logger))
	if err != nil {
		return err
	}
	for _, hook := range hooks {
		srv.RegisterHook(hook)
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	color.New(color.FgGreen, color.Bold).Fprintf(out, "Listening on http://%s\n", srv.Addr())
	return srv.Run(ctx)
}
