package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/cli/config"
	"github.com/dphaener/ddmark/internal/cli/ui"
	"github.com/dphaener/ddmark/pkg/diagram"
)

// NewRenderCommand creates the render command
func NewRenderCommand(opts *GlobalOptions) *cobra.Command {
	var (
		kind   string
		output string
		fenced bool
	)

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Convert a design document into diagram source",
		Long: `Convert one Markdown design document into Mermaid or PlantUML source.

The document is read from the named file, or from standard input when the
file is omitted or "-". With --kind auto (the default) the diagram kind is
chosen from the document's headings.`,
		Example: `  # Class diagram of a domain model
  ddmark render --kind class docs/domain-model.md

  # Detect the kind and write a fenced block into a file
  ddmark render docs/orders-db.md --fenced -o diagrams/orders.md

  # Read from stdin
  cat docs/order-flow.md | ddmark render --kind flow`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.Setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			markdown, err := readDocument(cmd, args)
			if err != nil {
				return err
			}
			if kind == "" {
				kind = cfg.Render.DefaultKind
			}
			k, err := diagram.ResolveKind(kind, markdown)
			if err != nil {
				return err
			}

			src, err := newConverter(cfg, logger).Compile(k, markdown)
			if err != nil {
				return err
			}
			if src.Empty() {
				fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("no flow steps found; nothing to render", color.NoColor))
				return nil
			}

			text := src.Body + "\n"
			if fenced {
				text = src.Fenced()
			}
			if output == "" || output == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), text)
				return err
			}
			if err := writeFile(output, text); err != nil {
				return err
			}
			ui.WriteSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Wrote %s diagram to %s", src.Kind, output), color.NoColor)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Diagram kind: auto, "+strings.Join(diagram.KindNames(), ", ")+" (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&fenced, "fenced", false, "Wrap the source in a Markdown code fence")

	return cmd
}

// readDocument reads the file named by args[0], or stdin
func readDocument(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func newConverter(cfg *config.Config, logger *zap.Logger) *diagram.Converter {
	return diagram.NewConverter(
		diagram.WithLogger(logger),
		diagram.WithMaxInputBytes(cfg.Render.MaxInputBytes),
	)
}
