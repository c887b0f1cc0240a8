package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dphaener/ddmark/internal/cli/ui"
	compilererrors "github.com/dphaener/ddmark/internal/compiler/errors"
	"github.com/dphaener/ddmark/internal/store"
	"github.com/dphaener/ddmark/internal/watch"
	"github.com/dphaener/ddmark/pkg/diagram"
)

// ExportResult counts what one export run did
type ExportResult struct {
	Written []string
	Skipped []string
	Failed  map[string]error
}

// CompilerErrors returns the structured failures in document order, each
// tagged with its document id.
func (r *ExportResult) CompilerErrors(docs []store.Document) compilererrors.ErrorList {
	var list compilererrors.ErrorList
	for _, doc := range docs {
		ce, ok := compilererrors.As(r.Failed[doc.ID])
		if !ok {
			continue
		}
		tagged := *ce
		list = append(list, tagged.WithFile(doc.ID))
	}
	return list
}

// Exporter renders stored documents into an output directory
type Exporter struct {
	Compiler  watch.Compiler
	OutputDir string
	// Kind overrides each document's stored kind when set
	Kind     string
	Progress io.Writer
	NoColor  bool
}

// Export writes every document to <OutputDir>/<id>.<kind>.<ext>. Documents
// that render to nothing are skipped; conversion failures are collected and
// do not stop the run.
func (e *Exporter) Export(ctx context.Context, docs []store.Document) (*ExportResult, error) {
	result := &ExportResult{Failed: make(map[string]error)}

	var bar *ui.ProgressBar
	if e.Progress != nil {
		bar = ui.NewProgressBar(e.Progress, len(docs), "exporting", e.NoColor)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		path, err := e.exportOne(ctx, doc)
		switch {
		case err != nil:
			result.Failed[doc.ID] = err
		case path == "":
			result.Skipped = append(result.Skipped, doc.ID)
		default:
			result.Written = append(result.Written, path)
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	if bar != nil {
		bar.Finish(fmt.Sprintf("Exported %d of %d documents to %s", len(result.Written), len(docs), e.OutputDir))
	}
	return result, nil
}

func (e *Exporter) exportOne(ctx context.Context, doc store.Document) (string, error) {
	kind := doc.Kind
	if e.Kind != "" {
		kind = e.Kind
	}
	k, err := diagram.ResolveKind(kind, doc.Markdown)
	if err != nil {
		return "", err
	}
	src, _, err := e.Compiler.Compile(ctx, k, doc.Markdown)
	if err != nil {
		return "", err
	}
	if src.Empty() {
		return "", nil
	}
	path := filepath.Join(e.OutputDir, src.FileName(fileStem(doc.ID)))
	if err := writeFile(path, src.Body+"\n"); err != nil {
		return "", err
	}
	return path, nil
}

var stemReplacer = strings.NewReplacer("/", "_", `\`, "_", "..", "_")

// fileStem keeps a document id inside the output directory
func fileStem(id string) string {
	stem := stemReplacer.Replace(strings.TrimSpace(id))
	if stem == "" || stem == "." {
		return "_"
	}
	return stem
}

// NewExportCommand creates the export command
func NewExportCommand(opts *GlobalOptions) *cobra.Command {
	var (
		kind   string
		output string
		ids    []string
		render string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render stored design documents into diagram files",
		Long: `Render design documents stored in the configured database table.

Every document is written to <output>/<id>.<kind>.<mmd|puml>. The diagram
kind comes from the document's kind column, or is detected from its headings
when the column is empty. Documents that fail to convert are reported and
the remaining documents are still exported.`,
		Example: `  # Export everything into ./diagrams
  ddmark export

  # Only ER diagrams, into docs/generated
  ddmark export --kind er --output docs/generated

  # Selected documents
  ddmark export --ids orders-db,order-flow`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.Setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if !cfg.Database.Enabled() {
				return &configError{err: fmt.Errorf("database.url is not set; export reads documents from the database")}
			}
			if kind != "" {
				if _, err := diagram.ParseKind(kind); err != nil {
					return err
				}
			}
			if _, err := diagram.ResolveKind(render, ""); err != nil {
				return err
			}
			if !cmd.Flags().Changed("output") {
				output = cfg.Render.OutputDir
			}

			ctx := cmd.Context()
			svc, err := newServices(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			var docs []store.Document
			if len(ids) > 0 {
				docs, err = svc.store.ListByIDs(ctx, ids)
			} else {
				docs, err = svc.store.List(ctx, kind)
			}
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("no documents to export", color.NoColor))
				return nil
			}

			exporter := &Exporter{
				Compiler:  svc.diagrams,
				OutputDir: output,
				Kind:      render,
				Progress:  cmd.ErrOrStderr(),
				NoColor:   color.NoColor,
			}
			result, err := exporter.Export(ctx, docs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range result.Written {
				fmt.Fprintln(out, path)
			}
			for _, id := range result.Skipped {
				fmt.Fprint(cmd.ErrOrStderr(), ui.Info(fmt.Sprintf("%s: nothing to render", id), color.NoColor))
			}
			if len(result.Failed) == 0 {
				return nil
			}

			compileErrs := result.CompilerErrors(docs)
			if len(compileErrs) > 0 {
				fmt.Fprint(cmd.ErrOrStderr(), compilererrors.FormatErrorList(compileErrs))
			}
			for _, doc := range docs {
				err, ok := result.Failed[doc.ID]
				if !ok {
					continue
				}
				if _, isCompile := compilererrors.As(err); isCompile {
					continue
				}
				fmt.Fprint(cmd.ErrOrStderr(), ui.FormatMessage(ui.MessageOptions{
					Context: doc.ID,
					Problem: err.Error(),
					NoColor: color.NoColor,
				}))
			}
			// Warnings are reported but do not fail the run.
			if len(result.Failed) > len(compileErrs) || compileErrs.HasErrors() {
				return fmt.Errorf("%d of %d documents failed to export", len(result.Failed), len(docs))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only export documents stored with this kind")
	cmd.Flags().StringVar(&render, "as", "", "Render every document as this kind instead of its stored kind")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Only export these document ids")

	return cmd
}
