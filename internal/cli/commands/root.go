package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/cli/config"
	"github.com/dphaener/ddmark/internal/cli/ui"
	compilererrors "github.com/dphaener/ddmark/internal/compiler/errors"
	"github.com/dphaener/ddmark/internal/logging"
	"github.com/dphaener/ddmark/pkg/diagram"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// GlobalOptions holds the persistent flags every subcommand reads
type GlobalOptions struct {
	ConfigPath string
	NoColor    bool
	LogLevel   string
}

// Config loads ddmark.yaml, or the file named by --config. --log-level
// overrides the configured level.
func (o *GlobalOptions) Config() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.LoadFile(o.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &configError{err: err}
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, nil
}

// Setup loads the configuration and builds the logger for it
func (o *GlobalOptions) Setup() (*config.Config, *zap.Logger, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, &configError{err: err}
	}
	return cfg, logger, nil
}

// configError marks failures the user fixes in ddmark.yaml
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "ddmark",
		Short: "Design-document to diagram converter",
		Long: color.CyanString(`ddmark - Diagrams from DDD design documents

ddmark reads semi-structured Markdown design documents and writes
Mermaid or PlantUML diagram source for them.

Diagram kinds:
  • class       domain model documents
  • er          database design documents
  • flow        business operation documents
  • robustness  use case documents`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.NoColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Config file (default ./ddmark.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewRenderCommand(opts))
	rootCmd.AddCommand(NewInspectCommand(opts))
	rootCmd.AddCommand(NewWatchCommand(opts))
	rootCmd.AddCommand(NewServeCommand(opts))
	rootCmd.AddCommand(NewExportCommand(opts))
	rootCmd.AddCommand(NewInitCommand(opts))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		return err
	}
	return nil
}

// reportError prints err the way its kind calls for: compiler errors with
// their code and suggestions, configuration errors with a pointer to init.
func reportError(w io.Writer, err error) {
	if _, ok := compilererrors.As(err); ok {
		fmt.Fprint(w, ui.CompilerError(err, diagram.KindNames(), color.NoColor))
		return
	}
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		fmt.Fprint(w, ui.ConfigError(cfgErr.Error(), color.NoColor))
		return
	}
	errorColor := color.New(color.FgRed, color.Bold)
	errorColor.Fprintf(w, "Error: %v\n", err)
}
