package commands

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dphaener/ddmark/internal/cli/config"
	"github.com/dphaener/ddmark/internal/cli/ui"
	"github.com/dphaener/ddmark/pkg/diagram"
)

// initAnswers are the settings init asks for
type initAnswers struct {
	DefaultKind  string
	OutputDir    string
	WatchPath    string
	CacheBackend string
	RedisURL     string
	DatabaseURL  string
	Driver       string
	Port         string
}

// answersFrom seeds the prompts with cfg
func answersFrom(cfg *config.Config) *initAnswers {
	watchPath := "."
	if len(cfg.Watch.Paths) > 0 {
		watchPath = cfg.Watch.Paths[0]
	}
	return &initAnswers{
		DefaultKind:  cfg.Render.DefaultKind,
		OutputDir:    cfg.Render.OutputDir,
		WatchPath:    watchPath,
		CacheBackend: cfg.Cache.Backend,
		RedisURL:     cfg.Cache.RedisURL,
		DatabaseURL:  cfg.Database.URL,
		Driver:       cfg.Database.Driver,
		Port:         strconv.Itoa(cfg.Server.Port),
	}
}

// apply copies the answers onto cfg
func (a *initAnswers) apply(cfg *config.Config) error {
	port, err := strconv.Atoi(a.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", a.Port)
	}
	cfg.Render.DefaultKind = a.DefaultKind
	cfg.Render.OutputDir = a.OutputDir
	cfg.Watch.Paths = []string{a.WatchPath}
	cfg.Cache.Backend = a.CacheBackend
	cfg.Cache.RedisURL = a.RedisURL
	cfg.Database.URL = a.DatabaseURL
	cfg.Database.Driver = a.Driver
	cfg.Server.Port = port
	return nil
}

// NewInitCommand creates the init command
func NewInitCommand(opts *GlobalOptions) *cobra.Command {
	var (
		output string
		yes    bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a ddmark.yaml configuration file",
		Long: `Create a ddmark.yaml configuration file interactively.

You will be asked for the default diagram kind, where diagrams are written,
which directory to watch, the cache backend and an optional database holding
design documents. Use --yes to accept every default without prompting.`,
		Example: `  ddmark init
  ddmark init --yes --output config/ddmark.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("output") && opts.ConfigPath != "" {
				output = opts.ConfigPath
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			cfg := config.Default()
			answers := answersFrom(cfg)
			if !yes {
				if err := askInit(answers); err != nil {
					return err
				}
			}
			if err := answers.apply(cfg); err != nil {
				return err
			}

			data, err := marshalConfig(cfg)
			if err != nil {
				return err
			}
			if err := writeFile(output, string(data)); err != nil {
				return err
			}

			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Created %s", output), color.NoColor)
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Next steps:")
			fmt.Fprintln(cmd.OutOrStdout(), "  ddmark render docs/domain-model.md")
			fmt.Fprintln(cmd.OutOrStdout(), "  ddmark watch")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", config.FileName+".yaml", "Path of the file to create")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept all defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func askInit(a *initAnswers) error {
	kinds := append([]string{diagram.KindAuto}, diagram.KindNames()...)
	if err := survey.AskOne(&survey.Select{
		Message: "Default diagram kind:",
		Options: kinds,
		Default: a.DefaultKind,
	}, &a.DefaultKind); err != nil {
		return err
	}

	if err := survey.AskOne(&survey.Input{
		Message: "Output directory for rendered diagrams:",
		Default: a.OutputDir,
	}, &a.OutputDir, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	if err := survey.AskOne(&survey.Input{
		Message: "Directory to watch for design documents:",
		Default: a.WatchPath,
	}, &a.WatchPath, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	if err := survey.AskOne(&survey.Select{
		Message: "Cache backend:",
		Options: []string{"memory", "redis", "none"},
		Default: a.CacheBackend,
	}, &a.CacheBackend); err != nil {
		return err
	}
	if a.CacheBackend == "redis" {
		if err := survey.AskOne(&survey.Input{
			Message: "Redis URL:",
			Default: a.RedisURL,
		}, &a.RedisURL, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}

	var useDatabase bool
	if err := survey.AskOne(&survey.Confirm{
		Message: "Read design documents from a database?",
		Default: a.DatabaseURL != "",
	}, &useDatabase); err != nil {
		return err
	}
	if useDatabase {
		if err := survey.AskOne(&survey.Select{
			Message: "Database driver:",
			Options: []string{"pgx", "postgres", "sqlite3"},
			Default: a.Driver,
		}, &a.Driver); err != nil {
			return err
		}
		if err := survey.AskOne(&survey.Input{
			Message: "Database URL:",
			Default: a.DatabaseURL,
		}, &a.DatabaseURL, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	} else {
		a.DatabaseURL = ""
	}

	return survey.AskOne(&survey.Input{
		Message: "HTTP port for ddmark serve:",
		Default: a.Port,
	}, &a.Port, survey.WithValidator(func(ans interface{}) error {
		s, _ := ans.(string)
		if n, err := strconv.Atoi(s); err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("port must be a number between 1 and 65535")
		}
		return nil
	}))
}

func marshalConfig(cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# ddmark configuration\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
