// Package cli implements the devcontainer command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/storage"
	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	dev        bool

	cfg    *config.Config
	logger *logging.Logger
	out    io.Writer
}

// NewRootCommand builds the command tree writing user output to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "devcontainer",
		Short: "Run in-memory web projects behind a local bridge or an isolated sandbox",
		Long: `devcontainer turns a project directory into a running, previewable dev
server without touching the project on disk.

Files are loaded into a virtual filesystem, dependencies are resolved against
the npm registry only when the manifest changed, and the preview is served
either same-origin through the local bridge or from a separate sandbox origin.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file overlaid on the environment")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.dev, "dev", false, "Human-readable development logging")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newServeCommand(a),
		newSandboxHostCommand(a),
		newClassifyCommand(a),
		newLastErrorCommand(a),
	)
	return root
}

// Execute runs the command line against os.Args.
func Execute() error {
	return NewRootCommand(os.Stdout).Execute()
}

func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.dev {
		cfg.Logging.Development = true
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}
	return config.Load()
}

// openStore opens the durable store, or an in-memory one when no path is
// configured.
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	if a.cfg.Storage.Path == "" {
		return storage.NewMemory(), nil
	}
	store, err := storage.OpenSQLite(ctx, a.cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
