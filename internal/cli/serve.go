package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/orchestrator"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/project"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/sandbox/host"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	projectID string
	mode      string
	ignore    []string
}

func newServeCommand(a *app) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Load a project directory and serve its preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.projectID, "project", "p", "", "Project id (defaults to the directory name)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Transport mode: local or sandbox (overrides config)")
	cmd.Flags().StringSliceVar(&opts.ignore, "ignore", project.DefaultIgnore, "Glob patterns to skip when loading")
	return cmd
}

func (a *app) serve(ctx context.Context, dir string, opts *serveOptions) error {
	cfg := a.cfg
	if opts.mode != "" {
		cfg.Runtime.Mode = opts.mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	projectID := opts.projectID
	if projectID == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		projectID = filepath.Base(abs)
	}

	files, err := project.LoadDir(ctx, dir, opts.ignore)
	if err != nil {
		return err
	}
	a.logger.Info("project loaded", zap.String("project", projectID), zap.Int("files", len(files)))

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := monitoring.NewMetrics()
	console := func(method, line string) {
		a.printf("[sandbox:%s] %s\n", method, line)
	}
	tr, h, err := a.buildTransport(cfg, console, metrics)
	if err != nil {
		return err
	}
	if h != nil {
		go func() {
			if err := h.ListenAndServe(ctx); err != nil {
				a.logger.Error("sandbox host stopped", zap.Error(err))
			}
		}()
	}

	o, err := orchestrator.New(orchestrator.Options{
		Config:    cfg,
		Transport: tr,
		Store:     store,
		Output:    func(line string) { a.printf("%s\n", line) },
		Logger:    a.logger,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.Destroy(shutdownCtx); err != nil {
			a.logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	needsInstall, err := o.SetupProject(ctx, files, projectID)
	if err != nil {
		return err
	}
	if needsInstall {
		if err := o.InstallDependencies(ctx, projectID); err != nil {
			return err
		}
	}

	url, err := o.StartDevServer(ctx, projectID)
	if err != nil {
		var se *orchestrator.StartError
		if errors.As(err, &se) && se.Failure.SuggestedAction != "" {
			return fmt.Errorf("%s: %s", se.Failure.UserMessage, se.Failure.SuggestedAction)
		}
		return err
	}

	a.printf("Preview: %s\n", url)
	<-ctx.Done()
	a.printf("Shutting down...\n")
	return nil
}

// buildTransport creates the configured transport. In sandbox mode without a
// remote URL it also returns the in-process host, which the caller serves.
func (a *app) buildTransport(cfg *config.Config, console func(method, line string), metrics *monitoring.Metrics) (transport.Transport, *host.Host, error) {
	var h *host.Host
	if cfg.Runtime.Mode == config.ModeSandbox && cfg.Sandbox.URL == "" {
		h = host.New(cfg, nil, a.logger, metrics)
	}
	tr, err := transport.New(cfg, transport.Options{
		Host:      h,
		OnConsole: console,
		Logger:    a.logger,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	return tr, h, nil
}
