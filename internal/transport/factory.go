package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/devserver"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/sandbox/host"
)

// Options configures New.
type Options struct {
	// Factory creates dev servers. Nil uses the static server.
	Factory devserver.Factory
	// Host serves in-process sandbox sessions when no sandbox URL is
	// configured. Nil creates one.
	Host      *host.Host
	OnConsole func(method, line string)
	Logger    *logging.Logger
	Metrics   *monitoring.Metrics
}

// New builds the transport selected by cfg.Runtime.Mode.
func New(cfg *config.Config, opts Options) (Transport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	factory := opts.Factory
	if factory == nil {
		factory = devserver.NewFactory(logger)
	}

	switch cfg.Runtime.Mode {
	case ModeLocal:
		return NewLocal(bridge.New(cfg, logger, opts.Metrics), factory, logger, opts.Metrics), nil
	case ModeSandbox:
		if len(cfg.Sandbox.ParentOrigins) == 0 {
			return nil, errors.New("sandbox mode needs at least one parent origin")
		}
		open := DialOpener(cfg.Sandbox.URL)
		if cfg.Sandbox.URL == "" {
			h := opts.Host
			if h == nil {
				h = host.New(cfg, factory, logger, opts.Metrics)
			}
			open = PipeOpener(h, HostOrigin(cfg.Sandbox.HostAddr))
		}
		return NewSandbox(SandboxOptions{
			Open:        open,
			LocalOrigin: cfg.Sandbox.ParentOrigins[0],
			Config:      cfg.Sandbox,
			OnConsole:   opts.OnConsole,
			Logger:      logger,
			Metrics:     opts.Metrics,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Runtime.Mode)
	}
}

// HostOrigin returns the origin of a sandbox host listening on addr.
func HostOrigin(addr string) string {
	if strings.Contains(addr, "://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + addr
}
