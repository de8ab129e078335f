package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/devserver"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"go.uber.org/zap"
)

// Local serves the dev server in-process behind the bridge.
type Local struct {
	bridge  *bridge.Bridge
	factory devserver.Factory
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	ready  bool
	server devserver.Server
	target devserver.HMRTarget
}

// NewLocal creates a local transport.
func NewLocal(b *bridge.Bridge, factory devserver.Factory, logger *logging.Logger, metrics *monitoring.Metrics) *Local {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Local{
		bridge:  b,
		factory: factory,
		logger:  logger.Named("transport.local"),
		metrics: metrics,
	}
}

func (l *Local) Mode() string { return ModeLocal }

// Init starts the bridge listener.
func (l *Local) Init(ctx context.Context) error {
	if err := l.bridge.Init(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	l.ready = true
	l.mu.Unlock()
	return nil
}

// Start replaces any running server: the old one is stopped and unregistered
// before the new one is registered and started.
func (l *Local) Start(ctx context.Context, fs vfs.FileSystem, opts StartOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ready {
		return "", ErrNotInitialized
	}
	l.stopLocked(ctx)

	srv, err := l.factory(fs, devserver.Options{Port: opts.Port, Root: opts.Root})
	if err != nil {
		l.metrics.RecordDevServerStart(ModeLocal, err)
		return "", fmt.Errorf("create dev server: %w", err)
	}
	if l.target != nil {
		srv.SetHMRTarget(l.target)
	}

	if err := l.bridge.RegisterServer(srv, opts.Port); err != nil {
		l.metrics.RecordDevServerStart(ModeLocal, err)
		return "", err
	}
	if err := srv.Start(ctx); err != nil {
		l.bridge.UnregisterServer(opts.Port)
		l.metrics.RecordDevServerStart(ModeLocal, err)
		return "", err
	}

	url, err := l.bridge.ServerURL(opts.Port)
	if err != nil {
		_ = srv.Stop(ctx)
		l.bridge.UnregisterServer(opts.Port)
		l.metrics.RecordDevServerStart(ModeLocal, err)
		return "", err
	}

	l.server = srv
	l.metrics.RecordDevServerStart(ModeLocal, nil)
	l.logger.Info("dev server started", zap.Int("port", opts.Port), zap.String("url", url))
	return url, nil
}

// Stop stops and unregisters the current server.
func (l *Local) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked(ctx)
	return nil
}

func (l *Local) stopLocked(ctx context.Context) {
	if l.server == nil {
		return
	}
	if err := l.server.Stop(ctx); err != nil {
		l.logger.Warn("stop dev server failed", zap.Error(err))
	}
	l.bridge.UnregisterServer(l.server.Port())
	l.server = nil
}

// Sync tells the running server about a change. The server reads the same
// filesystem, so only a reload notification is needed.
func (l *Local) Sync(_ context.Context, ev vfs.Event) error {
	l.mu.Lock()
	srv := l.server
	l.mu.Unlock()

	if srv != nil {
		srv.Notify(ev.Path)
		l.metrics.IncSync()
	}
	return nil
}

// SetHMRTarget rebinds the live server and remembers target for restarts.
func (l *Local) SetHMRTarget(target devserver.HMRTarget) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.target = target
	if l.server != nil {
		l.server.SetHMRTarget(target)
	}
}

// Close stops the server and the bridge.
func (l *Local) Close(ctx context.Context) error {
	l.mu.Lock()
	l.stopLocked(ctx)
	l.ready = false
	l.mu.Unlock()
	return l.bridge.Close(ctx)
}
