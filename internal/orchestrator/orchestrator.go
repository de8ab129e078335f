package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/devserver"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/installer"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/storage"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/transport"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options configures an Orchestrator. Only Config is required.
type Options struct {
	Config *config.Config
	// Transport runs the dev server. Nil builds one from Config.
	Transport transport.Transport
	// Installer creates the dependency installer. Nil uses the registry.
	Installer installer.Factory
	// FS creates the virtual filesystem. Nil uses vfs.NewMemFS.
	FS func(workDir string) vfs.FileSystem
	// Store persists manifest hashes and the last failure. Nil keeps them
	// in memory.
	Store storage.Store
	// Owner enforces the single active session. Nil uses DefaultOwner.
	Owner *Owner
	// Output receives human-readable progress and log lines.
	Output  func(line string)
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Orchestrator drives one runtime session through setup, install and
// serving, and mirrors file changes to the active transport.
type Orchestrator struct {
	cfg          *config.Config
	transport    transport.Transport
	newFS        func(workDir string) vfs.FileSystem
	newInstaller installer.Factory
	hashes       *storage.HashHistory
	failures     *storage.FailureSlot
	owner        *Owner
	logger       *logging.Logger
	metrics      *monitoring.Metrics

	outMu  sync.Mutex
	output func(line string)

	setups singleflight.Group

	// opMu serializes lifecycle operations.
	opMu sync.Mutex

	mu          sync.RWMutex
	state       State
	session     *Session
	syncGuard   *vfs.Guard
	lastProject string
}

// New creates an orchestrator in the Uninitialized state. The session and
// its preview port are fixed here for the orchestrator's lifetime.
func New(opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("orchestrator: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("orchestrator")

	store := opts.Store
	if store == nil {
		store = storage.NewMemory()
	}

	o := &Orchestrator{
		cfg:          cfg,
		transport:    opts.Transport,
		newFS:        opts.FS,
		newInstaller: opts.Installer,
		hashes:       storage.NewHashHistory(store, cfg.Storage.HashCacheSize),
		failures:     storage.NewFailureSlot(store),
		owner:        opts.Owner,
		logger:       logger,
		metrics:      opts.Metrics,
		output:       opts.Output,
		state:        StateUninitialized,
	}
	if o.newFS == nil {
		o.newFS = func(workDir string) vfs.FileSystem { return vfs.NewMemFS(workDir) }
	}
	if o.newInstaller == nil {
		o.newInstaller = installer.NewFactory(cfg.Installer, logger)
	}
	if o.owner == nil {
		o.owner = DefaultOwner()
	}
	if o.transport == nil {
		t, err := transport.New(cfg, transport.Options{
			OnConsole: o.console,
			Logger:    logger,
			Metrics:   opts.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		o.transport = t
	}

	o.session = newSession(o.transport.Mode(), cfg.Runtime.PortBase, cfg.Runtime.PortSpan)
	return o, nil
}

// Initialize creates the filesystem and installer and initializes the
// transport. It is a no-op while already initialized. Failures are fatal
// for this attempt and are not retried.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.filesystem() != nil {
		return nil
	}
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.initialize(ctx)
}

func (o *Orchestrator) initialize(ctx context.Context) error {
	if o.filesystem() != nil {
		return nil
	}

	sess := o.session
	if err := o.owner.Acquire(sess.ID); err != nil {
		return err
	}
	if err := o.transition("initialize", StateInitializing); err != nil {
		o.owner.Release(sess.ID)
		return err
	}

	if err := o.transport.Init(ctx); err != nil {
		o.owner.Release(sess.ID)
		o.fail("initialize", err)
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	fs := o.newFS(o.cfg.Runtime.WorkDir)
	o.mu.Lock()
	sess.fs = fs
	sess.installer = o.newInstaller(fs)
	o.mu.Unlock()

	if err := o.transition("initialize", StateIdle); err != nil {
		return err
	}
	o.metrics.SessionStarted()
	o.logger.Info("runtime initialized",
		zap.String("session", sess.ID.String()),
		zap.String("mode", sess.Mode),
		zap.Int("port", sess.Port))
	return nil
}

// SetHMRTarget rebinds the dev server's live reload target. It only has an
// effect in local mode; the sandbox reloads its own clients.
func (o *Orchestrator) SetHMRTarget(target devserver.HMRTarget) {
	if o.transport.Mode() != transport.ModeLocal {
		o.logger.Debug("ignoring HMR target outside local mode")
		return
	}
	o.transport.SetHMRTarget(target)
}

// Destroy tears down the server, the transport and every session handle.
// It is safe from any state and idempotent.
func (o *Orchestrator) Destroy(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	sess := o.session
	wasLive := sess.fs != nil
	o.syncGuard.Release()
	o.syncGuard = nil
	sess.fs = nil
	sess.installer = nil
	sess.project = ""
	sess.url = ""
	o.lastProject = ""
	prev := o.state
	o.state = StateUninitialized
	o.mu.Unlock()

	o.owner.Release(sess.ID)
	if prev == StateUninitialized {
		return nil
	}

	err := o.transport.Close(ctx)
	if wasLive {
		o.metrics.SessionEnded()
	}
	o.logger.Info("runtime destroyed", zap.String("session", sess.ID.String()), zap.String("from", string(prev)))
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Session describes the runtime session.
func (o *Orchestrator) Session() SessionInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return SessionInfo{
		ID:        o.session.ID.String(),
		Port:      o.session.Port,
		Mode:      o.session.Mode,
		ProjectID: o.session.project,
		URL:       o.session.url,
		State:     o.state,
	}
}

// FS returns the session's filesystem, or nil before Initialize.
func (o *Orchestrator) FS() vfs.FileSystem {
	return o.filesystem()
}

// LastFailure returns the most recently persisted start failure, if any.
func (o *Orchestrator) LastFailure(ctx context.Context) (*storage.FailureRecord, error) {
	return o.failures.Load(ctx)
}

func (o *Orchestrator) filesystem() vfs.FileSystem {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.session.fs
}

func (o *Orchestrator) transition(op string, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !CanTransition(o.state, to) {
		return stateError(op, o.state)
	}
	o.logger.Debug("state transition", zap.String("from", string(o.state)), zap.String("to", string(to)))
	o.state = to
	return nil
}

func (o *Orchestrator) fail(op string, err error) {
	o.mu.Lock()
	o.state = StateError
	o.mu.Unlock()
	o.logger.Error(op+" failed", zap.Error(err))
}

// emit forwards one line to the output hook.
func (o *Orchestrator) emit(line string) {
	if o.output == nil {
		return
	}
	o.outMu.Lock()
	defer o.outMu.Unlock()
	o.output(line)
}

func (o *Orchestrator) console(method, line string) {
	if method == "" || method == "log" {
		o.emit(line)
		return
	}
	o.emit("[" + method + "] " + line)
}
