package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/devserver"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/sandbox/host"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"go.uber.org/zap"
)

// Opener opens a sandbox frame.
type Opener func(ctx context.Context, cfg sandbox.FrameConfig) (*sandbox.Frame, error)

// DialOpener opens frames over a websocket to url.
func DialOpener(url string) Opener {
	return func(ctx context.Context, cfg sandbox.FrameConfig) (*sandbox.Frame, error) {
		cfg.URL = url
		return sandbox.OpenFrame(ctx, cfg)
	}
}

// PipeOpener runs h in-process and connects to it over a pipe. hostOrigin is
// the origin the host's messages are attributed to.
func PipeOpener(h *host.Host, hostOrigin string) Opener {
	return func(ctx context.Context, cfg sandbox.FrameConfig) (*sandbox.Frame, error) {
		local, remote := sandbox.Pipe(cfg.LocalOrigin, hostOrigin)
		go func() {
			// The session ends when the frame closes the pipe.
			_ = h.Serve(context.Background(), remote)
		}()
		return sandbox.AttachFrame(ctx, local, hostOrigin, cfg)
	}
}

// Sandbox runs the dev server inside an isolated sandbox origin.
type Sandbox struct {
	open        Opener
	localOrigin string
	cfg         config.SandboxConfig
	onConsole   func(method, line string)
	logger      *logging.Logger
	metrics     *monitoring.Metrics

	mu    sync.Mutex
	frame *sandbox.Frame

	// opened is set by Init and cleared by Close. Start reopens a frame
	// dropped by Stop only while it is set.
	opened bool

	// syncMu orders sync messages; until the snapshot is acknowledged they
	// are queued.
	syncMu sync.Mutex
	live   bool
	queue  []sandbox.Message
}

// SandboxOptions configures a sandbox transport.
type SandboxOptions struct {
	Open Opener
	// LocalOrigin is this side's origin as presented to the sandbox.
	LocalOrigin string
	Config      config.SandboxConfig
	OnConsole   func(method, line string)
	Logger      *logging.Logger
	Metrics     *monitoring.Metrics
}

// NewSandbox creates a sandbox transport.
func NewSandbox(opts SandboxOptions) *Sandbox {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sandbox{
		open:        opts.Open,
		localOrigin: opts.LocalOrigin,
		cfg:         opts.Config,
		onConsole:   opts.OnConsole,
		logger:      logger.Named("transport.sandbox"),
		metrics:     opts.Metrics,
	}
}

func (s *Sandbox) Mode() string { return ModeSandbox }

// Init opens the frame and waits for ready. Idempotent while the frame lives.
func (s *Sandbox) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame != nil {
		select {
		case <-s.frame.Done():
		default:
			return nil
		}
	}

	frame, err := s.open(ctx, sandbox.FrameConfig{
		LocalOrigin:    s.localOrigin,
		ReadyTimeout:   s.cfg.ReadyTimeout,
		RequestTimeout: s.cfg.RequestTimeout,
		OnConsole:      s.onConsole,
		Logger:         s.logger,
		Metrics:        s.metrics,
	})
	if err != nil {
		return err
	}
	s.frame = frame
	s.opened = true
	s.logger.Info("sandbox frame ready", zap.String("origin", frame.Origin()))
	return nil
}

// Start sends the snapshot, flushes queued changes and starts the server.
func (s *Sandbox) Start(ctx context.Context, fs vfs.FileSystem, opts StartOptions) (string, error) {
	url, err := s.start(ctx, fs, opts)
	s.metrics.RecordDevServerStart(ModeSandbox, err)
	return url, err
}

func (s *Sandbox) start(ctx context.Context, fs vfs.FileSystem, opts StartOptions) (string, error) {
	frame, err := s.reopen(ctx)
	if err != nil {
		return "", err
	}

	s.syncMu.Lock()
	s.live = false
	s.queue = nil
	s.syncMu.Unlock()

	snap, err := fs.Snapshot()
	if err != nil {
		return "", err
	}
	data, err := snap.Encode()
	if err != nil {
		return "", err
	}

	initTimeout := s.cfg.InitTimeout
	if initTimeout <= 0 {
		initTimeout = 30 * time.Second
	}
	if _, err := frame.Request(ctx,
		sandbox.Message{Type: sandbox.TypeInit, Snapshot: data},
		sandbox.WithTimeout(initTimeout),
		sandbox.AbortOnError(),
	); err != nil {
		return "", fmt.Errorf("sandbox init: %w", err)
	}
	s.logger.Debug("snapshot acknowledged", zap.Int("files", len(snap.Files)), zap.Int("bytes", len(data)))

	if err := s.goLive(ctx, frame); err != nil {
		return "", err
	}

	reply, err := frame.Request(ctx, sandbox.Message{
		Type: sandbox.TypeStartDevServer,
		Port: opts.Port,
		Root: opts.Root,
	})
	if err != nil {
		return "", err
	}

	url := reply.URL
	if strings.HasPrefix(url, "/") {
		url = frame.Origin() + url
	}
	s.logger.Info("dev server started", zap.Int("port", opts.Port), zap.String("url", url))
	return url, nil
}

// reopen returns the live frame, opening a new one if Stop dropped it.
func (s *Sandbox) reopen(ctx context.Context) (*sandbox.Frame, error) {
	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return nil, ErrNotInitialized
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, nil
}

func (s *Sandbox) goLive(ctx context.Context, frame *sandbox.Frame) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	for _, msg := range s.queue {
		if err := frame.Send(ctx, msg); err != nil {
			return fmt.Errorf("flush sync queue: %w", err)
		}
		s.metrics.IncSync()
	}
	s.queue = nil
	s.live = true
	return nil
}

// Stop stops forwarding changes and closes the frame, which ends the
// sandbox session and takes its preview down. The next Start reopens it.
func (s *Sandbox) Stop(context.Context) error {
	s.syncMu.Lock()
	s.live = false
	s.queue = nil
	s.syncMu.Unlock()

	s.mu.Lock()
	frame := s.frame
	s.frame = nil
	s.mu.Unlock()

	if frame == nil {
		return nil
	}
	s.logger.Debug("sandbox frame closed on stop")
	return frame.Close()
}

// Sync sends a syncFile message, or queues it while a start is in flight.
func (s *Sandbox) Sync(ctx context.Context, ev vfs.Event) error {
	msg := sandbox.SyncWrite(ev.Path, ev.Content)
	if ev.Deleted {
		msg = sandbox.SyncDelete(ev.Path)
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if !s.live {
		s.queue = append(s.queue, msg)
		return nil
	}

	s.mu.Lock()
	frame := s.frame
	s.mu.Unlock()
	if frame == nil {
		return ErrNotInitialized
	}
	if err := frame.Send(ctx, msg); err != nil {
		return err
	}
	s.metrics.IncSync()
	return nil
}

// SetHMRTarget is a no-op: the sandbox's server reloads its own clients.
func (s *Sandbox) SetHMRTarget(devserver.HMRTarget) {}

// Origin returns the sandbox origin, or "" before Init.
func (s *Sandbox) Origin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return ""
	}
	return s.frame.Origin()
}

// Close closes the frame. Start fails with ErrNotInitialized until the
// next Init.
func (s *Sandbox) Close(ctx context.Context) error {
	s.mu.Lock()
	s.opened = false
	s.mu.Unlock()
	return s.Stop(ctx)
}
