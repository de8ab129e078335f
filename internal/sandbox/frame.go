package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// DefaultReadyTimeout bounds the wait for the sandbox's ready message.
const DefaultReadyTimeout = 15 * time.Second

// FrameConfig configures a Frame.
type FrameConfig struct {
	// URL is the sandbox websocket endpoint. Ignored by AttachFrame.
	URL string
	// LocalOrigin is presented to the sandbox as this side's origin.
	LocalOrigin    string
	ReadyTimeout   time.Duration
	RequestTimeout time.Duration
	OnConsole      func(method, line string)
	Logger         *logging.Logger
	Metrics        *monitoring.Metrics
}

// Frame is an opened sandbox: a channel whose peer has signalled ready.
type Frame struct {
	*Channel
	origin string
}

// OpenFrame dials cfg.URL and waits for the sandbox to become ready.
func OpenFrame(ctx context.Context, cfg FrameConfig) (*Frame, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	remote, err := OriginOf(cfg.URL)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, readyTimeout(cfg))
	defer cancel()
	port, err := Dial(dialCtx, cfg.URL, cfg.LocalOrigin, logger)
	if err != nil {
		return nil, err
	}
	return AttachFrame(ctx, port, remote, cfg)
}

// AttachFrame wraps an existing port whose peer speaks for remoteOrigin and
// waits for the ready message. The port is closed on failure.
func AttachFrame(ctx context.Context, port Port, remoteOrigin string, cfg FrameConfig) (*Frame, error) {
	ch := NewChannel(port, Options{
		Origin:         remoteOrigin,
		RequestTimeout: cfg.RequestTimeout,
		OnConsole:      cfg.OnConsole,
		Logger:         cfg.Logger,
		Metrics:        cfg.Metrics,
	})

	timeout := readyTimeout(cfg)
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := ch.Expect(readyCtx, TypeReady); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("sandbox not ready within %s: %w", timeout, err)
	}
	ch.logger.Debug("sandbox ready", zap.String("origin", remoteOrigin))
	return &Frame{Channel: ch, origin: remoteOrigin}, nil
}

// Origin returns the sandbox's origin.
func (f *Frame) Origin() string {
	return f.origin
}

func readyTimeout(cfg FrameConfig) time.Duration {
	if cfg.ReadyTimeout > 0 {
		return cfg.ReadyTimeout
	}
	return DefaultReadyTimeout
}
