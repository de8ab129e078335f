// Package transport connects the orchestrator's filesystem to a running dev
// server, either in-process behind the local bridge or inside an isolated
// sandbox reached over a message channel.
package transport

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/devserver"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
)

// Modes reported by Transport.Mode.
const (
	ModeLocal   = "local"
	ModeSandbox = "sandbox"
)

// ErrNotInitialized is returned by Start before Init succeeded.
var ErrNotInitialized = errors.New("transport not initialized")

// StartOptions configures a dev server start.
type StartOptions struct {
	Port int
	Root string
}

// Transport runs the dev server for a session.
type Transport interface {
	Mode() string
	// Init prepares the transport once per session.
	Init(ctx context.Context) error
	// Start starts or restarts the dev server over fs and returns its URL.
	Start(ctx context.Context, fs vfs.FileSystem, opts StartOptions) (string, error)
	// Stop stops the current dev server, if any.
	Stop(ctx context.Context) error
	// Sync propagates one filesystem change to the running server.
	Sync(ctx context.Context, ev vfs.Event) error
	SetHMRTarget(target devserver.HMRTarget)
	Close(ctx context.Context) error
}
