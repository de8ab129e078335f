package devserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
)

// ErrNotRunning is returned by operations that need a started server.
var ErrNotRunning = errors.New("dev server is not running")

// HMRTarget receives live-reload notifications. Paths are relative to the
// server root.
type HMRTarget interface {
	Reload(path string) error
}

// FuncTarget adapts a function to HMRTarget.
type FuncTarget func(path string) error

// Reload calls f.
func (f FuncTarget) Reload(path string) error { return f(path) }

// Options configures a server.
type Options struct {
	Port int
	// Root is the served directory. Defaults to the filesystem's work dir.
	Root string
}

// Server is a running development server.
type Server interface {
	http.Handler
	Port() int
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetHMRTarget(target HMRTarget)
	// Notify reports a changed path so connected clients can reload.
	Notify(path string)
}

// Factory creates a server over fs.
type Factory func(fs vfs.FileSystem, opts Options) (Server, error)
