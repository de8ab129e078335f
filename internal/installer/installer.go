// Package installer resolves a project's declared dependencies and
// materializes them under node_modules in the virtual filesystem.
package installer

import (
	"context"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
)

// Package is one installed dependency.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dev     bool   `json:"dev,omitempty"`
}

// Result summarizes a completed install.
type Result struct {
	Packages []Package
	Duration time.Duration
}

// Installer installs the dependencies declared by the project's manifest.
// Every progress line is passed to onProgress verbatim.
type Installer interface {
	Install(ctx context.Context, onProgress func(line string)) (*Result, error)
}

// Factory creates an installer bound to fs.
type Factory func(fs vfs.FileSystem) Installer
