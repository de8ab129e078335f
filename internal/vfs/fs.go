package vfs

import (
	"errors"
	"path"
	"strings"
)

// ErrNotExist is returned when a path has no file.
var ErrNotExist = errors.New("file does not exist")

// File is one entry of a write batch.
type File struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
	IsDir   bool   `json:"isDir,omitempty"`
}

// Event describes a change applied to the filesystem.
type Event struct {
	Path    string
	Content []byte
	Deleted bool
}

// Listener receives change events.
type Listener func(Event)

// FileSystem is the virtual filesystem consumed by the orchestrator, the
// installer and the dev server.
type FileSystem interface {
	WorkDir() string
	WriteFile(name string, content []byte) error
	ReadFile(name string) ([]byte, error)
	ReadDir(name string) ([]string, error)
	Remove(name string) error
	RemoveAll(name string) error
	Exists(name string) bool
	Snapshot() (*Snapshot, error)
	Restore(snap *Snapshot) error
	Subscribe(fn Listener) *Guard
}

// Normalize maps a caller supplied path to an absolute path rooted at workDir.
// Paths already under workDir are kept; ".." can never escape the root.
func Normalize(workDir, name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	clean := path.Clean("/" + name)
	root := path.Clean("/" + workDir)
	if root == "/" {
		return clean
	}
	if clean == root || strings.HasPrefix(clean, root+"/") {
		return clean
	}
	return path.Join(root, clean)
}

// Rel returns name relative to workDir, without a leading slash.
func Rel(workDir, name string) string {
	abs := Normalize(workDir, name)
	root := path.Clean("/" + workDir)
	return strings.TrimPrefix(strings.TrimPrefix(abs, root), "/")
}
