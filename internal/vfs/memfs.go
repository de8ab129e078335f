package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

// MemFS is an in-memory FileSystem backed by afero.
type MemFS struct {
	fs      afero.Fs
	workDir string

	// writeMu orders mutations and their event delivery.
	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []listenerEntry
	nextID      uint64
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// NewMemFS creates an empty filesystem whose working directory is workDir.
func NewMemFS(workDir string) *MemFS {
	m := &MemFS{
		fs:      afero.NewMemMapFs(),
		workDir: path.Clean("/" + workDir),
	}
	_ = m.fs.MkdirAll(m.workDir, 0o755)
	return m
}

// WorkDir returns the working directory.
func (m *MemFS) WorkDir() string {
	return m.workDir
}

// WriteFile writes content, creating parent directories as needed.
func (m *MemFS) WriteFile(name string, content []byte) error {
	p := Normalize(m.workDir, name)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	data := append([]byte(nil), content...)
	if err := afero.WriteFile(m.fs, p, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	m.emit(Event{Path: p, Content: data})
	return nil
}

// ReadFile returns the content stored at name.
func (m *MemFS) ReadFile(name string) ([]byte, error) {
	p := Normalize(m.workDir, name)
	if info, err := m.fs.Stat(p); err == nil && info.IsDir() {
		return nil, fmt.Errorf("read %s: is a directory", p)
	}
	data, err := afero.ReadFile(m.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// ReadDir lists the entry names of a directory, sorted.
func (m *MemFS) ReadDir(name string) ([]string, error) {
	p := Normalize(m.workDir, name)
	infos, err := afero.ReadDir(m.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
		}
		return nil, fmt.Errorf("readdir %s: %w", p, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a file or an empty directory.
func (m *MemFS) Remove(name string) error {
	p := Normalize(m.workDir, name)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.fs.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", p, ErrNotExist)
		}
		return fmt.Errorf("remove %s: %w", p, err)
	}
	m.emit(Event{Path: p, Deleted: true})
	return nil
}

// RemoveAll deletes a path and everything below it. Missing paths are not an error.
func (m *MemFS) RemoveAll(name string) error {
	p := Normalize(m.workDir, name)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	existed, _ := afero.Exists(m.fs, p)
	if err := m.fs.RemoveAll(p); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	if p == m.workDir {
		_ = m.fs.MkdirAll(m.workDir, 0o755)
	}
	if existed {
		m.emit(Event{Path: p, Deleted: true})
	}
	return nil
}

// Exists reports whether a file or directory exists at name.
func (m *MemFS) Exists(name string) bool {
	ok, err := afero.Exists(m.fs, Normalize(m.workDir, name))
	return err == nil && ok
}

// Snapshot captures every file below the working directory.
func (m *MemFS) Snapshot() (*Snapshot, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	snap := &Snapshot{Root: m.workDir, Files: make(map[string][]byte)}
	err := afero.Walk(m.fs, m.workDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := afero.ReadFile(m.fs, p)
		if err != nil {
			return err
		}
		snap.Files[p] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", m.workDir, err)
	}
	return snap, nil
}

// Restore replaces the working tree with the snapshot contents. Restoring
// does not notify listeners: a snapshot seeds a fresh runtime, it is not an edit.
func (m *MemFS) Restore(snap *Snapshot) error {
	if snap == nil {
		return errors.New("restore: nil snapshot")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.fs.RemoveAll(m.workDir); err != nil {
		return fmt.Errorf("clear %s: %w", m.workDir, err)
	}
	if err := m.fs.MkdirAll(m.workDir, 0o755); err != nil {
		return err
	}
	for _, name := range snap.Paths() {
		p := Normalize(m.workDir, name)
		if err := m.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
			return err
		}
		if err := afero.WriteFile(m.fs, p, snap.Files[name], 0o644); err != nil {
			return fmt.Errorf("restore %s: %w", p, err)
		}
	}
	return nil
}

// Subscribe registers fn for change events until the guard is released.
func (m *MemFS) Subscribe(fn Listener) *Guard {
	m.listenersMu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	m.listenersMu.Unlock()

	return newGuard(func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	})
}

// Listeners returns the number of registered listeners.
func (m *MemFS) Listeners() int {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	return len(m.listeners)
}

// emit must be called with writeMu held.
func (m *MemFS) emit(ev Event) {
	m.listenersMu.RLock()
	listeners := make([]Listener, len(m.listeners))
	for i, l := range m.listeners {
		listeners[i] = l.fn
	}
	m.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
