// Package project loads a project directory from disk into a write batch
// for the orchestrator.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// DefaultIgnore skips installed dependencies, VCS metadata and build output.
var DefaultIgnore = []string{
	"node_modules/**",
	".git/**",
	"dist/**",
	"**/.DS_Store",
}

// probe is appended to a directory path so "dir/**" patterns match the
// directory itself.
const probe = "/\x00"

// LoadDir reads every regular file below dir. Paths in the batch are
// slash-separated and relative to dir, sorted. Paths matching any ignore
// pattern (doublestar syntax, relative to dir) are skipped, and so is
// everything below a matching directory.
func LoadDir(ctx context.Context, dir string, ignore []string) ([]vfs.File, error) {
	for _, p := range ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var (
		mu    sync.Mutex
		files []vfs.File
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ignored(ignore, rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignored(ignore, rel, false) {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		mu.Lock()
		files = append(files, vfs.File{Path: rel, Content: data})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func ignored(patterns []string, rel string, dir bool) bool {
	for _, p := range patterns {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
		if dir && doublestar.MatchUnvalidated(p, rel+probe) {
			return true
		}
	}
	return false
}
