package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/manifest"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"go.uber.org/zap"
)

const (
	modulesDir = "node_modules"
	indexFile  = "index.html"
)

// SetupProject writes files into the working tree and reports whether the
// dependencies must be (re)installed. Concurrent calls for the same project
// share one run and its result; a caller whose ctx ends stops waiting while
// the run completes for the others. Switching to another project stops the
// preview and clears the previous working tree first. Files are written
// even when no install is needed.
func (o *Orchestrator) SetupProject(ctx context.Context, files []vfs.File, projectID string) (bool, error) {
	if projectID == "" {
		return false, errors.New("setup: project id is required")
	}
	if err := o.Initialize(ctx); err != nil {
		return false, err
	}

	// The shared run outlives any one caller's ctx.
	runCtx := context.WithoutCancel(ctx)
	ch := o.setups.DoChan(projectID, func() (interface{}, error) {
		needs, err := o.setup(runCtx, files, projectID)
		o.metrics.RecordSetup(err)
		return needs, err
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (o *Orchestrator) setup(ctx context.Context, files []vfs.File, projectID string) (bool, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	fs := o.filesystem()
	if fs == nil {
		return false, ErrNotInitialized
	}
	from := o.State()
	if err := o.transition("setup", StateSettingUp); err != nil {
		return false, err
	}

	o.mu.Lock()
	prev := o.lastProject
	o.lastProject = projectID
	o.session.project = projectID
	o.mu.Unlock()

	switched := prev != projectID
	if switched && prev != "" {
		o.emit(fmt.Sprintf("switching project %s -> %s", prev, projectID))
		if err := o.quiesce(ctx, from); err != nil {
			o.fail("setup", err)
			return false, err
		}
		if err := clearTree(fs); err != nil {
			o.fail("setup", err)
			return false, err
		}
	}

	root := fs.WorkDir()
	var manifestData []byte
	written := 0
	for _, f := range files {
		if f.IsDir {
			continue
		}
		p := vfs.Normalize(root, f.Path)
		if manifest.IsManifest(root, p) {
			manifestData = f.Content
		}
		if err := fs.WriteFile(p, f.Content); err != nil {
			o.fail("setup", err)
			return false, fmt.Errorf("setup %s: %w", projectID, err)
		}
		written++
	}
	if manifestData == nil {
		if data, err := fs.ReadFile(path.Join(root, manifest.FileName)); err == nil {
			manifestData = data
		}
	}
	o.injectImportMap(fs, manifestData)

	needs := o.needsInstall(ctx, fs, projectID, manifestData, switched)
	o.logger.Info("project set up",
		zap.String("project", projectID),
		zap.Int("files", written),
		zap.Bool("switched", switched),
		zap.Bool("needs_install", needs))
	return needs, nil
}

// needsInstall applies the reinstall rule: a project switch, a missing
// node_modules directory, or a manifest hash that differs from the last
// successful install. Without a manifest there is nothing to install.
func (o *Orchestrator) needsInstall(ctx context.Context, fs vfs.FileSystem, projectID string, manifestData []byte, switched bool) bool {
	if manifestData == nil {
		return false
	}
	if switched {
		return true
	}
	if !fs.Exists(path.Join(fs.WorkDir(), modulesDir)) {
		return true
	}
	stored, ok, err := o.hashes.Get(ctx, projectID)
	if err != nil {
		o.logger.Warn("read manifest hash failed", zap.String("project", projectID), zap.Error(err))
		return true
	}
	return !ok || stored != manifest.Hash(manifestData)
}

// quiesce stops a serving preview before the working tree is swapped.
func (o *Orchestrator) quiesce(ctx context.Context, from State) error {
	o.mu.Lock()
	o.syncGuard.Release()
	o.syncGuard = nil
	o.session.url = ""
	o.mu.Unlock()

	if from != StateServing && from != StateError {
		return nil
	}
	if err := o.transport.Stop(ctx); err != nil {
		return fmt.Errorf("stop previous dev server: %w", err)
	}
	return nil
}

func clearTree(fs vfs.FileSystem) error {
	root := fs.WorkDir()
	names, err := fs.ReadDir(root)
	if err != nil {
		if errors.Is(err, vfs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, name := range names {
		if err := fs.RemoveAll(path.Join(root, name)); err != nil {
			return fmt.Errorf("clear working tree: %w", err)
		}
	}
	return nil
}

// injectImportMap adds the fallback import map to index.html. Failures are
// logged and never fail the caller.
func (o *Orchestrator) injectImportMap(fs vfs.FileSystem, manifestData []byte) {
	if !o.cfg.ImportMap.Enabled || manifestData == nil {
		return
	}
	m, err := manifest.Parse(manifestData)
	if err != nil {
		return
	}
	index := path.Join(fs.WorkDir(), indexFile)
	doc, err := fs.ReadFile(index)
	if err != nil {
		return
	}

	out, changed, err := manifest.InjectImportMap(doc, manifest.BuildImportMap(m, o.cfg.ImportMap.CDN))
	if err != nil {
		o.logger.Warn("import map injection failed", zap.Error(err))
		return
	}
	if !changed {
		return
	}
	if err := fs.WriteFile(index, out); err != nil {
		o.logger.Warn("write import map failed", zap.Error(err))
	}
}

// InstallDependencies runs the installer for the active project and
// forwards its progress to the output hook. The manifest hash is stored only
// after a successful install; a failed install forgets it so the next setup
// reinstalls.
func (o *Orchestrator) InstallDependencies(ctx context.Context, projectID string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.install(ctx, projectID)
}

func (o *Orchestrator) install(ctx context.Context, projectID string) error {
	o.mu.RLock()
	fs, inst, active := o.session.fs, o.session.installer, o.session.project
	o.mu.RUnlock()
	if fs == nil {
		return ErrNotInitialized
	}
	projectID, err := o.resolveProject("install", projectID, active)
	if err != nil {
		return err
	}

	from := o.State()
	if err := o.transition("install", StateInstalling); err != nil {
		return err
	}

	manifestData, readErr := fs.ReadFile(path.Join(fs.WorkDir(), manifest.FileName))

	start := time.Now()
	res, err := inst.Install(ctx, o.emit)
	o.metrics.RecordInstall(err, time.Since(start))
	if err != nil {
		if ferr := o.hashes.Forget(context.WithoutCancel(ctx), projectID); ferr != nil {
			o.logger.Warn("forget manifest hash failed", zap.String("project", projectID), zap.Error(ferr))
		}
		o.fail("install", err)
		return &InstallError{ProjectID: projectID, Err: err}
	}

	if readErr == nil {
		if err := o.hashes.Put(context.WithoutCancel(ctx), projectID, manifest.Hash(manifestData)); err != nil {
			o.logger.Warn("store manifest hash failed", zap.String("project", projectID), zap.Error(err))
		}
	}

	back := StateSettingUp
	if from == StateServing {
		back = StateServing
	}
	if err := o.transition("install", back); err != nil {
		return err
	}
	if res != nil {
		o.logger.Info("dependencies installed",
			zap.String("project", projectID),
			zap.Int("packages", len(res.Packages)),
			zap.Duration("duration", res.Duration))
	}
	return nil
}

// WriteFile writes one file. The change reaches an active sandbox through
// the sync subscription.
func (o *Orchestrator) WriteFile(_ context.Context, name string, content []byte) error {
	fs := o.filesystem()
	if fs == nil {
		return ErrNotInitialized
	}
	return fs.WriteFile(vfs.Normalize(fs.WorkDir(), name), content)
}

// DeleteFile removes a file or directory. Missing paths are not an error.
func (o *Orchestrator) DeleteFile(_ context.Context, name string) error {
	fs := o.filesystem()
	if fs == nil {
		return ErrNotInitialized
	}
	return fs.RemoveAll(vfs.Normalize(fs.WorkDir(), name))
}

// UpdateFiles applies an incremental batch. A manifest in the batch that is
// not a JSON object with a name is skipped and logged; the rest of the batch
// still applies. A valid manifest whose hash differs from the last install
// triggers an install once the batch is written.
func (o *Orchestrator) UpdateFiles(ctx context.Context, batch []vfs.File, projectID string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.RLock()
	fs, active := o.session.fs, o.session.project
	o.mu.RUnlock()
	if fs == nil {
		return ErrNotInitialized
	}
	projectID, err := o.resolveProject("update", projectID, active)
	if err != nil {
		return err
	}

	root := fs.WorkDir()
	var manifestData []byte
	touchedIndex := false
	for _, f := range batch {
		if f.IsDir {
			continue
		}
		p := vfs.Normalize(root, f.Path)
		if manifest.IsManifest(root, p) {
			if err := manifest.Validate(f.Content); err != nil {
				o.logger.Warn("skipping invalid manifest update",
					zap.String("project", projectID),
					zap.String("path", p),
					zap.Error(err))
				o.emit(fmt.Sprintf("skipped %s: %v", vfs.Rel(root, p), err))
				o.metrics.IncSkippedManifest()
				continue
			}
			manifestData = f.Content
		}
		if p == path.Join(root, indexFile) {
			touchedIndex = true
		}
		if err := fs.WriteFile(p, f.Content); err != nil {
			return fmt.Errorf("update %s: %w", projectID, err)
		}
	}

	if touchedIndex || manifestData != nil {
		current := manifestData
		if current == nil {
			current, _ = fs.ReadFile(path.Join(root, manifest.FileName))
		}
		o.injectImportMap(fs, current)
	}

	if manifestData == nil {
		return nil
	}
	stored, ok, err := o.hashes.Get(ctx, projectID)
	if err != nil {
		o.logger.Warn("read manifest hash failed", zap.String("project", projectID), zap.Error(err))
	}
	if ok && stored == manifest.Hash(manifestData) {
		return nil
	}
	o.emit("manifest changed, reinstalling dependencies")
	return o.install(ctx, projectID)
}
