package orchestrator

import (
	"context"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/classify"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/storage"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/transport"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"go.uber.org/zap"
)

// StartDevServer starts, or restarts, the dev server for the active project
// and returns its preview URL. An empty projectID means the active project.
// Failures are classified, persisted to the
// last-failure slot and returned as *StartError.
func (o *Orchestrator) StartDevServer(ctx context.Context, projectID string) (string, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.RLock()
	sess := o.session
	fs, active := sess.fs, sess.project
	o.mu.RUnlock()
	if fs == nil {
		return "", ErrNotInitialized
	}
	projectID, err := o.resolveProject("start", projectID, active)
	if err != nil {
		return "", err
	}
	if err := o.transition("start", StateStarting); err != nil {
		return "", err
	}

	// Subscribe before starting so no write between the snapshot and the
	// server going live is lost.
	o.mu.Lock()
	if !o.syncGuard.Active() {
		o.syncGuard = fs.Subscribe(o.forward)
	}
	o.mu.Unlock()

	url, err := o.transport.Start(ctx, fs, transport.StartOptions{Port: sess.Port, Root: fs.WorkDir()})
	if err != nil {
		return "", o.startFailed(ctx, projectID, err)
	}

	if err := o.failures.Clear(context.WithoutCancel(ctx)); err != nil {
		o.logger.Warn("clear last failure failed", zap.Error(err))
	}
	o.mu.Lock()
	sess.url = url
	o.mu.Unlock()
	if err := o.transition("start", StateServing); err != nil {
		return "", err
	}

	o.emit("dev server ready at " + url)
	o.logger.Info("dev server serving",
		zap.String("project", projectID),
		zap.String("mode", o.transport.Mode()),
		zap.String("url", url))
	return url, nil
}

func (o *Orchestrator) startFailed(ctx context.Context, projectID string, err error) error {
	o.mu.Lock()
	o.syncGuard.Release()
	o.syncGuard = nil
	o.mu.Unlock()

	failure := classify.Classify(err.Error())
	o.metrics.RecordFailure(string(failure.Kind))

	rec := storage.FailureRecord{
		ProjectID:       projectID,
		Kind:            string(failure.Kind),
		UserMessage:     failure.UserMessage,
		SuggestedAction: failure.SuggestedAction,
		Raw:             failure.Raw,
		At:              time.Now(),
	}
	if serr := o.failures.Save(context.WithoutCancel(ctx), rec); serr != nil {
		o.logger.Warn("persist failure failed", zap.Error(serr))
	}

	o.emit(failure.UserMessage)
	if failure.SuggestedAction != "" {
		o.emit(failure.SuggestedAction)
	}
	o.fail("start", err)
	return &StartError{ProjectID: projectID, Failure: failure, Err: err}
}

// forward mirrors one filesystem change to the transport. It runs inside
// the filesystem's write path, so changes leave in the order applied.
func (o *Orchestrator) forward(ev vfs.Event) {
	if err := o.transport.Sync(context.Background(), ev); err != nil {
		o.logger.Warn("sync failed", zap.String("path", ev.Path), zap.Bool("deleted", ev.Deleted), zap.Error(err))
	}
}
