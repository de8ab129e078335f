package orchestrator

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/classify"
)

// installPrefix starts every installer failure message. Callers match on it
// to tell installer failures from dev server failures.
const installPrefix = "dependency installation failed"

var (
	// ErrInitialization wraps fatal Initialize failures.
	ErrInitialization = errors.New("runtime initialization failed")
	// ErrInstallFailed matches every *InstallError.
	ErrInstallFailed = errors.New(installPrefix)
	// ErrInvalidState is returned for operations the current state forbids.
	ErrInvalidState = errors.New("invalid orchestrator state")
	// ErrSessionActive is returned when the owner already holds a session.
	ErrSessionActive = errors.New("another runtime session is active")
	// ErrNotInitialized is returned by mutations before Initialize.
	ErrNotInitialized = errors.New("runtime not initialized")
)

// InstallError reports a failed dependency install.
type InstallError struct {
	ProjectID string
	Err       error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("%s: %v", installPrefix, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

func (e *InstallError) Is(target error) bool { return target == ErrInstallFailed }

// StartError reports a failed dev server start together with its
// classification.
type StartError struct {
	ProjectID string
	Failure   classify.Failure
	Err       error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start dev server: %v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// stateError reports an operation attempted from the wrong state.
func stateError(op string, from State) error {
	return fmt.Errorf("%w: %s not allowed while %s", ErrInvalidState, op, from)
}

// resolveProject maps an empty id to the active project and rejects any id
// that is not active.
func (o *Orchestrator) resolveProject(op, requested, active string) (string, error) {
	switch {
	case active == "":
		return "", stateError(op, o.State())
	case requested == "":
		return active, nil
	case requested != active:
		return "", fmt.Errorf("%w: project %q is not active", ErrInvalidState, requested)
	}
	return requested, nil
}
