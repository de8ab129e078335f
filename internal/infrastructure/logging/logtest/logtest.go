// Package logtest builds loggers that record their entries for assertions.
package logtest

import (
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// New returns a logger recording entries at or above level.
func New(level zapcore.Level) (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &logging.Logger{Logger: zap.New(core)}, logs
}
