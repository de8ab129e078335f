package logtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewRecordsAtLevel(t *testing.T) {
	logger, logs := New(zapcore.WarnLevel)
	logger.Named("host").Info("dropped")
	logger.Named("host").Warn("sync failed", zap.String("path", "/project/a.js"))

	assert.Equal(t, 0, logs.FilterMessage("dropped").Len())
	entries := logs.FilterMessage("sync failed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "host", entries[0].LoggerName)
		assert.Equal(t, "/project/a.js", entries[0].ContextMap()["path"])
	}
}
