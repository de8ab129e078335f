package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUninitialized, StateInitializing, true},
		{StateUninitialized, StateSettingUp, false},
		{StateInitializing, StateIdle, true},
		{StateIdle, StateSettingUp, true},
		{StateIdle, StateStarting, false},
		{StateIdle, StateInstalling, false},
		{StateSettingUp, StateInstalling, true},
		{StateSettingUp, StateStarting, true},
		{StateSettingUp, StateServing, false},
		{StateInstalling, StateSettingUp, true},
		{StateInstalling, StateStarting, false},
		{StateStarting, StateServing, true},
		{StateServing, StateSettingUp, true},
		{StateServing, StateInstalling, true},
		{StateServing, StateStarting, true},
		{StateError, StateSettingUp, true},
		{StateError, StateInitializing, true},
		{StateError, StateServing, false},
		{StateServing, StateError, true},
		{StateStarting, StateUninitialized, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestOwner(t *testing.T) {
	o := NewOwner()
	assert.NoError(t, o.Acquire("sess_a"))
	assert.NoError(t, o.Acquire("sess_a"))
	assert.ErrorIs(t, o.Acquire("sess_b"), ErrSessionActive)

	o.Release("sess_b")
	assert.Equal(t, "sess_a", string(o.Holder()))

	o.Release("sess_a")
	assert.NoError(t, o.Acquire("sess_b"))
}
