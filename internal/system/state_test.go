package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    SystemState
		to      SystemState
		wantErr bool
	}{
		{"init to running", StateInitializing, StateRunning, false},
		{"init to error", StateInitializing, StateError, false},
		{"running to stopping", StateRunning, StateStopping, false},
		{"stopping to stopped", StateStopping, StateStopped, false},
		{"stopped to init", StateStopped, StateInitializing, false},
		{"error to init", StateError, StateInitializing, false},
		{"running to init", StateRunning, StateInitializing, true},
		{"stopped to running", StateStopped, StateRunning, true},
		{"init to stopped", StateInitializing, StateStopped, true},
		{"unknown state", SystemState(99), StateRunning, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSystemStateString(t *testing.T) {
	assert.Equal(t, "INITIALIZING", StateInitializing.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "STOPPING", StateStopping.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "ERROR", StateError.String())
	assert.Equal(t, "UNKNOWN", SystemState(42).String())
}
