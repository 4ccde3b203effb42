package system

import (
	"fmt"
	"testing"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"github.com/KevinKickass/OpenFieldbusCore/internal/fieldbus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testLifecycleManager() *LifecycleManager {
	sim := ecrt.NewSim()
	sim.AddBus(0)
	return &LifecycleManager{
		session:      fieldbus.NewSession(sim, 0, zap.NewNop()),
		logger:       zap.NewNop(),
		currentState: StateInitializing,
	}
}

func TestSetErrorRecordsCause(t *testing.T) {
	lm := testLifecycleManager()

	lm.setError(fmt.Errorf("failed to start REST API: port in use"))

	status := lm.GetCurrentStatus()
	assert.Equal(t, "ERROR", status.State)
	assert.Contains(t, status.LastError, "port in use")
}

func TestStatusOmitsErrorWhileHealthy(t *testing.T) {
	lm := testLifecycleManager()
	lm.setState(StateRunning)

	status := lm.GetCurrentStatus()
	assert.Equal(t, "RUNNING", status.State)
	assert.Empty(t, status.LastError)
}
