package fieldbus

import (
	"testing"
	"time"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testVendor  = 0x00000002
	testProduct = 0x0af3052
)

func newTestSession(t *testing.T, slaveCount int) (*Session, *ecrt.SimBus) {
	t.Helper()

	slaves := make([]ecrt.SimSlave, slaveCount)
	for i := range slaves {
		slaves[i] = ecrt.SimSlave{
			Position:    uint16(i),
			VendorID:    testVendor,
			ProductCode: testProduct,
		}
	}

	sim := ecrt.NewSim()
	bus := sim.AddBus(0, slaves...)
	return NewSession(sim, 0, zap.NewNop()), bus
}

// configuredSession returns a requested session with one domain and one
// slave config, plus a 16 bit entry registered at the start of the domain.
func configuredSession(t *testing.T, slaveCount int) (*Session, *ecrt.SimBus, int, int) {
	t.Helper()

	s, bus := newTestSession(t, slaveCount)
	require.NoError(t, s.Request())

	domainID, err := s.CreateDomain()
	require.NoError(t, err)

	configID, err := s.ConfigureSlave(0, 0, testVendor, testProduct)
	require.NoError(t, err)

	require.NoError(t, s.ConfigureSyncManager(configID, 3, ecrt.DirInput, ecrt.WatchdogDefault))
	require.NoError(t, s.ClearPdoAssignments(configID, 3))
	require.NoError(t, s.AddPdoAssignment(configID, 3, 0x1a00))
	require.NoError(t, s.ClearPdoMapping(configID, 0x1a00))
	require.NoError(t, s.AddPdoEntry(configID, 0x1a00, 0x6000, 1, 16))

	return s, bus, domainID, configID
}

func TestSessionLifecycle(t *testing.T) {
	s, _, domainID, configID := configuredSession(t, 1)

	off, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	require.NoError(t, err)
	assert.Equal(t, PdoOffset{Byte: 0, Bit: 0}, off)

	require.NoError(t, s.Activate())
	assert.Equal(t, StateActivated, s.CurrentState())

	// Activation is not idempotent
	assert.ErrorIs(t, s.Activate(), ErrAlreadyActivated)

	require.NoError(t, s.Release())
	assert.Equal(t, StateReleased, s.CurrentState())
}

func TestRequestTransitions(t *testing.T) {
	s, _ := newTestSession(t, 1)

	require.NoError(t, s.Request())
	assert.Equal(t, StateRequested, s.CurrentState())

	assert.ErrorIs(t, s.Request(), ErrAlreadyRequested)
}

func TestRequestUnavailableMaster(t *testing.T) {
	sim := ecrt.NewSim()
	sim.AddBus(0)

	// No bus exists at index 7
	s := NewSession(sim, 7, zap.NewNop())
	assert.ErrorIs(t, s.Request(), ErrMasterUnavailable)

	// A failed request leaves the session retryable
	assert.Equal(t, StateUninitialized, s.CurrentState())
}

func TestOperationsWithoutMaster(t *testing.T) {
	s, _ := newTestSession(t, 1)

	_, err := s.CreateDomain()
	assert.ErrorIs(t, err, ErrNoMaster)

	_, err = s.ConfigureSlave(0, 0, testVendor, testProduct)
	assert.ErrorIs(t, err, ErrNoMaster)

	assert.ErrorIs(t, s.Activate(), ErrNoMaster)
	assert.ErrorIs(t, s.Reset(), ErrNoMaster)

	_, err = s.State()
	assert.ErrorIs(t, err, ErrNoMaster)
}

func TestActivateWithoutDomains(t *testing.T) {
	s, _ := newTestSession(t, 1)
	require.NoError(t, s.Request())

	err := s.Activate()
	assert.ErrorIs(t, err, ErrActivationFailed)
	assert.Equal(t, StateRequested, s.CurrentState())
}

func TestConfigurationFrozenAfterActivation(t *testing.T) {
	s, _, _, _ := configuredSession(t, 1)
	require.NoError(t, s.Activate())

	_, err := s.CreateDomain()
	assert.ErrorIs(t, err, ErrAlreadyActivated)

	_, err = s.ConfigureSlave(0, 0, testVendor, testProduct)
	assert.ErrorIs(t, err, ErrAlreadyActivated)
}

func TestResetInvalidatesConfiguration(t *testing.T) {
	s, _, domainID, configID := configuredSession(t, 1)

	_, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	require.NoError(t, err)
	require.NoError(t, s.Activate())

	require.NoError(t, s.Reset())
	assert.Equal(t, StateRequested, s.CurrentState())

	// All handles and offsets are gone
	assert.Empty(t, s.DomainIDs())
	assert.Empty(t, s.Registrations())

	_, err = s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	// The session can be rebuilt and activated again
	newDomain, err := s.CreateDomain()
	require.NoError(t, err)
	assert.NotEqual(t, domainID, newDomain)
	require.NoError(t, s.Activate())
}

func TestReleaseIsIdempotent(t *testing.T) {
	s, _, _, _ := configuredSession(t, 1)
	require.NoError(t, s.Activate())

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	assert.Equal(t, StateReleased, s.CurrentState())

	// Everything else is terminal after release
	assert.ErrorIs(t, s.Request(), ErrReleased)
	assert.ErrorIs(t, s.Activate(), ErrReleased)
	assert.ErrorIs(t, s.Reset(), ErrReleased)

	_, err := s.CreateDomain()
	assert.ErrorIs(t, err, ErrReleased)
}

func TestReleaseBeforeRequest(t *testing.T) {
	s, _ := newTestSession(t, 1)
	require.NoError(t, s.Release())
	assert.Equal(t, StateReleased, s.CurrentState())
}

func TestMasterState(t *testing.T) {
	s, bus := newTestSession(t, 3)
	require.NoError(t, s.Request())

	state, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), state.SlavesResponding())
	assert.True(t, state.LinkUp())

	bus.SetResponding(1, false)
	bus.SetLinkUp(false)

	state, err = s.State()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), state.SlavesResponding())
	assert.False(t, state.LinkUp())
}

func TestScan(t *testing.T) {
	s, _ := newTestSession(t, 2)
	require.NoError(t, s.Request())

	slaves, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, slaves, 2)
	assert.Equal(t, uint16(0), slaves[0].Position)
	assert.Equal(t, uint16(1), slaves[1].Position)
	assert.Equal(t, uint32(testVendor), slaves[0].VendorID)
}

func TestGetSlaveUnknownPosition(t *testing.T) {
	s, _ := newTestSession(t, 1)
	require.NoError(t, s.Request())

	_, err := s.GetSlave(42)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	s, _, _, _ := configuredSession(t, 1)

	events := s.Subscribe()
	defer s.Unsubscribe(events)

	require.NoError(t, s.Activate())
	require.NoError(t, s.Reset())

	assert.Equal(t, EventActivated, nextEvent(t, events).Type)
	assert.Equal(t, EventReset, nextEvent(t, events).Type)
}

func nextEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}
