package ecrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simWithOneSlave(t *testing.T) (*Sim, *SimBus) {
	t.Helper()
	sim := NewSim()
	bus := sim.AddBus(0, SimSlave{Position: 0, VendorID: 2, ProductCode: 3})
	return sim, bus
}

func TestRequestMasterExclusive(t *testing.T) {
	sim, _ := simWithOneSlave(t)

	m, err := sim.RequestMaster(0)
	require.NoError(t, err)

	_, err = sim.RequestMaster(0)
	assert.ErrorIs(t, err, ErrUnavailable)

	// Release makes the instance requestable again
	m.Release()
	_, err = sim.RequestMaster(0)
	assert.NoError(t, err)
}

func TestRequestMasterUnknownIndex(t *testing.T) {
	sim, _ := simWithOneSlave(t)
	_, err := sim.RequestMaster(5)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHandlesInvalidatedByReset(t *testing.T) {
	sim, _ := simWithOneSlave(t)
	m, err := sim.RequestMaster(0)
	require.NoError(t, err)

	d, err := m.CreateDomain()
	require.NoError(t, err)
	cfg, err := m.SlaveConfig(0, 0, 2, 3)
	require.NoError(t, err)

	require.NoError(t, m.Reset())

	// Domain and config handles died with the reset, the master survived
	_, err = d.State()
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, cfg.ConfigureSyncManager(3, DirInput, WatchdogDefault), ErrReleased)

	_, err = m.CreateDomain()
	assert.NoError(t, err)
}

func TestSlaveIdentityMismatchRejected(t *testing.T) {
	sim, _ := simWithOneSlave(t)
	m, err := sim.RequestMaster(0)
	require.NoError(t, err)

	_, err = m.SlaveConfig(0, 0, 99, 3)
	assert.Error(t, err)

	// Configs for absent positions are accepted; the slave just never
	// responds.
	_, err = m.SlaveConfig(0, 7, 99, 99)
	assert.NoError(t, err)
}

func TestRegistrationSentinels(t *testing.T) {
	sim, bus := simWithOneSlave(t)
	m, err := sim.RequestMaster(0)
	require.NoError(t, err)

	d, err := m.CreateDomain()
	require.NoError(t, err)
	cfg, err := m.SlaveConfig(0, 0, 2, 3)
	require.NoError(t, err)

	bus.FailRegistration(0x7000)
	off, _, err := cfg.RegisterPdoEntry(0x7000, 1, d)
	require.NoError(t, err)
	assert.Equal(t, -22, off)

	off, _, err = cfg.RegisterPdoEntry(0x6000, 1, d)
	require.NoError(t, err)
	assert.Equal(t, 0, off)

	require.NoError(t, m.Activate())

	off, _, err = cfg.RegisterPdoEntry(0x6000, 2, d)
	require.NoError(t, err)
	assert.Equal(t, -16, off)
}

func TestBitPackedOffsetAllocation(t *testing.T) {
	sim, _ := simWithOneSlave(t)
	m, err := sim.RequestMaster(0)
	require.NoError(t, err)

	d, err := m.CreateDomain()
	require.NoError(t, err)
	cfg, err := m.SlaveConfig(0, 0, 2, 3)
	require.NoError(t, err)

	require.NoError(t, cfg.ConfigureSyncManager(3, DirInput, WatchdogDefault))
	require.NoError(t, cfg.AddPdoAssignment(3, 0x1a00))
	require.NoError(t, cfg.AddPdoEntry(0x1a00, 0x6000, 1, 1))
	require.NoError(t, cfg.AddPdoEntry(0x1a00, 0x6000, 2, 1))
	require.NoError(t, cfg.AddPdoEntry(0x1a00, 0x6000, 3, 16))

	byteOff, bitPos, err := cfg.RegisterPdoEntry(0x6000, 1, d)
	require.NoError(t, err)
	assert.Equal(t, 0, byteOff)
	assert.Equal(t, uint8(0), bitPos)

	byteOff, bitPos, err = cfg.RegisterPdoEntry(0x6000, 2, d)
	require.NoError(t, err)
	assert.Equal(t, 0, byteOff)
	assert.Equal(t, uint8(1), bitPos)

	byteOff, bitPos, err = cfg.RegisterPdoEntry(0x6000, 3, d)
	require.NoError(t, err)
	assert.Equal(t, 0, byteOff)
	assert.Equal(t, uint8(2), bitPos)

	// The buffer is rounded up to whole bytes at activation
	require.NoError(t, m.Activate())
	assert.Equal(t, 3, d.Size())
}

func TestMasterStatePacking(t *testing.T) {
	tests := []struct {
		name       string
		responding uint32
		alStates   uint8
		linkUp     bool
	}{
		{"empty bus", 0, 0, false},
		{"all op", 12, ALStateOp, true},
		{"mixed states", 3, ALStatePreOp | ALStateOp, true},
		{"max slaves", 0xffffffff, 0xf, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := PackMasterState(tt.responding, tt.alStates, tt.linkUp)
			assert.Equal(t, tt.responding, s.SlavesResponding())
			assert.Equal(t, tt.alStates, s.ALStates())
			assert.Equal(t, tt.linkUp, s.LinkUp())
		})
	}
}

func TestDomainWorkingCounterClassification(t *testing.T) {
	sim := NewSim()
	bus := sim.AddBus(0,
		SimSlave{Position: 0, VendorID: 2, ProductCode: 3},
		SimSlave{Position: 1, VendorID: 2, ProductCode: 3},
	)
	m, err := sim.RequestMaster(0)
	require.NoError(t, err)

	d, err := m.CreateDomain()
	require.NoError(t, err)
	for pos := uint16(0); pos < 2; pos++ {
		cfg, err := m.SlaveConfig(0, pos, 2, 3)
		require.NoError(t, err)
		require.NoError(t, cfg.ConfigureSyncManager(3, DirInput, WatchdogDefault))
		require.NoError(t, cfg.AddPdoAssignment(3, 0x1a00))
		require.NoError(t, cfg.AddPdoEntry(0x1a00, 0x6000, 1, 8))
		_, _, err = cfg.RegisterPdoEntry(0x6000, 1, d)
		require.NoError(t, err)
	}
	require.NoError(t, m.Activate())

	st, err := d.State()
	require.NoError(t, err)
	assert.Equal(t, WcComplete, st.WcState)
	assert.Equal(t, uint16(2), st.WorkingCounter)

	bus.SetResponding(1, false)
	st, err = d.State()
	require.NoError(t, err)
	assert.Equal(t, WcIncomplete, st.WcState)
	assert.Equal(t, uint16(1), st.WorkingCounter)

	bus.SetResponding(0, false)
	st, err = d.State()
	require.NoError(t, err)
	assert.Equal(t, WcZero, st.WcState)
	assert.Equal(t, uint16(0), st.WorkingCounter)
}

func TestEmptyDomainIsComplete(t *testing.T) {
	sim, _ := simWithOneSlave(t)
	m, err := sim.RequestMaster(0)
	require.NoError(t, err)

	d, err := m.CreateDomain()
	require.NoError(t, err)
	require.NoError(t, m.Activate())

	st, err := d.State()
	require.NoError(t, err)
	assert.Equal(t, WcComplete, st.WcState)
	assert.Equal(t, uint16(0), st.WorkingCounter)
}
