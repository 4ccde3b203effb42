package fieldbus

import (
	"testing"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPhaseOrdering(t *testing.T) {
	s, _ := newTestSession(t, 1)
	require.NoError(t, s.Request())

	_, err := s.CreateDomain()
	require.NoError(t, err)
	configID, err := s.ConfigureSlave(0, 0, testVendor, testProduct)
	require.NoError(t, err)

	require.NoError(t, s.ConfigureSyncManager(configID, 3, ecrt.DirInput, ecrt.WatchdogDefault))
	require.NoError(t, s.AddPdoAssignment(configID, 3, 0x1a00))
	require.NoError(t, s.AddPdoEntry(configID, 0x1a00, 0x6000, 1, 16))

	// The phase machine only advances. Once mapping started, sync manager
	// and assignment calls are refused.
	assert.ErrorIs(t, s.ConfigureSyncManager(configID, 2, ecrt.DirOutput, ecrt.WatchdogDefault), ErrConfigurationFailed)
	assert.ErrorIs(t, s.AddPdoAssignment(configID, 2, 0x1600), ErrConfigurationFailed)

	// Further mapping calls in the current phase are still fine.
	assert.NoError(t, s.AddPdoEntry(configID, 0x1a00, 0x6000, 2, 16))
}

func TestConfigPhaseAfterRegistration(t *testing.T) {
	s, _, domainID, configID := configuredSession(t, 1)

	_, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	require.NoError(t, err)

	assert.ErrorIs(t, s.AddPdoEntry(configID, 0x1a00, 0x6000, 2, 16), ErrConfigurationFailed)
	assert.ErrorIs(t, s.ClearPdoMapping(configID, 0x1a00), ErrConfigurationFailed)
}

func TestRegisterPdoEntryIdempotent(t *testing.T) {
	s, _, domainID, configID := configuredSession(t, 1)

	first, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	require.NoError(t, err)

	again, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// A single recorded registration, not two
	assert.Len(t, s.Registrations(), 1)
}

func TestRegisterPdoEntrySequentialOffsets(t *testing.T) {
	s, _, domainID, configID := configuredSession(t, 1)
	require.NoError(t, s.AddPdoEntry(configID, 0x1a00, 0x6000, 2, 16))

	off1, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	require.NoError(t, err)
	off2, err := s.RegisterPdoEntry(configID, 0x6000, 2, domainID)
	require.NoError(t, err)

	assert.Equal(t, PdoOffset{Byte: 0, Bit: 0}, off1)
	assert.Equal(t, PdoOffset{Byte: 2, Bit: 0}, off2)
}

func TestRegisterPdoEntryFailureSentinel(t *testing.T) {
	s, bus, domainID, configID := configuredSession(t, 1)
	bus.FailRegistration(0x6000)

	_, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	assert.ErrorIs(t, err, ErrPdoRegistrationFailed)
}

func TestRegisterPdoEntryUnknownHandles(t *testing.T) {
	s, _, domainID, configID := configuredSession(t, 1)

	_, err := s.RegisterPdoEntry(99, 0x6000, 1, domainID)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	_, err = s.RegisterPdoEntry(configID, 0x6000, 1, 99)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestRegisterPdoEntryAfterActivation(t *testing.T) {
	s, _, domainID, configID := configuredSession(t, 1)
	_, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	require.NoError(t, err)
	require.NoError(t, s.Activate())

	_, err = s.RegisterPdoEntry(configID, 0x6001, 1, domainID)
	assert.ErrorIs(t, err, ErrAlreadyActivated)
}
