package fieldbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// activatedView builds a session with one domain sized to hold the given
// number of 16 bit entries and returns a view over its buffer.
func activatedView(t *testing.T, entries int) (*Session, *DomainDataView) {
	t.Helper()

	s, _, domainID, configID := configuredSession(t, 1)
	for i := 1; i < entries; i++ {
		require.NoError(t, s.AddPdoEntry(configID, 0x1a00, 0x6000, uint8(i+1), 16))
	}
	for i := 0; i < entries; i++ {
		_, err := s.RegisterPdoEntry(configID, 0x6000, uint8(i+1), domainID)
		require.NoError(t, err)
	}
	require.NoError(t, s.Activate())

	view, err := s.DomainView(domainID)
	require.NoError(t, err)
	return s, view
}

func TestDomainViewStateGuards(t *testing.T) {
	s, _ := newTestSession(t, 1)

	_, err := s.DomainView(0)
	assert.ErrorIs(t, err, ErrNoMaster)

	require.NoError(t, s.Request())
	_, err = s.DomainView(0)
	assert.ErrorIs(t, err, ErrNotActivated)

	require.NoError(t, s.Release())
	_, err = s.DomainView(0)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestDomainViewUnknownDomain(t *testing.T) {
	s, _, _, configID := configuredSession(t, 1)
	_, err := s.RegisterPdoEntry(configID, 0x6000, 1, 0)
	require.NoError(t, err)
	require.NoError(t, s.Activate())

	_, err = s.DomainView(42)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestDomainViewRoundTrips(t *testing.T) {
	_, view := activatedView(t, 2)
	require.Equal(t, 4, view.Len())

	require.NoError(t, view.WriteUint16(0, 0xbeef))
	got16, err := view.ReadUint16(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xbeef), got16)

	// Values are little-endian in the buffer
	b, err := view.ReadUint8(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xef), b)

	require.NoError(t, view.WriteUint32(0, 0xdeadbeef))
	got32, err := view.ReadUint32(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), got32)
}

func TestDomainViewBitAccess(t *testing.T) {
	_, view := activatedView(t, 1)

	require.NoError(t, view.WriteBit(0, 3, true))
	bit, err := view.ReadBit(0, 3)
	require.NoError(t, err)
	assert.True(t, bit)

	bit, err = view.ReadBit(0, 4)
	require.NoError(t, err)
	assert.False(t, bit)

	require.NoError(t, view.WriteBit(0, 3, false))
	bit, err = view.ReadBit(0, 3)
	require.NoError(t, err)
	assert.False(t, bit)

	require.NoError(t, view.WriteBits(0, []bool{true, false, true}))
	bits, err := view.ReadBits(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, bits)
}

func TestDomainViewBounds(t *testing.T) {
	_, view := activatedView(t, 1) // 2 byte buffer

	tests := []struct {
		name string
		op   func() error
	}{
		{"read u8 past end", func() error { _, err := view.ReadUint8(2); return err }},
		{"read u16 straddling end", func() error { _, err := view.ReadUint16(1); return err }},
		{"read u32 past end", func() error { _, err := view.ReadUint32(0); return err }},
		{"negative offset", func() error { _, err := view.ReadUint8(-1); return err }},
		{"write u16 straddling end", func() error { return view.WriteUint16(1, 0) }},
		{"bit position out of range", func() error { return view.WriteBit(0, 8, true) }},
		{"bit count out of range", func() error { _, err := view.ReadBits(0, 9); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), ErrOffsetOutOfBounds)
		})
	}
}
