package fieldbus

import (
	"fmt"
	"sync"
)

// DomainDataView is a typed accessor over a domain's raw process data
// buffer. Multi-byte values are little-endian, assembled byte by byte. The
// buffer is mutated in place by the cyclic exchange; every accessor takes
// the domain's lock, which the engine holds across Process and Queue, so a
// view stays safe to use from other goroutines while the engine runs.
type DomainDataView struct {
	domainID int
	buf      []byte
	mu       *sync.Mutex
}

// DomainView returns a view over the domain's buffer. Only valid once the
// session is activated; before that the buffer does not exist.
func (s *Session) DomainView(domainID int) (*DomainDataView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.CurrentState() {
	case StateUninitialized:
		return nil, ErrNoMaster
	case StateReleased:
		return nil, ErrReleased
	case StateRequested:
		return nil, ErrNotActivated
	}

	domain, err := s.domain(domainID)
	if err != nil {
		return nil, err
	}
	buf, err := domain.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: domain %d", ErrInvalidHandle, domainID)
	}
	return &DomainDataView{domainID: domainID, buf: buf, mu: s.domainLocks[domainID]}, nil
}

// DomainID identifies the domain this view reads from.
func (v *DomainDataView) DomainID() int { return v.domainID }

// Len is the domain buffer length in bytes.
func (v *DomainDataView) Len() int { return len(v.buf) }

func (v *DomainDataView) check(byteOffset, size int) error {
	if byteOffset < 0 || byteOffset+size > len(v.buf) {
		return fmt.Errorf("%w: offset %d size %d in domain %d (len %d)",
			ErrOffsetOutOfBounds, byteOffset, size, v.domainID, len(v.buf))
	}
	return nil
}

func (v *DomainDataView) ReadUint8(byteOffset int) (uint8, error) {
	if err := v.check(byteOffset, 1); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buf[byteOffset], nil
}

func (v *DomainDataView) ReadUint16(byteOffset int) (uint16, error) {
	if err := v.check(byteOffset, 2); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return uint16(v.buf[byteOffset]) | uint16(v.buf[byteOffset+1])<<8, nil
}

func (v *DomainDataView) ReadUint32(byteOffset int) (uint32, error) {
	if err := v.check(byteOffset, 4); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return uint32(v.buf[byteOffset]) |
		uint32(v.buf[byteOffset+1])<<8 |
		uint32(v.buf[byteOffset+2])<<16 |
		uint32(v.buf[byteOffset+3])<<24, nil
}

// ReadBit reads a single bit; bitPosition counts from the least significant
// bit of the addressed byte.
func (v *DomainDataView) ReadBit(byteOffset int, bitPosition uint8) (bool, error) {
	if err := v.check(byteOffset, 1); err != nil {
		return false, err
	}
	if bitPosition > 7 {
		return false, fmt.Errorf("%w: bit position %d", ErrOffsetOutOfBounds, bitPosition)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buf[byteOffset]&(1<<bitPosition) != 0, nil
}

// ReadBits reads count bits (1..8) of one byte, least significant first.
func (v *DomainDataView) ReadBits(byteOffset int, count int) ([]bool, error) {
	if count < 1 || count > 8 {
		return nil, fmt.Errorf("%w: bit count %d", ErrOffsetOutOfBounds, count)
	}
	if err := v.check(byteOffset, 1); err != nil {
		return nil, err
	}
	bits := make([]bool, count)
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := 0; i < count; i++ {
		bits[i] = v.buf[byteOffset]&(1<<i) != 0
	}
	return bits, nil
}

func (v *DomainDataView) WriteUint8(byteOffset int, value uint8) error {
	if err := v.check(byteOffset, 1); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buf[byteOffset] = value
	return nil
}

func (v *DomainDataView) WriteUint16(byteOffset int, value uint16) error {
	if err := v.check(byteOffset, 2); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buf[byteOffset] = byte(value)
	v.buf[byteOffset+1] = byte(value >> 8)
	return nil
}

func (v *DomainDataView) WriteUint32(byteOffset int, value uint32) error {
	if err := v.check(byteOffset, 4); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buf[byteOffset] = byte(value)
	v.buf[byteOffset+1] = byte(value >> 8)
	v.buf[byteOffset+2] = byte(value >> 16)
	v.buf[byteOffset+3] = byte(value >> 24)
	return nil
}

func (v *DomainDataView) WriteBit(byteOffset int, bitPosition uint8, value bool) error {
	if err := v.check(byteOffset, 1); err != nil {
		return err
	}
	if bitPosition > 7 {
		return fmt.Errorf("%w: bit position %d", ErrOffsetOutOfBounds, bitPosition)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if value {
		v.buf[byteOffset] |= 1 << bitPosition
	} else {
		v.buf[byteOffset] &^= 1 << bitPosition
	}
	return nil
}

// WriteBits writes up to 8 bits into one byte, least significant first.
func (v *DomainDataView) WriteBits(byteOffset int, bits []bool) error {
	if len(bits) < 1 || len(bits) > 8 {
		return fmt.Errorf("%w: bit count %d", ErrOffsetOutOfBounds, len(bits))
	}
	if err := v.check(byteOffset, 1); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, b := range bits {
		if b {
			v.buf[byteOffset] |= 1 << i
		} else {
			v.buf[byteOffset] &^= 1 << i
		}
	}
	return nil
}
