package ecrt

import (
	"fmt"
	"sync"
)

// Failure sentinels returned by the simulated RegisterPdoEntry, matching the
// native runtime's convention of negative errno values.
const (
	regFailInvalid = -22 // rejected entry (unknown index, bad bit length)
	regFailBusy    = -16 // registration attempted after activation
)

// SimSlave describes one simulated slave placed on a bus.
type SimSlave struct {
	Alias          uint16
	Position       uint16
	VendorID       uint32
	ProductCode    uint32
	RevisionNumber uint32
	SerialNumber   uint32
	CurrentOnEBus  int16
}

// Sim is a Runtime backed by in-memory buses. It exists for the simulated
// deployment mode and for the test suite: offsets are allocated
// deterministically in registration order, Queue copies output regions from
// the domain buffer into per-slave shadow memory and Process copies shadow
// memory back, so a full cycle behaves like a real exchange.
type Sim struct {
	mu    sync.Mutex
	buses map[uint]*SimBus
}

func NewSim() *Sim {
	return &Sim{buses: make(map[uint]*SimBus)}
}

// AddBus creates the bus backing master instance `index`.
func (s *Sim) AddBus(index uint, slaves ...SimSlave) *SimBus {
	bus := &SimBus{linkUp: true}
	for _, sl := range slaves {
		bus.slaves = append(bus.slaves, &simSlaveState{
			info: SlaveInfo{
				Position:       sl.Position,
				VendorID:       sl.VendorID,
				ProductCode:    sl.ProductCode,
				RevisionNumber: sl.RevisionNumber,
				SerialNumber:   sl.SerialNumber,
				Alias:          sl.Alias,
				CurrentOnEBus:  sl.CurrentOnEBus,
			},
			responding: true,
		})
	}
	s.mu.Lock()
	s.buses[index] = bus
	s.mu.Unlock()
	return bus
}

func (s *Sim) RequestMaster(index uint) (Master, error) {
	s.mu.Lock()
	bus, ok := s.buses[index]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnavailable
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.requested {
		return nil, ErrUnavailable
	}
	bus.requested = true
	return &simMaster{bus: bus, gen: bus.gen}, nil
}

type simSlaveState struct {
	info       SlaveInfo
	responding bool
}

// SimBus holds the mutable state of one simulated bus. Test hooks
// (SetResponding, FailRegistration, SetInput) are safe to call while a
// cyclic loop is running.
type SimBus struct {
	mu        sync.Mutex
	slaves    []*simSlaveState
	linkUp    bool
	requested bool
	activated bool

	// gen invalidates outstanding domain/config handles on reset/release.
	gen uint64

	domains  []*simDomain
	configs  []*simConfig
	failRegs map[uint16]bool

	Receives uint64
	Sends    uint64
}

// SetResponding drops or restores a slave mid-run, driving working counter
// transitions.
func (b *SimBus) SetResponding(position uint16, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sl := range b.slaves {
		if sl.info.Position == position {
			sl.responding = ok
		}
	}
}

func (b *SimBus) SetLinkUp(up bool) {
	b.mu.Lock()
	b.linkUp = up
	b.mu.Unlock()
}

// FailRegistration makes future RegisterPdoEntry calls for the given entry
// index return the invalid-argument sentinel.
func (b *SimBus) FailRegistration(entryIndex uint16) {
	b.mu.Lock()
	if b.failRegs == nil {
		b.failRegs = make(map[uint16]bool)
	}
	b.failRegs[entryIndex] = true
	b.mu.Unlock()
}

// SetInput writes a value into the shadow memory of every registration of
// the given entry, to be picked up by the next Process.
func (b *SimBus) SetInput(entryIndex uint16, entrySubindex uint8, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.domains {
		for _, r := range d.regs {
			if r.entryIndex == entryIndex && r.entrySubindex == entrySubindex {
				copy(r.shadow, value)
			}
		}
	}
}

func (b *SimBus) slaveAt(position uint16) *simSlaveState {
	for _, sl := range b.slaves {
		if sl.info.Position == position {
			return sl
		}
	}
	return nil
}

type simMaster struct {
	bus *SimBus
	gen uint64
}

func (m *simMaster) valid() bool {
	return m.bus.requested && m.gen == m.bus.gen
}

func (m *simMaster) Activate() error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if !m.valid() {
		return ErrReleased
	}
	if m.bus.activated {
		return fmt.Errorf("ecrt: master already activated")
	}
	for _, d := range m.bus.domains {
		d.buf = make([]byte, (d.bitCursor+7)/8)
	}
	m.bus.activated = true
	return nil
}

func (m *simMaster) Reset() error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if !m.valid() {
		return ErrReleased
	}
	m.bus.activated = false
	m.bus.gen++
	m.gen = m.bus.gen // the master handle survives a reset
	m.bus.domains = nil
	m.bus.configs = nil
	return nil
}

func (m *simMaster) Release() {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	m.bus.requested = false
	m.bus.activated = false
	m.bus.gen++
	m.bus.domains = nil
	m.bus.configs = nil
}

func (m *simMaster) Receive() error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if !m.valid() {
		return ErrReleased
	}
	if !m.bus.activated {
		return fmt.Errorf("ecrt: receive before activation")
	}
	m.bus.Receives++
	return nil
}

func (m *simMaster) Send() error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if !m.valid() {
		return ErrReleased
	}
	if !m.bus.activated {
		return fmt.Errorf("ecrt: send before activation")
	}
	m.bus.Sends++
	return nil
}

func (m *simMaster) State() (MasterState, error) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if !m.valid() {
		return 0, ErrReleased
	}
	var responding uint32
	var alStates uint8
	for _, sl := range m.bus.slaves {
		if !sl.responding {
			continue
		}
		responding++
		if m.bus.activated {
			alStates |= ALStateOp
		} else {
			alStates |= ALStatePreOp
		}
	}
	return PackMasterState(responding, alStates, m.bus.linkUp), nil
}

func (m *simMaster) GetSlave(position uint16) (SlaveInfo, error) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if !m.valid() {
		return SlaveInfo{}, ErrReleased
	}
	sl := m.bus.slaveAt(position)
	if sl == nil {
		return SlaveInfo{}, ErrNotFound
	}
	return sl.info, nil
}

func (m *simMaster) CreateDomain() (Domain, error) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if !m.valid() {
		return nil, ErrReleased
	}
	if m.bus.activated {
		return nil, fmt.Errorf("ecrt: cannot create domain after activation")
	}
	d := &simDomain{bus: m.bus, gen: m.bus.gen}
	m.bus.domains = append(m.bus.domains, d)
	return d, nil
}

func (m *simMaster) SlaveConfig(alias, position uint16, vendorID, productCode uint32) (SlaveConfig, error) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if !m.valid() {
		return nil, ErrReleased
	}
	if m.bus.activated {
		return nil, fmt.Errorf("ecrt: cannot configure slave after activation")
	}
	// The native runtime accepts configs for absent slaves; they simply
	// never respond. Identity mismatches at a present position are rejected.
	if sl := m.bus.slaveAt(position); sl != nil {
		if sl.info.VendorID != vendorID || sl.info.ProductCode != productCode {
			return nil, fmt.Errorf("ecrt: slave identity mismatch at position %d", position)
		}
	}
	c := &simConfig{
		bus:      m.bus,
		gen:      m.bus.gen,
		alias:    alias,
		position: position,
		smDirs:   make(map[uint8]Direction),
		pdoSMs:   make(map[uint16]uint8),
		entries:  make(map[entryKey]entryMapping),
	}
	m.bus.configs = append(m.bus.configs, c)
	return c, nil
}

type entryKey struct {
	index    uint16
	subindex uint8
}

type entryMapping struct {
	pdoIndex  uint16
	bitLength uint8
}

type simReg struct {
	cfg           *simConfig
	entryIndex    uint16
	entrySubindex uint8
	bitLength     uint8
	byteOffset    int
	bitPos        uint8
	dir           Direction
	shadow        []byte
}

type simDomain struct {
	bus       *SimBus
	gen       uint64
	bitCursor int
	regs      []*simReg
	buf       []byte
}

func (d *simDomain) valid() bool { return d.gen == d.bus.gen }

func (d *simDomain) Process() error {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if !d.valid() {
		return ErrReleased
	}
	if !d.bus.activated {
		return fmt.Errorf("ecrt: domain processed before activation")
	}
	for _, r := range d.regs {
		if sl := d.bus.slaveAt(r.cfg.position); sl == nil || !sl.responding {
			continue
		}
		copyBits(d.buf, r.byteOffset, r.bitPos, r.shadow, int(r.bitLength))
	}
	return nil
}

func (d *simDomain) Queue() error {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if !d.valid() {
		return ErrReleased
	}
	if !d.bus.activated {
		return fmt.Errorf("ecrt: domain queued before activation")
	}
	for _, r := range d.regs {
		if r.dir != DirOutput {
			continue
		}
		if sl := d.bus.slaveAt(r.cfg.position); sl == nil || !sl.responding {
			continue
		}
		extractBits(r.shadow, d.buf, r.byteOffset, r.bitPos, int(r.bitLength))
	}
	return nil
}

func (d *simDomain) State() (DomainState, error) {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if !d.valid() {
		return DomainState{}, ErrReleased
	}
	expected := len(d.regs)
	actual := 0
	for _, r := range d.regs {
		if sl := d.bus.slaveAt(r.cfg.position); sl != nil && sl.responding {
			actual++
		}
	}
	st := DomainState{WorkingCounter: uint16(actual)}
	switch {
	case expected == 0 || actual == expected:
		st.WcState = WcComplete
	case actual == 0:
		st.WcState = WcZero
	default:
		st.WcState = WcIncomplete
	}
	return st, nil
}

func (d *simDomain) Data() ([]byte, error) {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if !d.valid() {
		return nil, ErrReleased
	}
	if !d.bus.activated {
		return nil, fmt.Errorf("ecrt: domain data unavailable before activation")
	}
	return d.buf, nil
}

func (d *simDomain) Size() int {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return len(d.buf)
}

type simConfig struct {
	bus      *SimBus
	gen      uint64
	alias    uint16
	position uint16

	smDirs  map[uint8]Direction
	pdoSMs  map[uint16]uint8
	entries map[entryKey]entryMapping
}

func (c *simConfig) valid() bool { return c.gen == c.bus.gen }

func (c *simConfig) ConfigureSyncManager(syncIndex uint8, dir Direction, wd WatchdogMode) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if !c.valid() {
		return ErrReleased
	}
	if syncIndex > 15 {
		return fmt.Errorf("ecrt: sync manager index %d out of range", syncIndex)
	}
	c.smDirs[syncIndex] = dir
	return nil
}

func (c *simConfig) ClearPdoAssignments(syncIndex uint8) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if !c.valid() {
		return ErrReleased
	}
	for pdo, sm := range c.pdoSMs {
		if sm == syncIndex {
			delete(c.pdoSMs, pdo)
		}
	}
	return nil
}

func (c *simConfig) AddPdoAssignment(syncIndex uint8, pdoIndex uint16) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if !c.valid() {
		return ErrReleased
	}
	c.pdoSMs[pdoIndex] = syncIndex
	return nil
}

func (c *simConfig) ClearPdoMapping(pdoIndex uint16) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if !c.valid() {
		return ErrReleased
	}
	for k, m := range c.entries {
		if m.pdoIndex == pdoIndex {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *simConfig) AddPdoEntry(pdoIndex, entryIndex uint16, entrySubindex uint8, bitLength uint8) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if !c.valid() {
		return ErrReleased
	}
	if bitLength == 0 || bitLength > 64 {
		return fmt.Errorf("ecrt: unsupported bit length %d", bitLength)
	}
	c.entries[entryKey{entryIndex, entrySubindex}] = entryMapping{pdoIndex: pdoIndex, bitLength: bitLength}
	return nil
}

func (c *simConfig) RegisterPdoEntry(entryIndex uint16, entrySubindex uint8, dom Domain) (int, uint8, error) {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if !c.valid() {
		return regFailInvalid, 0, ErrReleased
	}
	d, ok := dom.(*simDomain)
	if !ok || !d.valid() || d.bus != c.bus {
		return regFailInvalid, 0, ErrReleased
	}
	if c.bus.activated {
		return regFailBusy, 0, nil
	}
	if c.bus.failRegs[entryIndex] {
		return regFailInvalid, 0, nil
	}

	// Registration is stable: an identical request returns the offset
	// allocated the first time.
	for _, r := range d.regs {
		if r.cfg == c && r.entryIndex == entryIndex && r.entrySubindex == entrySubindex {
			return r.byteOffset, r.bitPos, nil
		}
	}

	bitLength := uint8(8)
	dir := DirInput
	if m, ok := c.entries[entryKey{entryIndex, entrySubindex}]; ok {
		bitLength = m.bitLength
		if sm, ok := c.pdoSMs[m.pdoIndex]; ok {
			if smDir, ok := c.smDirs[sm]; ok {
				dir = smDir
			}
		}
	}

	r := &simReg{
		cfg:           c,
		entryIndex:    entryIndex,
		entrySubindex: entrySubindex,
		bitLength:     bitLength,
		byteOffset:    d.bitCursor / 8,
		bitPos:        uint8(d.bitCursor % 8),
		dir:           dir,
		shadow:        make([]byte, (int(bitLength)+7)/8),
	}
	d.bitCursor += int(bitLength)
	d.regs = append(d.regs, r)
	return r.byteOffset, r.bitPos, nil
}

// copyBits writes src's low bitCount bits into dst at byteOffset/bitPos.
func copyBits(dst []byte, byteOffset int, bitPos uint8, src []byte, bitCount int) {
	for i := 0; i < bitCount; i++ {
		bit := src[i/8] >> (i % 8) & 1
		pos := byteOffset*8 + int(bitPos) + i
		if bit != 0 {
			dst[pos/8] |= 1 << (pos % 8)
		} else {
			dst[pos/8] &^= 1 << (pos % 8)
		}
	}
}

// extractBits reads bitCount bits from src at byteOffset/bitPos into dst.
func extractBits(dst []byte, src []byte, byteOffset int, bitPos uint8, bitCount int) {
	for i := 0; i < bitCount; i++ {
		pos := byteOffset*8 + int(bitPos) + i
		bit := src[pos/8] >> (pos % 8) & 1
		if bit != 0 {
			dst[i/8] |= 1 << (i % 8)
		} else {
			dst[i/8] &^= 1 << (i % 8)
		}
	}
}
