// Package ecrt defines the capability set consumed from an EtherCAT master
// runtime. The real wire protocol (frames, SII, mailbox) lives entirely
// behind these interfaces; the gateway only drives lifecycle and process
// data exchange through them.
package ecrt

import "errors"

var (
	// ErrUnavailable is returned by RequestMaster when no master instance
	// can be reserved at the given index.
	ErrUnavailable = errors.New("ecrt: master unavailable")

	// ErrNotFound is returned by GetSlave for positions beyond the bus.
	ErrNotFound = errors.New("ecrt: slave not found")

	// ErrReleased is returned when a handle is used after the master that
	// owns it was released or reset.
	ErrReleased = errors.New("ecrt: handle released")
)

// Direction of a sync manager, seen from the master.
type Direction int

const (
	DirOutput Direction = iota // master -> slave (RxPDO)
	DirInput                   // slave -> master (TxPDO)
)

func (d Direction) String() string {
	if d == DirOutput {
		return "output"
	}
	return "input"
}

// WatchdogMode controls the sync manager watchdog of a slave.
type WatchdogMode int

const (
	WatchdogDefault WatchdogMode = iota
	WatchdogEnable
	WatchdogDisable
)

// WcState classifies a domain's working counter after an exchange.
type WcState int

const (
	WcZero       WcState = iota // no registered process data exchanged
	WcIncomplete                // some registered process data exchanged
	WcComplete                  // all registered process data exchanged
)

func (w WcState) String() string {
	switch w {
	case WcZero:
		return "zero"
	case WcIncomplete:
		return "incomplete"
	case WcComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// AL state bits as reported in the master state bitmap. The bitmap is the
// union over all responding slaves.
const (
	ALStateInit   uint8 = 0x1
	ALStatePreOp  uint8 = 0x2
	ALStateSafeOp uint8 = 0x4
	ALStateOp     uint8 = 0x8
)

// MasterState packs the runtime's master status into a plain integer:
// bits 0..31 slaves responding, bits 32..35 AL state bitmap, bit 36 link up.
// Accessors mask explicitly instead of relying on struct layout.
type MasterState uint64

func PackMasterState(slavesResponding uint32, alStates uint8, linkUp bool) MasterState {
	s := MasterState(slavesResponding)
	s |= MasterState(alStates&0xf) << 32
	if linkUp {
		s |= 1 << 36
	}
	return s
}

func (s MasterState) SlavesResponding() uint32 { return uint32(s & 0xffffffff) }
func (s MasterState) ALStates() uint8          { return uint8((s >> 32) & 0xf) }
func (s MasterState) LinkUp() bool             { return s&(1<<36) != 0 }

// SlaveInfo describes one physical slave on the bus.
type SlaveInfo struct {
	Position       uint16 `json:"position"`
	VendorID       uint32 `json:"vendor_id"`
	ProductCode    uint32 `json:"product_code"`
	RevisionNumber uint32 `json:"revision_number"`
	SerialNumber   uint32 `json:"serial_number"`
	Alias          uint16 `json:"alias"`
	CurrentOnEBus  int16  `json:"current_on_ebus"`
}

// DomainState is the per-exchange health of one domain.
type DomainState struct {
	WorkingCounter uint16
	WcState        WcState
}

// Runtime reserves master instances. There is one implementation per
// deployment mode (simulated bus, native stack).
type Runtime interface {
	// RequestMaster reserves the master at the given instance index for
	// exclusive use. Fails with ErrUnavailable when the instance does not
	// exist or is already reserved.
	RequestMaster(index uint) (Master, error)
}

// Master is a reserved master instance. All methods except Release may fail
// with ErrReleased after Release was called.
type Master interface {
	// Activate finalizes the configuration and allocates domain memory.
	// Not idempotent; a second call without an intervening Reset fails.
	Activate() error

	// Reset drops the activated configuration. Domains and slave configs
	// created before the reset become invalid.
	Reset() error

	// Release returns the master to the runtime. Safe to call once; the
	// caller serializes against all other use of the handle.
	Release()

	Receive() error
	Send() error

	State() (MasterState, error)
	GetSlave(position uint16) (SlaveInfo, error)

	CreateDomain() (Domain, error)
	SlaveConfig(alias, position uint16, vendorID, productCode uint32) (SlaveConfig, error)
}

// Domain is a process data region. Data returns the live buffer; it is
// mutated in place by Process and Queue, so only the cyclic path may touch
// it while the engine runs.
type Domain interface {
	Process() error
	Queue() error
	State() (DomainState, error)
	Data() ([]byte, error)
	Size() int
}

// SlaveConfig is a configuration request for one slave. The runtime demands
// the call order sync managers -> PDO assignment -> PDO mapping ->
// registration; violating it yields undefined results, so the layer above
// enforces it explicitly.
type SlaveConfig interface {
	ConfigureSyncManager(syncIndex uint8, dir Direction, wd WatchdogMode) error
	ClearPdoAssignments(syncIndex uint8) error
	AddPdoAssignment(syncIndex uint8, pdoIndex uint16) error
	ClearPdoMapping(pdoIndex uint16) error
	AddPdoEntry(pdoIndex, entryIndex uint16, entrySubindex uint8, bitLength uint8) error

	// RegisterPdoEntry maps an entry into the domain. The returned offset
	// follows the native convention: >= 0 is the byte offset within the
	// domain, negative values are the runtime's failure sentinel.
	RegisterPdoEntry(entryIndex uint16, entrySubindex uint8, d Domain) (offset int, bitPosition uint8, err error)
}
