package fieldbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"go.uber.org/zap"
)

// SlaveKey identifies a physical slave for configuration purposes.
type SlaveKey struct {
	Alias       uint16 `json:"alias"`
	Position    uint16 `json:"position"`
	VendorID    uint32 `json:"vendor_id"`
	ProductCode uint32 `json:"product_code"`
}

// PdoOffset is the stable location of a registered PDO entry within its
// domain buffer. Offsets are final at registration time and are never
// renumbered for the life of the session.
type PdoOffset struct {
	Byte int   `json:"byte_offset"`
	Bit  uint8 `json:"bit_position"`
}

// PdoRegistration records one entry-to-domain registration.
type PdoRegistration struct {
	SlaveConfigID int       `json:"slave_config_id"`
	EntryIndex    uint16    `json:"entry_index"`
	EntrySubindex uint8     `json:"entry_subindex"`
	DomainID      int       `json:"domain_id"`
	Offset        PdoOffset `json:"offset"`
}

// Session owns exactly one master handle and all domains and slave configs
// created through it. The control plane (request, configure, activate,
// reset, release, queries) is serialized by a single mutex; the cyclic
// engine runs on its own goroutine and never takes that mutex.
type Session struct {
	logger      *zap.Logger
	runtime     ecrt.Runtime
	masterIndex uint

	mu       sync.Mutex
	state    atomic.Int32
	master   ecrt.Master
	registry *HandleRegistry
	configs  map[int]*slaveConfig
	engine   *CyclicEngine

	// domainLocks serialize all access to a domain's buffer: the engine
	// holds a domain's lock across Process and Queue, views take it per
	// accessor. This is what makes DomainView usable while the engine runs.
	domainLocks map[int]*sync.Mutex

	listenersMu sync.RWMutex
	listeners   []chan Event
}

type slaveConfig struct {
	raw   ecrt.SlaveConfig
	key   SlaveKey
	phase configPhase
	regs  map[regKey]PdoOffset
	order []PdoRegistration
}

type regKey struct {
	entryIndex    uint16
	entrySubindex uint8
	domainID      int
}

func NewSession(runtime ecrt.Runtime, masterIndex uint, logger *zap.Logger) *Session {
	s := &Session{
		logger:      logger,
		runtime:     runtime,
		masterIndex: masterIndex,
		registry:    NewHandleRegistry(),
		configs:     make(map[int]*slaveConfig),
		domainLocks: make(map[int]*sync.Mutex),
	}
	s.state.Store(int32(StateUninitialized))
	return s
}

// CurrentState returns the session's lifecycle state.
func (s *Session) CurrentState() SessionState {
	return SessionState(s.state.Load())
}

// Request reserves the master. Valid only from uninitialized; a failed
// request leaves the session uninitialized so the caller may retry.
func (s *Session) Request() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.CurrentState() {
	case StateReleased:
		return ErrReleased
	case StateUninitialized:
	default:
		return ErrAlreadyRequested
	}

	master, err := s.runtime.RequestMaster(s.masterIndex)
	if err != nil {
		s.logger.Warn("Master request failed",
			zap.Uint("master_index", s.masterIndex),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMasterUnavailable, err)
	}

	s.master = master
	s.state.Store(int32(StateRequested))
	s.logger.Info("Master requested", zap.Uint("master_index", s.masterIndex))
	return nil
}

// CreateDomain creates a process data domain. Only valid before activation.
func (s *Session) CreateDomain() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigurable(); err != nil {
		return 0, err
	}

	domain, err := s.master.CreateDomain()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfigurationFailed, err)
	}

	id := s.registry.Put(KindDomain, domain)
	s.domainLocks[id] = &sync.Mutex{}
	s.logger.Info("Domain created", zap.Int("domain_id", id))
	return id, nil
}

// ConfigureSlave obtains a slave configuration for the given identity.
// Only valid before activation.
func (s *Session) ConfigureSlave(alias, position uint16, vendorID, productCode uint32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigurable(); err != nil {
		return 0, err
	}

	raw, err := s.master.SlaveConfig(alias, position, vendorID, productCode)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfigurationFailed, err)
	}

	cfg := &slaveConfig{
		raw:  raw,
		key:  SlaveKey{Alias: alias, Position: position, VendorID: vendorID, ProductCode: productCode},
		regs: make(map[regKey]PdoOffset),
	}
	id := s.registry.Put(KindSlaveConfig, cfg)
	s.configs[id] = cfg

	s.logger.Info("Slave config created",
		zap.Int("config_id", id),
		zap.Uint16("position", position),
		zap.Uint32("vendor_id", vendorID),
		zap.Uint32("product_code", productCode))
	return id, nil
}

// Activate finalizes the configuration and makes the session cyclic-capable.
// Not idempotent: activating an activated session fails. On failure the
// session stays requested so the caller can fix the configuration and retry.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.CurrentState() {
	case StateUninitialized:
		return ErrNoMaster
	case StateReleased:
		return ErrReleased
	case StateActivated, StateRunning:
		return ErrAlreadyActivated
	}

	if s.registry.Len(KindDomain) == 0 {
		return fmt.Errorf("%w: no domains registered", ErrActivationFailed)
	}

	if err := s.master.Activate(); err != nil {
		s.logger.Error("Activation failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrActivationFailed, err)
	}

	s.state.Store(int32(StateActivated))
	s.emit(newEvent(EventActivated, nil))
	s.logger.Info("Master activated",
		zap.Int("domains", s.registry.Len(KindDomain)),
		zap.Int("slave_configs", s.registry.Len(KindSlaveConfig)))
	return nil
}

// Reset drops the activated configuration and returns to requested. All
// domain and slave-config handles become invalid and all recorded offsets
// are discarded (invalidate-all policy); the caller must rebuild the
// configuration before activating again.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.CurrentState() {
	case StateUninitialized:
		return ErrNoMaster
	case StateReleased:
		return ErrReleased
	}

	s.stopEngineLocked()

	if err := s.master.Reset(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetFailed, err)
	}

	s.registry.Clear()
	s.configs = make(map[int]*slaveConfig)
	s.domainLocks = make(map[int]*sync.Mutex)
	s.state.Store(int32(StateRequested))
	s.emit(newEvent(EventReset, nil))
	s.logger.Info("Master reset, configuration invalidated")
	return nil
}

// Release stops the cyclic engine, drops all bookkeeping and returns the
// master to the runtime exactly once. Idempotent.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.CurrentState() {
	case StateReleased:
		return nil
	case StateUninitialized:
		s.state.Store(int32(StateReleased))
		return nil
	}

	s.stopEngineLocked()

	s.registry.Clear()
	s.configs = make(map[int]*slaveConfig)
	s.domainLocks = make(map[int]*sync.Mutex)
	s.master.Release()
	s.master = nil
	s.state.Store(int32(StateReleased))
	s.emit(newEvent(EventReleased, nil))
	s.logger.Info("Master released")
	return nil
}

// State queries the master status. Valid in any state once requested.
func (s *Session) State() (ecrt.MasterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.master == nil {
		return 0, ErrNoMaster
	}
	return s.master.State()
}

// GetSlave returns the identity of the slave at the given ring position.
func (s *Session) GetSlave(position uint16) (ecrt.SlaveInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.master == nil {
		return ecrt.SlaveInfo{}, ErrNoMaster
	}
	info, err := s.master.GetSlave(position)
	if err != nil {
		return ecrt.SlaveInfo{}, fmt.Errorf("%w: position %d", ErrInvalidHandle, position)
	}
	return info, nil
}

// Scan enumerates all responding slaves on the bus.
func (s *Session) Scan() ([]ecrt.SlaveInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.master == nil {
		return nil, ErrNoMaster
	}

	state, err := s.master.State()
	if err != nil {
		return nil, err
	}

	slaves := make([]ecrt.SlaveInfo, 0, state.SlavesResponding())
	for pos := uint32(0); pos < state.SlavesResponding(); pos++ {
		info, err := s.master.GetSlave(uint16(pos))
		if err != nil {
			// A slave can drop between the state query and the walk.
			continue
		}
		slaves = append(slaves, info)
	}
	return slaves, nil
}

// Registrations returns a snapshot of all recorded PDO registrations.
func (s *Session) Registrations() []PdoRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []PdoRegistration
	for _, id := range s.registry.IDs(KindSlaveConfig) {
		if cfg, ok := s.configs[id]; ok {
			all = append(all, cfg.order...)
		}
	}
	return all
}

// DomainIDs returns domain ids in creation order.
func (s *Session) DomainIDs() []int {
	return s.registry.IDs(KindDomain)
}

// Subscribe returns a channel receiving session events. Slow subscribers
// lose events instead of blocking the emitter.
func (s *Session) Subscribe() chan Event {
	ch := make(chan Event, 32)
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenersMu.Unlock()
	return ch
}

func (s *Session) Unsubscribe(ch chan Event) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for i, l := range s.listeners {
		if l == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Session) emit(ev Event) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, l := range s.listeners {
		select {
		case l <- ev:
		default:
			// Channel full, skip
		}
	}
}

// requireConfigurable guards operations that mutate the domain or
// slave-config sets. They are refused once activated so the configuration
// can never change under a running cyclic engine.
func (s *Session) requireConfigurable() error {
	switch s.CurrentState() {
	case StateUninitialized:
		return ErrNoMaster
	case StateReleased:
		return ErrReleased
	case StateActivated, StateRunning:
		return ErrAlreadyActivated
	}
	return nil
}

func (s *Session) domain(id int) (ecrt.Domain, error) {
	h, ok := s.registry.Get(KindDomain, id)
	if !ok {
		return nil, fmt.Errorf("%w: domain %d", ErrInvalidHandle, id)
	}
	return h.(ecrt.Domain), nil
}

func (s *Session) config(id int) (*slaveConfig, error) {
	h, ok := s.registry.Get(KindSlaveConfig, id)
	if !ok {
		return nil, fmt.Errorf("%w: slave config %d", ErrInvalidHandle, id)
	}
	return h.(*slaveConfig), nil
}

// stopEngineLocked stops a running engine while holding the control-plane
// mutex. The engine goroutine never takes that mutex, so waiting here is
// deadlock free.
func (s *Session) stopEngineLocked() {
	if s.engine != nil {
		s.engine.Stop()
		s.engine = nil
	}
}
