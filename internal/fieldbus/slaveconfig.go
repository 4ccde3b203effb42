package fieldbus

import (
	"fmt"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"go.uber.org/zap"
)

// The runtime demands slave configuration in a fixed order: sync managers,
// then PDO assignment, then PDO mapping, then entry registration. Violating
// the order does not always produce a clean runtime error, so each config
// tracks its phase and out-of-order calls are rejected here before any
// runtime call is made. Phases only advance; there is no way back short of
// a session reset.
type configPhase int

const (
	phaseSyncManagers configPhase = iota
	phaseAssignments
	phaseMappings
	phaseRegistrations
)

func (p configPhase) String() string {
	switch p {
	case phaseSyncManagers:
		return "sync_managers"
	case phaseAssignments:
		return "pdo_assignment"
	case phaseMappings:
		return "pdo_mapping"
	case phaseRegistrations:
		return "pdo_registration"
	default:
		return "unknown"
	}
}

func (c *slaveConfig) enterPhase(p configPhase) error {
	if p < c.phase {
		return fmt.Errorf("%w: %s not allowed after %s", ErrConfigurationFailed, p, c.phase)
	}
	c.phase = p
	return nil
}

// ConfigureSyncManager sets up one sync manager of the slave. Must precede
// all PDO assignment, mapping and registration calls on this config.
func (s *Session) ConfigureSyncManager(configID int, syncIndex uint8, dir ecrt.Direction, wd ecrt.WatchdogMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigurable(); err != nil {
		return err
	}
	cfg, err := s.config(configID)
	if err != nil {
		return err
	}
	if err := cfg.enterPhase(phaseSyncManagers); err != nil {
		return err
	}
	if err := cfg.raw.ConfigureSyncManager(syncIndex, dir, wd); err != nil {
		return fmt.Errorf("%w: sync manager %d: %v", ErrConfigurationFailed, syncIndex, err)
	}
	return nil
}

// ClearPdoAssignments empties a sync manager's PDO assignment.
func (s *Session) ClearPdoAssignments(configID int, syncIndex uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigurable(); err != nil {
		return err
	}
	cfg, err := s.config(configID)
	if err != nil {
		return err
	}
	if err := cfg.enterPhase(phaseAssignments); err != nil {
		return err
	}
	if err := cfg.raw.ClearPdoAssignments(syncIndex); err != nil {
		return fmt.Errorf("%w: clear assignment sm%d: %v", ErrConfigurationFailed, syncIndex, err)
	}
	return nil
}

// AddPdoAssignment assigns a PDO to a sync manager.
func (s *Session) AddPdoAssignment(configID int, syncIndex uint8, pdoIndex uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigurable(); err != nil {
		return err
	}
	cfg, err := s.config(configID)
	if err != nil {
		return err
	}
	if err := cfg.enterPhase(phaseAssignments); err != nil {
		return err
	}
	if err := cfg.raw.AddPdoAssignment(syncIndex, pdoIndex); err != nil {
		return fmt.Errorf("%w: assign pdo 0x%04x to sm%d: %v", ErrConfigurationFailed, pdoIndex, syncIndex, err)
	}
	return nil
}

// ClearPdoMapping empties a PDO's entry mapping.
func (s *Session) ClearPdoMapping(configID int, pdoIndex uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigurable(); err != nil {
		return err
	}
	cfg, err := s.config(configID)
	if err != nil {
		return err
	}
	if err := cfg.enterPhase(phaseMappings); err != nil {
		return err
	}
	if err := cfg.raw.ClearPdoMapping(pdoIndex); err != nil {
		return fmt.Errorf("%w: clear mapping pdo 0x%04x: %v", ErrConfigurationFailed, pdoIndex, err)
	}
	return nil
}

// AddPdoEntry maps an entry into a PDO.
func (s *Session) AddPdoEntry(configID int, pdoIndex, entryIndex uint16, entrySubindex uint8, bitLength uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigurable(); err != nil {
		return err
	}
	cfg, err := s.config(configID)
	if err != nil {
		return err
	}
	if err := cfg.enterPhase(phaseMappings); err != nil {
		return err
	}
	if err := cfg.raw.AddPdoEntry(pdoIndex, entryIndex, entrySubindex, bitLength); err != nil {
		return fmt.Errorf("%w: map entry 0x%04x:%02x into pdo 0x%04x: %v",
			ErrConfigurationFailed, entryIndex, entrySubindex, pdoIndex, err)
	}
	return nil
}

// RegisterPdoEntry registers an entry for exchange within a domain and
// returns the stable offset of its data in the domain buffer. Registering
// an identical tuple again before activation returns the recorded offset.
// The runtime reports failure as a negative offset sentinel; that must
// never surface to callers as a usable offset.
func (s *Session) RegisterPdoEntry(configID int, entryIndex uint16, entrySubindex uint8, domainID int) (PdoOffset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConfigurable(); err != nil {
		return PdoOffset{}, err
	}
	cfg, err := s.config(configID)
	if err != nil {
		return PdoOffset{}, err
	}
	domain, err := s.domain(domainID)
	if err != nil {
		return PdoOffset{}, err
	}

	key := regKey{entryIndex: entryIndex, entrySubindex: entrySubindex, domainID: domainID}
	if off, ok := cfg.regs[key]; ok {
		return off, nil
	}

	if err := cfg.enterPhase(phaseRegistrations); err != nil {
		return PdoOffset{}, err
	}

	byteOffset, bitPos, err := cfg.raw.RegisterPdoEntry(entryIndex, entrySubindex, domain)
	if err != nil {
		return PdoOffset{}, fmt.Errorf("%w: entry 0x%04x:%02x: %v", ErrPdoRegistrationFailed, entryIndex, entrySubindex, err)
	}
	if byteOffset < 0 {
		return PdoOffset{}, fmt.Errorf("%w: entry 0x%04x:%02x: runtime sentinel %d",
			ErrPdoRegistrationFailed, entryIndex, entrySubindex, byteOffset)
	}

	off := PdoOffset{Byte: byteOffset, Bit: bitPos}
	cfg.regs[key] = off
	cfg.order = append(cfg.order, PdoRegistration{
		SlaveConfigID: configID,
		EntryIndex:    entryIndex,
		EntrySubindex: entrySubindex,
		DomainID:      domainID,
		Offset:        off,
	})

	s.logger.Debug("PDO entry registered",
		zap.Int("config_id", configID),
		zap.Int("domain_id", domainID),
		zap.Uint16("entry_index", entryIndex),
		zap.Uint8("entry_subindex", entrySubindex),
		zap.Int("byte_offset", off.Byte),
		zap.Uint8("bit_position", off.Bit))
	return off, nil
}
