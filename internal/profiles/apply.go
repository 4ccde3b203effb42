package profiles

import (
	"fmt"

	"github.com/KevinKickass/OpenFieldbusCore/internal/fieldbus"
)

// Apply drives the session's slave configurator from a profile, in the
// order the runtime requires: sync managers, PDO assignment, PDO mapping,
// then entry registration into the target domain. It returns the offsets of
// all registered entries keyed by entry name.
func Apply(s *fieldbus.Session, configID, domainID int, p *Profile) (map[string]fieldbus.PdoOffset, error) {
	for _, sm := range p.SyncManagers {
		dir, err := sm.direction()
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Name, err)
		}
		wd, err := sm.watchdog()
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Name, err)
		}
		if err := s.ConfigureSyncManager(configID, sm.Index, dir, wd); err != nil {
			return nil, err
		}
	}

	for _, sm := range p.SyncManagers {
		if len(sm.Pdos) == 0 {
			continue
		}
		if err := s.ClearPdoAssignments(configID, sm.Index); err != nil {
			return nil, err
		}
		for _, pdo := range sm.Pdos {
			if err := s.AddPdoAssignment(configID, sm.Index, pdo.Index); err != nil {
				return nil, err
			}
		}
	}

	for _, sm := range p.SyncManagers {
		for _, pdo := range sm.Pdos {
			if len(pdo.Entries) == 0 {
				continue
			}
			if err := s.ClearPdoMapping(configID, pdo.Index); err != nil {
				return nil, err
			}
			for _, e := range pdo.Entries {
				if err := s.AddPdoEntry(configID, pdo.Index, e.Index, e.Subindex, e.BitLength); err != nil {
					return nil, err
				}
			}
		}
	}

	offsets := make(map[string]fieldbus.PdoOffset)
	for _, sm := range p.SyncManagers {
		for _, pdo := range sm.Pdos {
			for _, e := range pdo.Entries {
				off, err := s.RegisterPdoEntry(configID, e.Index, e.Subindex, domainID)
				if err != nil {
					return nil, err
				}
				offsets[e.Key()] = off
			}
		}
	}

	return offsets, nil
}
