// Package profiles loads and applies slave profiles: declarative
// descriptions of a slave's sync managers, PDO assignment, PDO mapping and
// named entries. A profile drives the slave configurator in the order the
// runtime requires and yields named, stable offsets into a domain buffer.
package profiles

import (
	"fmt"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
)

type Profile struct {
	Name         string           `json:"name"`
	VendorID     uint32           `json:"vendor_id"`
	ProductCode  uint32           `json:"product_code"`
	SyncManagers []SyncManagerDef `json:"sync_managers"`
}

type SyncManagerDef struct {
	Index     uint8    `json:"index"`
	Direction string   `json:"direction"` // "output" | "input"
	Watchdog  string   `json:"watchdog,omitempty"`
	Pdos      []PdoDef `json:"pdos,omitempty"`
}

type PdoDef struct {
	Index   uint16     `json:"index"`
	Entries []EntryDef `json:"entries,omitempty"`
}

type EntryDef struct {
	Index     uint16 `json:"index"`
	Subindex  uint8  `json:"subindex"`
	BitLength uint8  `json:"bit_length"`
	Name      string `json:"name,omitempty"`
}

// Key returns the entry's canonical name when no explicit name is set.
func (e EntryDef) Key() string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("0x%04x:%02x", e.Index, e.Subindex)
}

func (sm SyncManagerDef) direction() (ecrt.Direction, error) {
	switch sm.Direction {
	case "output":
		return ecrt.DirOutput, nil
	case "input":
		return ecrt.DirInput, nil
	default:
		return 0, fmt.Errorf("unknown sync manager direction %q", sm.Direction)
	}
}

func (sm SyncManagerDef) watchdog() (ecrt.WatchdogMode, error) {
	switch sm.Watchdog {
	case "", "default":
		return ecrt.WatchdogDefault, nil
	case "enable":
		return ecrt.WatchdogEnable, nil
	case "disable":
		return ecrt.WatchdogDisable, nil
	default:
		return 0, fmt.Errorf("unknown watchdog mode %q", sm.Watchdog)
	}
}
