package types

// BusComposition describes one complete bus setup: which domains exist
// and which slave goes where with which profile.
type BusComposition struct {
	Name        string    `json:"name"`
	MasterIndex uint      `json:"master_index"`
	Composition BusLayout `json:"composition"`
}

type BusLayout struct {
	Domains []DomainSpec     `json:"domains"`
	Slaves  []SlavePlacement `json:"slaves"`
}

// DomainSpec names a process data domain. Slaves reference it by name.
type DomainSpec struct {
	Name string `json:"name"`
}

type SlavePlacement struct {
	Alias       uint16 `json:"alias"`
	Position    uint16 `json:"position"`
	VendorID    uint32 `json:"vendor_id"`
	ProductCode uint32 `json:"product_code"`
	Profile     string `json:"profile"`
	Domain      string `json:"domain"`
}

// Runtime view of a configured slave, returned by the API.
type SlaveStatus struct {
	Position    uint16 `json:"position"`
	VendorID    uint32 `json:"vendor_id"`
	ProductCode uint32 `json:"product_code"`
	Profile     string `json:"profile,omitempty"`
	ConfigID    int    `json:"config_id"`
}
