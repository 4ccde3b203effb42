package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenFieldbusCore/internal/config"
	"github.com/KevinKickass/OpenFieldbusCore/internal/fieldbus"
	"github.com/KevinKickass/OpenFieldbusCore/internal/profiles"
	"github.com/KevinKickass/OpenFieldbusCore/internal/storage"
	"github.com/KevinKickass/OpenFieldbusCore/internal/types"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State         string `json:"state"`
	SessionState  string `json:"session_state"`
	DomainCount   int    `json:"domain_count"`
	CyclicRunning bool   `json:"cyclic_running"`
	Cycles        uint64 `json:"cycles"`
	LastError     string `json:"last_error,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	Storage() *storage.PostgresClient
	Session() *fieldbus.Session
	Profiles() *profiles.Loader
	ApplyComposition(ctx context.Context, comp types.BusComposition) (map[string]int, error)
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
