package system

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/KevinKickass/OpenFieldbusCore/internal/api/rest"
	"github.com/KevinKickass/OpenFieldbusCore/internal/api/websocket"
	"github.com/KevinKickass/OpenFieldbusCore/internal/auth"
	"github.com/KevinKickass/OpenFieldbusCore/internal/config"
	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"github.com/KevinKickass/OpenFieldbusCore/internal/fieldbus"
	"github.com/KevinKickass/OpenFieldbusCore/internal/interfaces"
	"github.com/KevinKickass/OpenFieldbusCore/internal/profiles"
	"github.com/KevinKickass/OpenFieldbusCore/internal/storage"
	"github.com/KevinKickass/OpenFieldbusCore/internal/types"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config      *config.Config
	storage     *storage.PostgresClient
	session     *fieldbus.Session
	profiles    *profiles.Loader
	authService *auth.AuthService
	logger      *zap.Logger

	restServer *rest.Server
	wsHub      *websocket.Hub

	sessionEvents chan fieldbus.Event

	stateMu      sync.RWMutex
	currentState SystemState
	lastErr      error
	activeBus    string

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(
	store *storage.PostgresClient,
	cfg *config.Config,
	logger *zap.Logger,
) (*LifecycleManager, error) {
	runtime, err := newRuntime(cfg.EtherCAT)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}

	loader, err := profiles.NewLoader(cfg.Profiles.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	session := fieldbus.NewSession(runtime, cfg.EtherCAT.MasterIndex, logger)
	authService := auth.NewAuthService(store, cfg.Auth)

	return &LifecycleManager{
		config:       cfg,
		storage:      store,
		session:      session,
		profiles:     loader,
		authService:  authService,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}, nil
}

// newRuntime builds the master runtime for the configured mode.
func newRuntime(cfg config.EtherCATConfig) (ecrt.Runtime, error) {
	switch cfg.Mode {
	case "", "simulated":
		sim := ecrt.NewSim()
		slaves := make([]ecrt.SimSlave, len(cfg.SimSlaves))
		for i, sl := range cfg.SimSlaves {
			slaves[i] = ecrt.SimSlave{
				Position:    sl.Position,
				VendorID:    sl.VendorID,
				ProductCode: sl.ProductCode,
			}
		}
		sim.AddBus(cfg.MasterIndex, slaves...)
		return sim, nil
	case "native":
		return nil, fmt.Errorf("native runtime requires a kernel master, rebuild with the native backend")
	default:
		return nil, fmt.Errorf("unknown ethercat mode %q", cfg.Mode)
	}
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenFieldbusCore")

	lm.setState(StateInitializing)

	if err := lm.bootstrapAdminUser(); err != nil {
		lm.logger.Warn("Failed to bootstrap admin user", zap.Error(err))
		// Continue anyway, not critical
	}

	// WebSocket hub feeds live session events to connected clients
	lm.wsHub = websocket.NewHub(lm.logger, lm.authService)
	go lm.wsHub.Run()

	lm.sessionEvents = lm.session.Subscribe()
	go lm.wsHub.BridgeSessionEvents(lm.sessionEvents)
	go lm.recordSessionEvents()

	if err := lm.applyStoredCompositions(); err != nil {
		lm.logger.Warn("Failed to apply stored bus compositions", zap.Error(err))
		// Continue anyway, not critical
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("ethercat_mode", lm.config.EtherCAT.Mode),
		zap.Uint("master_index", lm.config.EtherCAT.MasterIndex))

	return nil
}

// bootstrapAdminUser creates an initial admin account on an empty database.
func (lm *LifecycleManager) bootstrapAdminUser() error {
	ctx := context.Background()

	count, err := lm.storage.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("OFC_ADMIN_PASSWORD")
	if password == "" {
		return fmt.Errorf("no users exist and OFC_ADMIN_PASSWORD is not set")
	}

	user, err := lm.authService.CreateUser(ctx, "admin", password, "admin")
	if err != nil {
		return err
	}

	lm.logger.Info("Bootstrapped initial admin user", zap.String("user_id", user.ID.String()))
	return nil
}

// applyStoredCompositions configures the bus from the enabled compositions
// in the database. Only compositions for the configured master are applied.
func (lm *LifecycleManager) applyStoredCompositions() error {
	ctx := context.Background()

	compositions, err := lm.storage.LoadEnabledBusCompositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load compositions: %w", err)
	}

	lm.logger.Info("Loading bus compositions from database", zap.Int("count", len(compositions)))

	for _, comp := range compositions {
		if comp.MasterIndex != lm.config.EtherCAT.MasterIndex {
			continue
		}

		if _, err := lm.ApplyComposition(ctx, comp); err != nil {
			lm.logger.Error("Failed to apply bus composition",
				zap.String("bus", comp.Name),
				zap.Error(err))
			continue
		}

		lm.logger.Info("Bus composition applied", zap.String("bus", comp.Name))
	}

	return nil
}

// ApplyComposition requests the master if needed, then creates the
// composition's domains and slave configs and registers every profile
// entry. Returns the created domain ids keyed by domain name.
func (lm *LifecycleManager) ApplyComposition(ctx context.Context, comp types.BusComposition) (map[string]int, error) {
	if lm.session.CurrentState() == fieldbus.StateUninitialized {
		if err := lm.session.Request(); err != nil {
			return nil, fmt.Errorf("failed to request master: %w", err)
		}
	}

	domainIDs := make(map[string]int, len(comp.Composition.Domains))
	for _, d := range comp.Composition.Domains {
		id, err := lm.session.CreateDomain()
		if err != nil {
			return nil, fmt.Errorf("failed to create domain %q: %w", d.Name, err)
		}
		domainIDs[d.Name] = id
	}

	for _, sl := range comp.Composition.Slaves {
		domainID, ok := domainIDs[sl.Domain]
		if !ok {
			return nil, fmt.Errorf("slave at position %d references unknown domain %q", sl.Position, sl.Domain)
		}

		configID, err := lm.session.ConfigureSlave(sl.Alias, sl.Position, sl.VendorID, sl.ProductCode)
		if err != nil {
			return nil, fmt.Errorf("failed to configure slave at position %d: %w", sl.Position, err)
		}

		profile, err := lm.lookupProfile(sl)
		if err != nil {
			return nil, err
		}

		if _, err := profiles.Apply(lm.session, configID, domainID, profile); err != nil {
			return nil, fmt.Errorf("failed to apply profile %q to slave at position %d: %w", profile.Name, sl.Position, err)
		}
	}

	lm.stateMu.Lock()
	lm.activeBus = comp.Name
	lm.stateMu.Unlock()

	if err := lm.storage.InsertBusEvent(ctx, comp.Name, "composition_applied", 0, nil, domainIDs); err != nil {
		lm.logger.Warn("Failed to record composition event", zap.Error(err))
	}

	return domainIDs, nil
}

func (lm *LifecycleManager) lookupProfile(sl types.SlavePlacement) (*profiles.Profile, error) {
	if sl.Profile != "" {
		profile, err := lm.profiles.Load(sl.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile %q: %w", sl.Profile, err)
		}
		return profile, nil
	}

	profile, err := lm.profiles.Match(sl.VendorID, sl.ProductCode)
	if err != nil {
		return nil, fmt.Errorf("no profile for vendor 0x%08x product 0x%08x: %w", sl.VendorID, sl.ProductCode, err)
	}
	return profile, nil
}

// recordSessionEvents persists lifecycle and fault events for auditing.
func (lm *LifecycleManager) recordSessionEvents() {
	events := lm.session.Subscribe()
	defer lm.session.Unsubscribe(events)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			lm.persistEvent(ev)
		case <-lm.shutdownChan:
			return
		}
	}
}

func (lm *LifecycleManager) persistEvent(ev fieldbus.Event) {
	lm.stateMu.RLock()
	busName := lm.activeBus
	lm.stateMu.RUnlock()

	if busName == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var cycle int64
	var domainID *int

	switch detail := ev.Detail.(type) {
	case fieldbus.DomainStateChange:
		cycle = int64(detail.Cycle)
		id := detail.DomainID
		domainID = &id
	case fieldbus.FaultDetail:
		cycle = int64(detail.Cycle)
		if detail.DomainID >= 0 {
			id := detail.DomainID
			domainID = &id
		}
	}

	if err := lm.storage.InsertBusEvent(ctx, busName, string(ev.Type), cycle, domainID, ev.Detail); err != nil {
		lm.logger.Warn("Failed to persist bus event",
			zap.String("event_type", string(ev.Type)),
			zap.Error(err))
	}
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 1. Stop the cyclic engine and release the master
	wg.Add(1)
	go func() {
		defer wg.Done()
		if lm.session.CurrentState() == fieldbus.StateRunning {
			if err := lm.session.StopCyclic(); err != nil {
				lm.logger.Warn("Cyclic engine stop failed", zap.Error(err))
			}
		}
		if err := lm.session.Release(); err != nil {
			errChan <- fmt.Errorf("master release failed: %w", err)
		}
	}()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	case err := <-errChan:
		return err
	}
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System entering error state", zap.Error(err))
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
	lm.lastErr = err
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	stats, running := lm.session.EngineStats()

	status := interfaces.SystemStatus{
		State:         lm.currentState.String(),
		SessionState:  lm.session.CurrentState().String(),
		DomainCount:   len(lm.session.DomainIDs()),
		CyclicRunning: running,
		Cycles:        stats.Cycles,
	}
	if lm.lastErr != nil {
		status.LastError = lm.lastErr.Error()
	}
	return status
}

// Session returns the master session
func (lm *LifecycleManager) Session() *fieldbus.Session {
	return lm.session
}

// Profiles returns the slave profile loader
func (lm *LifecycleManager) Profiles() *profiles.Loader {
	return lm.profiles
}

// Storage returns the storage client
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// AuthService returns the auth service
func (lm *LifecycleManager) AuthService() *auth.AuthService {
	return lm.authService
}
