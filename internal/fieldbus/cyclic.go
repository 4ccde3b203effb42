package fieldbus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"go.uber.org/zap"
)

// CycleCallback runs once per cycle between domain processing and queueing.
// The views share the per-domain locks with the engine, so their accessors
// are safe to call, but keep the callback short: the cycle waits on it.
type CycleCallback func(cycle uint64, views map[int]*DomainDataView)

// EngineStats is a snapshot of cyclic engine counters.
type EngineStats struct {
	Cycles   uint64 `json:"cycles"`
	Overruns uint64 `json:"overruns"`
}

type engineDomain struct {
	id            int
	domain        ecrt.Domain
	lock          *sync.Mutex
	lastState     ecrt.WcState
	haveState     bool
	incompleteRun int
}

// CyclicEngine drives the process data exchange on a dedicated goroutine:
// receive, process each domain in registration order, run the callback,
// queue each domain, send, then wait for the next period boundary. Any
// runtime error inside a cycle is reported as a fault and the engine
// fail-stops; there are no partial-cycle recovery semantics underneath.
type CyclicEngine struct {
	session *Session
	master  ecrt.Master
	domains []engineDomain
	views   map[int]*DomainDataView

	period        time.Duration
	maxIncomplete int
	callback      CycleCallback
	logger        *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
	cycle    atomic.Uint64
	overruns atomic.Uint64
}

// StartCyclic starts the exchange loop over the given domains (all domains
// when none are named), with the given cycle period. maxIncomplete is the number of
// consecutive cycles a domain's working counter may stay non-complete
// before the engine treats the bus as failed; 0 disables the policy.
func (s *Session) StartCyclic(domainIDs []int, period time.Duration, maxIncomplete int, cb CycleCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.CurrentState() {
	case StateUninitialized:
		return ErrNoMaster
	case StateReleased:
		return ErrReleased
	case StateRequested:
		return ErrNotActivated
	case StateRunning:
		return ErrEngineRunning
	}
	if period <= 0 {
		return fmt.Errorf("%w: cycle period must be positive", ErrConfigurationFailed)
	}

	if len(domainIDs) == 0 {
		domainIDs = s.registry.IDs(KindDomain)
	}

	engine := &CyclicEngine{
		session:       s,
		master:        s.master,
		views:         make(map[int]*DomainDataView, len(domainIDs)),
		period:        period,
		maxIncomplete: maxIncomplete,
		callback:      cb,
		logger:        s.logger,
		stopChan:      make(chan struct{}),
	}

	for _, id := range domainIDs {
		domain, err := s.domain(id)
		if err != nil {
			return err
		}
		buf, err := domain.Data()
		if err != nil {
			return fmt.Errorf("%w: domain %d", ErrInvalidHandle, id)
		}
		lock := s.domainLocks[id]
		engine.domains = append(engine.domains, engineDomain{id: id, domain: domain, lock: lock})
		engine.views[id] = &DomainDataView{domainID: id, buf: buf, mu: lock}
	}

	s.engine = engine
	s.state.Store(int32(StateRunning))
	engine.start()

	s.emit(newEvent(EventCyclicStarted, nil))
	s.logger.Info("Cyclic engine started",
		zap.Duration("period", period),
		zap.Ints("domains", domainIDs),
		zap.Int("max_incomplete", maxIncomplete))
	return nil
}

// StopCyclic signals the loop to exit at its next cycle boundary and blocks
// until the goroutine has terminated. A send/receive pair is never
// interrupted, so no writer can be left dangling in a domain buffer.
func (s *Session) StopCyclic() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return ErrEngineNotRunning
	}
	s.stopEngineLocked()
	return nil
}

// engineExited is called from the engine goroutine as it terminates. It must
// not take the control-plane mutex: a control-plane Stop may be blocked
// waiting for exactly this goroutine.
func (s *Session) engineExited() {
	s.state.CompareAndSwap(int32(StateRunning), int32(StateActivated))
	s.emit(newEvent(EventCyclicStopped, nil))
}

// EngineStats returns counters of the current (or last) engine run and
// whether the loop is still alive. A fail-stopped engine keeps its counters
// but reports not running.
func (s *Session) EngineStats() (EngineStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return EngineStats{}, false
	}
	return s.engine.Stats(), s.engine.Running()
}

func (e *CyclicEngine) start() {
	e.running.Store(true)
	e.wg.Add(1)
	go e.loop()
}

// Stop is idempotent and safe to call after the engine fail-stopped itself.
func (e *CyclicEngine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()
}

func (e *CyclicEngine) Running() bool { return e.running.Load() }

func (e *CyclicEngine) Stats() EngineStats {
	return EngineStats{Cycles: e.cycle.Load(), Overruns: e.overruns.Load()}
}

func (e *CyclicEngine) loop() {
	defer e.wg.Done()
	defer e.exited()

	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if fault := e.runCycle(); fault != nil {
				e.logger.Error("Cycle fault, stopping engine",
					zap.Uint64("cycle", fault.Cycle),
					zap.Int("domain_id", fault.DomainID),
					zap.Error(fault.Err))
				e.session.emit(newEvent(EventFault, FaultDetail{
					Cycle:    fault.Cycle,
					DomainID: fault.DomainID,
					Reason:   fault.Error(),
				}))
				return
			}
			if elapsed := time.Since(start); elapsed > e.period {
				e.overruns.Add(1)
				e.logger.Warn("Cycle overrun",
					zap.Duration("elapsed", elapsed),
					zap.Duration("period", e.period))
			}
		}
	}
}

func (e *CyclicEngine) exited() {
	e.running.Store(false)
	e.session.engineExited()
	e.logger.Info("Cyclic engine stopped", zap.Uint64("cycles", e.cycle.Load()))
}

func (e *CyclicEngine) runCycle() *CycleFault {
	cycle := e.cycle.Add(1)

	if err := e.master.Receive(); err != nil {
		return &CycleFault{Cycle: cycle, DomainID: -1, Err: err}
	}

	for i := range e.domains {
		d := &e.domains[i]

		// The domain lock covers the buffer mutation inside Process.
		// It is dropped before the callback runs so the callback's own
		// view accessors (which take the same lock) cannot deadlock.
		d.lock.Lock()
		err := d.domain.Process()
		d.lock.Unlock()
		if err != nil {
			return &CycleFault{Cycle: cycle, DomainID: d.id, Err: err}
		}

		st, err := d.domain.State()
		if err != nil {
			return &CycleFault{Cycle: cycle, DomainID: d.id, Err: err}
		}

		// Subscribers are told about transitions, not about every
		// healthy cycle.
		if !d.haveState || st.WcState != d.lastState {
			d.haveState = true
			d.lastState = st.WcState
			e.session.emit(newEvent(EventDomainState, DomainStateChange{
				DomainID:       d.id,
				WcState:        st.WcState,
				State:          st.WcState.String(),
				WorkingCounter: st.WorkingCounter,
				Cycle:          cycle,
			}))
			e.logger.Info("Domain working counter state changed",
				zap.Int("domain_id", d.id),
				zap.String("state", st.WcState.String()),
				zap.Uint16("working_counter", st.WorkingCounter))
		}

		if st.WcState == ecrt.WcComplete {
			d.incompleteRun = 0
		} else {
			d.incompleteRun++
			if e.maxIncomplete > 0 && d.incompleteRun >= e.maxIncomplete {
				return &CycleFault{
					Cycle:    cycle,
					DomainID: d.id,
					Err: fmt.Errorf("working counter %s for %d consecutive cycles",
						st.WcState, d.incompleteRun),
				}
			}
		}
	}

	if e.callback != nil {
		e.callback(cycle, e.views)
	}

	for i := range e.domains {
		d := &e.domains[i]
		d.lock.Lock()
		err := d.domain.Queue()
		d.lock.Unlock()
		if err != nil {
			return &CycleFault{Cycle: cycle, DomainID: d.id, Err: err}
		}
	}

	if err := e.master.Send(); err != nil {
		return &CycleFault{Cycle: cycle, DomainID: -1, Err: err}
	}

	return nil
}
