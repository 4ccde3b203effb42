package fieldbus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeriod = time.Millisecond

// runningSession returns an activated session with one 16 bit input entry
// registered in domain 0.
func runningSession(t *testing.T) (*Session, *SimFixture) {
	t.Helper()

	s, bus, domainID, configID := configuredSession(t, 1)
	_, err := s.RegisterPdoEntry(configID, 0x6000, 1, domainID)
	require.NoError(t, err)
	require.NoError(t, s.Activate())

	return s, &SimFixture{bus: bus, domainID: domainID}
}

// waitForEvent drains the channel until an event of the wanted type arrives.
func waitForEvent(t *testing.T, ch chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
			return Event{}
		}
	}
}

func TestStartCyclicStateGuards(t *testing.T) {
	s, _ := newTestSession(t, 1)

	err := s.StartCyclic(nil, testPeriod, 0, nil)
	assert.ErrorIs(t, err, ErrNoMaster)

	require.NoError(t, s.Request())
	err = s.StartCyclic(nil, testPeriod, 0, nil)
	assert.ErrorIs(t, err, ErrNotActivated)

	assert.ErrorIs(t, s.StopCyclic(), ErrEngineNotRunning)
}

func TestStartCyclicInvalidArguments(t *testing.T) {
	s, _ := runningSession(t)

	err := s.StartCyclic(nil, 0, 0, nil)
	assert.ErrorIs(t, err, ErrConfigurationFailed)

	err = s.StartCyclic([]int{42}, testPeriod, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestCyclicRunsAndStops(t *testing.T) {
	s, _ := runningSession(t)

	require.NoError(t, s.StartCyclic(nil, testPeriod, 0, nil))
	assert.Equal(t, StateRunning, s.CurrentState())

	assert.ErrorIs(t, s.StartCyclic(nil, testPeriod, 0, nil), ErrEngineRunning)

	require.Eventually(t, func() bool {
		stats, _ := s.EngineStats()
		return stats.Cycles > 3
	}, 2*time.Second, testPeriod)

	require.NoError(t, s.StopCyclic())
	assert.Equal(t, StateActivated, s.CurrentState())

	// Counters of the last run stay readable after the stop
	stats, running := s.EngineStats()
	assert.False(t, running)
	assert.Greater(t, stats.Cycles, uint64(3))
}

func TestCyclicCallback(t *testing.T) {
	s, fx := runningSession(t)

	var calls atomic.Uint64
	var sawDomain atomic.Bool
	cb := func(cycle uint64, views map[int]*DomainDataView) {
		calls.Add(1)
		if _, ok := views[fx.domainID]; ok {
			sawDomain.Store(true)
		}
	}

	require.NoError(t, s.StartCyclic([]int{fx.domainID}, testPeriod, 0, cb))
	require.Eventually(t, func() bool { return calls.Load() > 2 }, 2*time.Second, testPeriod)
	require.NoError(t, s.StopCyclic())

	assert.True(t, sawDomain.Load())
}

func TestCyclicInputRoundTrip(t *testing.T) {
	s, fx := runningSession(t)
	fx.bus.SetInput(0x6000, 1, []byte{0x34, 0x12})

	require.NoError(t, s.StartCyclic(nil, testPeriod, 0, nil))
	require.Eventually(t, func() bool {
		stats, _ := s.EngineStats()
		return stats.Cycles > 1
	}, 2*time.Second, testPeriod)
	require.NoError(t, s.StopCyclic())

	view, err := s.DomainView(fx.domainID)
	require.NoError(t, err)
	value, err := view.ReadUint16(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), value)
}

func TestDomainViewConcurrentWithRunningEngine(t *testing.T) {
	s, fx := runningSession(t)
	require.NoError(t, s.StartCyclic(nil, testPeriod, 0, nil))

	view, err := s.DomainView(fx.domainID)
	require.NoError(t, err)

	// Hammer the buffer from outside the cycle while the engine exchanges
	// it. Missing synchronization shows up under the race detector.
	stop := time.After(200 * time.Millisecond)
	for done := false; !done; {
		select {
		case <-stop:
			done = true
		default:
			require.NoError(t, view.WriteUint8(0, 0xa5))
			_, err := view.ReadUint16(0)
			require.NoError(t, err)
		}
	}

	require.NoError(t, s.StopCyclic())
}

func TestStartCyclicEmptySliceMeansAllDomains(t *testing.T) {
	s, _ := runningSession(t)
	events := s.Subscribe()
	defer s.Unsubscribe(events)

	require.NoError(t, s.StartCyclic([]int{}, testPeriod, 0, nil))

	// The registered domain is part of the exchange, so its working
	// counter state gets reported.
	ev := waitForEvent(t, events, EventDomainState)
	change := ev.Detail.(DomainStateChange)
	assert.Equal(t, "complete", change.State)

	require.NoError(t, s.StopCyclic())
}

func TestCyclicDomainStateNotifiedOnceOnChange(t *testing.T) {
	s, _ := runningSession(t)
	events := s.Subscribe()
	defer s.Unsubscribe(events)

	require.NoError(t, s.StartCyclic(nil, testPeriod, 0, nil))
	require.Eventually(t, func() bool {
		stats, _ := s.EngineStats()
		return stats.Cycles > 10
	}, 2*time.Second, testPeriod)
	require.NoError(t, s.StopCyclic())

	// The stop event bounds the stream; everything before it was emitted
	// by the run.
	var stateEvents []Event
	for {
		ev := nextEvent(t, events)
		if ev.Type == EventCyclicStopped {
			break
		}
		if ev.Type == EventDomainState {
			stateEvents = append(stateEvents, ev)
		}
	}

	// Many cycles ran, the working counter never changed after the first
	// exchange, so exactly one notification was delivered.
	require.Len(t, stateEvents, 1)
	change := stateEvents[0].Detail.(DomainStateChange)
	assert.Equal(t, "complete", change.State)
	assert.Equal(t, uint16(1), change.WorkingCounter)
}

func TestCyclicDegradedBusFaults(t *testing.T) {
	s, fx := runningSession(t)
	events := s.Subscribe()
	defer s.Unsubscribe(events)

	require.NoError(t, s.StartCyclic(nil, testPeriod, 3, nil))
	require.Eventually(t, func() bool {
		stats, _ := s.EngineStats()
		return stats.Cycles > 1
	}, 2*time.Second, testPeriod)

	fx.bus.SetResponding(0, false)

	ev := waitForEvent(t, events, EventFault)
	fault := ev.Detail.(FaultDetail)
	assert.Equal(t, fx.domainID, fault.DomainID)
	assert.Contains(t, fault.Reason, "consecutive")

	// The engine fail-stopped on its own
	waitForEvent(t, events, EventCyclicStopped)
	require.Eventually(t, func() bool {
		_, running := s.EngineStats()
		return !running && s.CurrentState() == StateActivated
	}, 2*time.Second, testPeriod)

	// The session itself stays usable: reset and rebuild
	require.NoError(t, s.Reset())
	assert.Equal(t, StateRequested, s.CurrentState())
}

func TestReleaseStopsRunningEngine(t *testing.T) {
	s, _ := runningSession(t)

	require.NoError(t, s.StartCyclic(nil, testPeriod, 0, nil))
	require.NoError(t, s.Release())
	assert.Equal(t, StateReleased, s.CurrentState())
}

// SimFixture bundles the simulated bus handles a cyclic test drives.
type SimFixture struct {
	bus      *ecrt.SimBus
	domainID int
}
