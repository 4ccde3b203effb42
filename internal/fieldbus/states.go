package fieldbus

import (
	"time"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
)

type SessionState int32

const (
	StateUninitialized SessionState = iota
	StateRequested
	StateActivated
	StateRunning
	StateReleased
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRequested:
		return "requested"
	case StateActivated:
		return "activated"
	case StateRunning:
		return "running"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// EventType identifies a session notification delivered to subscribers.
type EventType string

const (
	EventActivated     EventType = "activated"
	EventReset         EventType = "reset"
	EventReleased      EventType = "released"
	EventCyclicStarted EventType = "cyclic_started"
	EventCyclicStopped EventType = "cyclic_stopped"
	EventDomainState   EventType = "domain_state"
	EventFault         EventType = "fault"
)

type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Detail    interface{} `json:"detail,omitempty"`
}

// DomainStateChange is the detail of an EventDomainState. It is emitted only
// when a domain's working counter classification changes, not on every
// complete cycle.
type DomainStateChange struct {
	DomainID       int          `json:"domain_id"`
	WcState        ecrt.WcState `json:"-"`
	State          string       `json:"state"`
	WorkingCounter uint16       `json:"working_counter"`
	Cycle          uint64       `json:"cycle"`
}

// FaultDetail is the detail of an EventFault.
type FaultDetail struct {
	Cycle    uint64 `json:"cycle"`
	DomainID int    `json:"domain_id"`
	Reason   string `json:"reason"`
}

func newEvent(t EventType, detail interface{}) Event {
	return Event{Type: t, Timestamp: time.Now(), Detail: detail}
}
