package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Master lifecycle messages
	MessageTypeMasterActivated MessageType = "master_activated"
	MessageTypeMasterReset     MessageType = "master_reset"
	MessageTypeMasterReleased  MessageType = "master_released"

	// Cyclic exchange messages
	MessageTypeCyclicStarted MessageType = "cyclic_started"
	MessageTypeCyclicStopped MessageType = "cyclic_stopped"
	MessageTypeDomainState   MessageType = "domain_state"
	MessageTypeFault         MessageType = "fault"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// DomainStateData carries one working counter transition.
type DomainStateData struct {
	DomainID       int    `json:"domain_id"`
	WcState        string `json:"wc_state"`
	WorkingCounter uint16 `json:"working_counter"`
	Cycle          uint64 `json:"cycle"`
}

// FaultData describes why the cyclic engine stopped.
type FaultData struct {
	Cycle    uint64 `json:"cycle"`
	DomainID int    `json:"domain_id"`
	Reason   string `json:"reason"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
