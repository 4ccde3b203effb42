package websocket

import (
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenFieldbusCore/internal/auth"
	"github.com/KevinKickass/OpenFieldbusCore/internal/fieldbus"
	"go.uber.org/zap"
)

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *zap.Logger

	// Auth Service
	authService *auth.AuthService
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, authService *auth.AuthService) *Hub {
	return &Hub{
		broadcast:   make(chan Message, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		logger:      logger,
		authService: authService,
	}
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("total_clients", len(h.clients)))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.conn.RemoteAddr().String()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				h.mu.RUnlock()
				continue
			}

			for client := range h.clients {
				if !client.wants(message.Type) {
					continue
				}
				select {
				case client.send <- data:
					// Message sent successfully
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.conn.RemoteAddr().String()))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
		// Message queued for broadcast
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BridgeSessionEvents consumes session events and broadcasts them until
// the channel is closed. Run it in its own goroutine.
func (h *Hub) BridgeSessionEvents(events <-chan fieldbus.Event) {
	for ev := range events {
		msg, ok := translateEvent(ev)
		if !ok {
			continue
		}
		h.Broadcast(msg)
	}
}

func translateEvent(ev fieldbus.Event) (Message, bool) {
	switch ev.Type {
	case fieldbus.EventActivated:
		return NewMessage(MessageTypeMasterActivated, nil), true
	case fieldbus.EventReset:
		return NewMessage(MessageTypeMasterReset, nil), true
	case fieldbus.EventReleased:
		return NewMessage(MessageTypeMasterReleased, nil), true
	case fieldbus.EventCyclicStarted:
		return NewMessage(MessageTypeCyclicStarted, nil), true
	case fieldbus.EventCyclicStopped:
		return NewMessage(MessageTypeCyclicStopped, nil), true
	case fieldbus.EventDomainState:
		change, ok := ev.Detail.(fieldbus.DomainStateChange)
		if !ok {
			return Message{}, false
		}
		return NewMessage(MessageTypeDomainState, DomainStateData{
			DomainID:       change.DomainID,
			WcState:        change.State,
			WorkingCounter: change.WorkingCounter,
			Cycle:          change.Cycle,
		}), true
	case fieldbus.EventFault:
		fault, ok := ev.Detail.(fieldbus.FaultDetail)
		if !ok {
			return Message{}, false
		}
		return NewMessage(MessageTypeFault, FaultData{
			Cycle:    fault.Cycle,
			DomainID: fault.DomainID,
			Reason:   fault.Reason,
		}), true
	default:
		return Message{}, false
	}
}
