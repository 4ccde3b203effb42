package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenFieldbusCore/internal/auth"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second

	// authWait bounds how long an unauthenticated connection may linger.
	authWait = 10 * time.Second

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 8192
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		return true
	},
}

// clientCommand is every inbound message a client may send. The first one
// must be an auth command; subscribe lists the event types the client wants
// (empty means all of them).
type clientCommand struct {
	Type      string   `json:"type"`
	Token     string   `json:"token,omitempty"`
	Subscribe []string `json:"subscribe,omitempty"`
}

// Client is one live feed connection. filter is fixed before the client is
// registered with the hub and never mutated afterwards, so the hub may read
// it without locking.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	logger        *zap.Logger
	authenticated bool
	permissions   []auth.Permission
	filter        map[MessageType]struct{}
}

// wants reports whether the client subscribed to this event type.
func (c *Client) wants(t MessageType) bool {
	if c.filter == nil {
		return true
	}
	_, ok := c.filter[t]
	return ok
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.conn.RemoteAddr().String()))
			}
			break
		}

		if !c.authenticated {
			if !c.handleAuth(cmd) {
				return
			}
			continue
		}

		c.logger.Debug("Unhandled client command",
			zap.String("remote_addr", c.conn.RemoteAddr().String()),
			zap.String("type", cmd.Type))
	}
}

// handleAuth processes the mandatory first command. On success the client
// joins the hub with its event filter in place; on failure the connection
// dies.
func (c *Client) handleAuth(cmd clientCommand) bool {
	if cmd.Type != "auth" {
		c.reject("First message must be authentication")
		return false
	}
	if cmd.Token == "" {
		c.reject("Missing token in auth message")
		return false
	}

	permissions, err := c.hub.authService.ValidateToken(
		context.Background(),
		cmd.Token,
		c.conn.RemoteAddr().String(),
		"", // User-Agent not available in WebSocket
	)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.conn.RemoteAddr().String()))
		c.reject("Invalid or expired token")
		return false
	}

	if len(cmd.Subscribe) > 0 {
		c.filter = make(map[MessageType]struct{}, len(cmd.Subscribe))
		for _, t := range cmd.Subscribe {
			c.filter[MessageType(t)] = struct{}{}
		}
	}

	c.authenticated = true
	c.permissions = permissions
	c.conn.SetReadDeadline(time.Time{})

	c.acknowledge(permissions, cmd.Subscribe)
	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.conn.RemoteAddr().String()),
		zap.Strings("subscribed", cmd.Subscribe),
		zap.Any("permissions", permissions))

	// Register with the hub only after successful auth
	c.hub.register <- c
	return true
}

func (c *Client) acknowledge(permissions []auth.Permission, subscribed []string) {
	msg := map[string]interface{}{
		"type":        "auth_success",
		"timestamp":   time.Now(),
		"permissions": permissions,
	}
	if len(subscribed) > 0 {
		msg["subscribed"] = subscribed
	}
	data, _ := json.Marshal(msg)
	c.send <- data
}

func (c *Client) reject(reason string) {
	msg := map[string]interface{}{
		"type":      "auth_failed",
		"timestamp": time.Now(),
		"reason":    reason,
	}
	data, _ := json.Marshal(msg)
	c.send <- data
	c.conn.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce queued messages into the current frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	// Pumps run before auth so the auth result can be written back
	go client.writePump()
	go client.readPump()
}
