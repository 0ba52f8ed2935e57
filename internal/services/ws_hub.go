package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Push channel event names
const (
	EventNewMessage   = "newMessage"
	EventMessagesRead = "messagesRead"
	EventError        = "error"
	EventPing         = "ping"
	EventPong         = "pong"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// ErrNotConnected is returned when the target user has no live connection
var ErrNotConnected = errors.New("user is not connected")

// WSMessage represents a WebSocket event
type WSMessage struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// EventPublisher delivers events to connected users
type EventPublisher interface {
	SendToUser(userID string, message WSMessage) error
	IsOnline(userID string) bool
}

// wsConn is a registered connection with its own writer goroutine
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsConn
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*wsConn),
	}
}

// Register registers a new WebSocket connection for a user and starts its writer.
// An existing connection for the same user is closed.
// The returned function unregisters this connection only.
func (h *WSHub) Register(userID string, conn *websocket.Conn) func() {
	c := &wsConn{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if existing, exists := h.connections[userID]; exists {
		existing.close()
	}
	h.connections[userID] = c
	h.mu.Unlock()

	go h.writePump(userID, c)

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")

	return func() { h.unregister(userID, c) }
}

func (h *WSHub) unregister(userID string, c *wsConn) {
	h.mu.Lock()
	if current, exists := h.connections[userID]; exists && current == c {
		delete(h.connections, userID)
		log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	}
	h.mu.Unlock()
	c.close()
}

// SendToUser queues a message for a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	c, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotConnected, userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: %s", ErrNotConnected, userID)
	default:
		h.unregister(userID, c)
		return fmt.Errorf("send buffer full for user %s", userID)
	}
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// OnlineUsers returns the IDs of all connected users
func (h *WSHub) OnlineUsers() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close drops every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	conns := h.connections
	h.connections = make(map[string]*wsConn)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// writePump is the only writer of a connection
func (h *WSHub) writePump(userID string, c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to write WebSocket message")
				h.unregister(userID, c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(userID, c)
				return
			}
		case <-c.done:
			return
		}
	}
}
