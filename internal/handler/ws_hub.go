package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types sent over WebSocket.
const (
	EventPhaseChanged     = "phase_changed"
	EventPlayerJoined     = "player_joined"
	EventPlayerRenamed    = "player_renamed"
	EventPlayerSubmitted  = "player_submitted"
	EventMessage          = "message"
	EventSessionRestarted = "session_restarted"
	EventGameRevealed     = "game_revealed"
	EventSessionUpdated   = "session_updated"
	EventPlayerUpdated    = "player_updated"
	EventError            = "error"
)

// Client actions.
const (
	ActionSubscribe       = "subscribe"
	ActionSubscribePlayer = "subscribe_player"
	ActionUnsubscribe     = "unsubscribe"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type        string `json:"type"`
	SessionCode string `json:"session_code"`
	Data        any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action      string `json:"action"`
	SessionCode string `json:"session_code"`
}

// WSConn wraps a WebSocket connection with its user and its live document
// subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte

	mu     sync.Mutex
	closed bool
	subs   map[string]func() // subscription key -> cancel
}

func newWSConn(conn *websocket.Conn, userID string, buffer int) *WSConn {
	return &WSConn{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, buffer),
		subs:   make(map[string]func()),
	}
}

// enqueue queues data for the write pump without blocking. Messages for a
// closed or backed-up connection are dropped.
func (c *WSConn) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// track records a subscription cancel func, replacing any previous one
// under the same key.
func (c *WSConn) track(key string, cancel func()) {
	c.mu.Lock()
	prev := c.subs[key]
	c.subs[key] = cancel
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// untrack cancels the subscription under key.
func (c *WSConn) untrack(key string) {
	c.mu.Lock()
	cancel := c.subs[key]
	delete(c.subs, key)
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// close cancels every subscription and closes the send channel.
func (c *WSConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]func())
	close(c.send)
	c.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}
}

// Hub manages WebSocket connections and session-channel subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	sessions    map[string]map[*WSConn]bool // session code -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		sessions:    make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	delete(h.connections, c)
	for code, conns := range h.sessions {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.sessions, code)
		}
	}
	h.mu.Unlock()
	c.close()
}

// Subscribe adds a connection to a session channel.
func (h *Hub) Subscribe(c *WSConn, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[code] == nil {
		h.sessions[code] = make(map[*WSConn]bool)
	}
	h.sessions[code][c] = true
}

// Unsubscribe removes a connection from a session channel.
func (h *Hub) Unsubscribe(c *WSConn, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.sessions[code]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.sessions, code)
		}
	}
}

// BroadcastToSession sends an event to all connections subscribed to a
// session.
func (h *Hub) BroadcastToSession(code string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("sessionCode", code).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.sessions[code] {
		if !c.enqueue(data) {
			log.Warn().Str("userId", c.userID).Str("sessionCode", code).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// SendTo delivers an event to a single connection.
func (h *Hub) SendTo(c *WSConn, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("userId", c.userID).Msg("Failed to marshal WebSocket event")
		return
	}
	if !c.enqueue(data) {
		log.Warn().Str("userId", c.userID).Str("type", event.Type).Msg("Dropping WebSocket message, buffer full")
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionSubscriberCount returns the number of connections subscribed to a
// session.
func (h *Hub) SessionSubscriberCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[code])
}
