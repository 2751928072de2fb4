// Package hub fans trace events out to live WebSocket watchers.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xiaot623/carechat/internal/protocol"
)

var (
	// ErrBufferFull is returned when a watcher's send buffer is full.
	ErrBufferFull = errors.New("send buffer full")
	// ErrNotRegistered is returned when sending to a watcher the hub no longer tracks.
	ErrNotRegistered = errors.New("connection not registered")
)

const sendBuffer = 256

// Connection is one watcher.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

// Hub tracks watchers by the session they follow.
type Hub struct {
	connections map[string]*Connection
	// session id (or protocol.AllSessions) to connection ids
	sessions map[string]map[string]bool

	unregister chan *Connection
	broadcast  chan *sessionMessage
	done       chan struct{}
	closed     bool

	log zerolog.Logger
	mu  sync.RWMutex
}

type sessionMessage struct {
	sessionID string
	data      []byte
}

// New creates a Hub. Call Run to start delivering messages.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *sessionMessage, sendBuffer),
		done:        make(chan struct{}),
		log:         logger.With().Str("component", "hub").Logger(),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every watcher.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				close(conn.Send)
				delete(h.connections, id)
			}
			h.sessions = make(map[string]map[string]bool)
			h.closed = true
			h.mu.Unlock()
			return

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				close(conn.Send)
			}
			h.mu.Unlock()
			h.log.Debug().Str("conn_id", conn.ID).Msg("watcher unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *sessionMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	for _, key := range []string{msg.sessionID, protocol.AllSessions} {
		for connID := range h.sessions[key] {
			if seen[connID] {
				continue
			}
			seen[connID] = true
			conn, ok := h.connections[connID]
			if !ok {
				continue
			}
			select {
			case conn.Send <- msg.data:
			default:
				h.log.Warn().Str("conn_id", connID).Msg("watcher buffer full, closing")
				go h.Unregister(conn)
			}
		}
	}
}

// NewConnection wraps ws as a watcher. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   "conn_" + uuid.New().String()[:8],
		Conn: ws,
		Send: make(chan []byte, sendBuffer),
	}
}

// Register adds a watcher. After the hub has stopped it only closes conn.Send.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(conn.Send)
		return
	}
	h.connections[conn.ID] = conn
	if conn.SessionID != "" {
		h.bindLocked(conn, conn.SessionID)
	}
	h.log.Debug().Str("conn_id", conn.ID).Msg("watcher registered")
}

// Unregister removes a watcher and closes its send channel.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BindSession makes conn follow sessionID, or every session for protocol.AllSessions.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(conn)
	h.bindLocked(conn, sessionID)
}

func (h *Hub) bindLocked(conn *Connection, sessionID string) {
	conn.SessionID = sessionID
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.SessionID == "" || h.sessions[conn.SessionID] == nil {
		return
	}
	delete(h.sessions[conn.SessionID], conn.ID)
	if len(h.sessions[conn.SessionID]) == 0 {
		delete(h.sessions, conn.SessionID)
	}
}

// Broadcast queues data for the watchers of sessionID and the all-sessions watchers.
// It never blocks; when the queue is full the message is dropped.
func (h *Hub) Broadcast(sessionID string, data []byte) error {
	select {
	case h.broadcast <- &sessionMessage{sessionID: sessionID, data: data}:
		return nil
	default:
		return ErrBufferFull
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(sessionID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Broadcast(sessionID, data)
}

// SendJSON queues v for a single watcher.
func (h *Hub) SendJSON(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return ErrNotRegistered
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// ConnectionCount returns the number of registered watchers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasWatchers reports whether anyone follows sessionID, directly or through the all-sessions feed.
func (h *Hub) HasWatchers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0 || len(h.sessions[protocol.AllSessions]) > 0
}

// WriteMessage writes to the socket with the connection's write lock held.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the socket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
