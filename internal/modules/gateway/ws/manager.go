// Package ws keeps the player websocket connections and pushes round events
// to them.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frankieli/color_wager/pkg/logger"
)

type CloseReason string

const (
	ReasonWriteError CloseReason = "write_error"
	ReasonPingError  CloseReason = "ping_error"
	ReasonReadError  CloseReason = "read_error"
	ReasonReplaced   CloseReason = "replaced_by_new_connection"
	ReasonShutdown   CloseReason = "server_shutdown"
	ReasonBufferFull CloseReason = "buffer_full"
	ReasonTimeout    CloseReason = "timeout"
)

const (
	sendBuffer   = 256
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	maxReadBytes = 4096
)

// Connection is one player's websocket
type Connection struct {
	UserID    int64
	Conn      *websocket.Conn
	Send      chan []byte
	manager   *Manager
	closeOnce sync.Once
	closed    chan struct{}
}

// Manager tracks one connection per user
type Manager struct {
	clients    map[int64]*Connection
	register   chan *Connection
	unregister chan *Connection
	done       chan struct{}
	mu         sync.RWMutex
}

// NewManager creates a connection manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[int64]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		done:       make(chan struct{}),
	}
}

// Register adds a connection for userID, replacing any earlier one
func (m *Manager) Register(conn *websocket.Conn, userID int64) *Connection {
	c := &Connection{
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		manager: m,
		closed:  make(chan struct{}),
	}
	select {
	case m.register <- c:
	case <-m.done:
		c.CloseWithReason(ReasonShutdown, nil)
	}
	return c
}

// Run processes registrations until ctx is done, then closes every
// connection
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return

		case client := <-m.register:
			m.mu.Lock()
			if old, ok := m.clients[client.UserID]; ok {
				old.CloseWithReason(ReasonReplaced, nil)
			}
			m.clients[client.UserID] = client
			m.mu.Unlock()

		case client := <-m.unregister:
			m.mu.Lock()
			if cur, ok := m.clients[client.UserID]; ok && cur == client {
				delete(m.clients, client.UserID)
			}
			m.mu.Unlock()
		}
	}
}

// Count returns the number of connected users
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Broadcast sends a message to every connected client
func (m *Manager) Broadcast(message []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.clients {
		select {
		case client.Send <- message:
		default:
			// slow reader; the read pump unregisters it once the socket closes
			client.CloseWithReason(ReasonBufferFull, nil)
		}
	}
}

// SendToUser sends a message to one user if connected
func (m *Manager) SendToUser(userID int64, message []byte) {
	m.mu.RLock()
	client, ok := m.clients[userID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case client.Send <- message:
		return
	default:
	}

	select {
	case client.Send <- message:
	case <-client.closed:
	case <-time.After(5 * time.Second):
		client.CloseWithReason(ReasonTimeout, nil)
	}
}

// Shutdown closes all connections
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.clients {
		client.CloseWithReason(ReasonShutdown, nil)
		delete(m.clients, id)
	}
}

// CloseWithReason closes the connection once
func (c *Connection) CloseWithReason(r CloseReason, err error) {
	c.closeOnce.Do(func() {
		ev := logger.Info(context.Background())
		if err != nil {
			ev = logger.Warn(context.Background()).Err(err)
		}
		ev.Int64("user_id", c.UserID).
			Str("reason", string(r)).
			Msg("ws connection closed")
		close(c.closed)
		c.Conn.Close()
	})
}

// WritePump writes queued messages and pings until the connection closes
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.CloseWithReason(ReasonWriteError, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.CloseWithReason(ReasonPingError, err)
				return
			}
		}
	}
}

// ReadPump reads client messages until the connection fails, passing each
// one to handleMessage.
func (c *Connection) ReadPump(handleMessage func(int64, []byte)) {
	var readErr error
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.CloseWithReason(ReasonReadError, readErr)
	}()

	c.Conn.SetReadLimit(maxReadBytes)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				readErr = err
			}
			return
		}
		if handleMessage != nil {
			handleMessage(c.UserID, message)
		}
	}
}
