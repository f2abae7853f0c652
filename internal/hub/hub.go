// Package hub provides connection management for command channel clients.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrConnectionClosed is returned when queuing to a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	// Send carries outbound frames to the write pump. It is never closed;
	// Done signals shutdown instead.
	Send chan []byte

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// Hub manages all command channel connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	register   chan *Connection
	unregister chan *Connection
	stopped    chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stopped:     make(chan struct{}),
		logger:      logger.With(zap.String("component", "hub")),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, after closing
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				conn.shutdown()
				delete(h.connections, id)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("connection registered", zap.String("conn_id", conn.ID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				conn.shutdown()
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))
		}
	}
}

// NewConnection wraps ws in a connection. sendBuffer bounds queued frames.
func (h *Hub) NewConnection(ws *websocket.Conn, sendBuffer int) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Register registers a connection with the hub. Connections registered after
// the hub stopped are shut down immediately.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.stopped:
		conn.shutdown()
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.stopped:
		conn.shutdown()
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Enqueue queues data for the write pump, blocking while the buffer is full.
// Frames are never dropped silently: it fails only when the connection or ctx ends.
func (c *Connection) Enqueue(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the connection is shutting down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// WriteControl writes a control frame such as a close or ping.
func (c *Connection) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return c.Conn.WriteControl(messageType, data, deadline)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	c.shutdown()
	return c.Conn.Close()
}
