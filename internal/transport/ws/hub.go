// Package ws fans observe notifications out to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/metrics"
)

// Message is the frame written to clients.
type Message struct {
	Type      string         `json:"type"`
	EventType string         `json:"event_type"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	Ts        int64          `json:"ts"`
}

// Connection represents a single WebSocket connection.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

// Hub manages all WebSocket connections. A connection bound to a session
// only receives notifications carrying that session_id; an unbound one
// receives everything.
type Hub struct {
	connections map[string]*Connection

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *Message
	done       chan struct{}

	sendBuffer int
	logger     *zap.Logger

	mu sync.RWMutex
}

// NewHub creates a new Hub. buffer bounds both the broadcast queue and
// each connection's send queue.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer < 1 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *Message, buffer),
		done:        make(chan struct{}),
		sendBuffer:  buffer,
		logger:      logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing
// every connection's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for id, conn := range h.connections {
			close(conn.Send)
			delete(h.connections, id)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("connection registered", zap.String("conn_id", conn.ID), zap.String("session_id", conn.SessionID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				close(conn.Send)
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("failed to encode notification", zap.String("event_type", msg.EventType), zap.Error(err))
				continue
			}
			h.mu.RLock()
			for _, conn := range h.connections {
				if conn.SessionID != "" && conn.SessionID != msg.SessionID {
					continue
				}
				select {
				case conn.Send <- data:
				default:
					// Slow client: drop this frame rather than stall the hub.
					metrics.RecordObserveDrop()
					h.logger.Debug("connection buffer full, dropping", zap.String("conn_id", conn.ID))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Notify queues a notification without blocking. It has the shape of an
// observe handler; a full queue drops the notification.
func (h *Hub) Notify(eventType string, payload map[string]any) error {
	msg := &Message{
		Type:      "notification",
		EventType: eventType,
		Payload:   payload,
		Ts:        time.Now().UnixMilli(),
	}
	if sid, ok := payload["session_id"].(string); ok {
		msg.SessionID = sid
	}
	select {
	case h.broadcast <- msg:
	default:
		metrics.RecordObserveDrop()
		h.logger.Warn("observe hub queue full, dropping notification", zap.String("event_type", eventType))
	}
	return nil
}

// NewConnection creates a new connection bound to sessionID, which may be
// empty.
func (h *Hub) NewConnection(ws *websocket.Conn, sessionID string) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Conn:      ws,
		Send:      make(chan []byte, h.sendBuffer),
	}
}

// Register registers a connection with the hub. It reports false when the
// hub has stopped.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
