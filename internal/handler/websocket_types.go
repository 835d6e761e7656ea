// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"v850-service/internal/model"
)

// Client kinds.
const (
	ClientEvents  = "events"
	ClientSession = "session"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	Type        string          `json:"type"` // events, session
	SessionID   *string         `json:"session_id,omitempty"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mutex sync.Mutex
	// Operations limits an events client to these operations; empty means all.
	Operations map[model.OperationType]bool `json:"-"`
}

// Subscribe adds op to the client's operation filter.
func (c *Client) Subscribe(op model.OperationType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.Operations == nil {
		c.Operations = make(map[model.OperationType]bool)
	}
	c.Operations[op] = true
}

// Unsubscribe drops op from the client's operation filter.
func (c *Client) Unsubscribe(op model.OperationType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.Operations, op)
}

// Wants reports whether event should be sent to the client.
func (c *Client) Wants(event *model.SessionEvent) bool {
	if c.SessionID != nil {
		return *c.SessionID == event.SessionID.String()
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.Operations) == 0 || c.Operations[event.Operation]
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if _, ok := cm.clients[client.ID]; ok {
		delete(cm.clients, client.ID)
		close(client.Send)
	}
}

// Each calls fn for every registered client while holding the read lock,
// so fn may send on client.Send without racing Unregister.
func (cm *ConnectionManager) Each(fn func(*Client)) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	for _, client := range cm.clients {
		fn(client)
	}
}

// Send queues message for client if it is still registered. It reports
// false only when the client's queue is full.
func (cm *ConnectionManager) Send(client *Client, message []byte) bool {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	if _, ok := cm.clients[client.ID]; !ok {
		return true
	}
	return trySend(client, message)
}

func trySend(client *Client, message []byte) bool {
	select {
	case client.Send <- message:
		return true
	default:
		return false
	}
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		ByType:           make(map[string]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		stats.ByType[client.Type]++
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ByType           map[string]int `json:"by_type"`
	Clients          []*Client      `json:"clients"`
}
