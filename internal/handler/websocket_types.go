// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scanner-service/internal/model"
)

// Client represents a WebSocket log stream client
type Client struct {
	ID         string          `json:"id"`
	Connection *websocket.Conn `json:"-"`
	Send       chan []byte     `json:"-"`
	// Port and SessionID narrow the stream when set
	Port        string    `json:"port,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	UserAgent   string    `json:"user_agent"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`

	mu            sync.RWMutex
	subscriptions map[model.EventType]bool
}

// Subscribe adds event types to the client's stream
func (c *Client) Subscribe(types ...model.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[model.EventType]bool)
	}
	for _, t := range types {
		c.subscriptions[t] = true
	}
}

// Unsubscribe removes event types from the client's stream
func (c *Client) Unsubscribe(types ...model.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range types {
		delete(c.subscriptions, t)
	}
}

// Wants reports whether event belongs on this client's stream. A client
// without subscriptions receives every event type.
func (c *Client) Wants(event *model.SessionEvent) bool {
	if c.Port != "" && c.Port != event.Port {
		return false
	}
	if c.SessionID != "" && c.SessionID != event.SessionID.String() {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[event.EventType]
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	manager := &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}

	go manager.run()
	return manager
}

// run starts the connection manager
func (cm *ConnectionManager) run() {
	for {
		select {
		case client := <-cm.register:
			cm.mutex.Lock()
			cm.clients[client.ID] = client
			cm.mutex.Unlock()

		case client := <-cm.unregister:
			cm.mutex.Lock()
			if _, ok := cm.clients[client.ID]; ok {
				delete(cm.clients, client.ID)
				close(client.Send)
			}
			cm.mutex.Unlock()

		case <-cm.done:
			cm.mutex.Lock()
			for id, client := range cm.clients {
				delete(cm.clients, id)
				close(client.Send)
			}
			cm.mutex.Unlock()
			return
		}
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	select {
	case cm.register <- client:
	case <-cm.done:
		close(client.Send)
	}
}

// Unregister unregisters a client
func (cm *ConnectionManager) Unregister(client *Client) {
	select {
	case cm.unregister <- client:
	case <-cm.done:
	}
}

// Close disconnects every client and stops the manager
func (cm *ConnectionManager) Close() {
	close(cm.done)
}

// Broadcast queues payload on every client that wants event and returns
// the ids of clients whose send buffer was full. Sends hold the read lock
// so a client's channel cannot be closed mid-send.
func (cm *ConnectionManager) Broadcast(event *model.SessionEvent, payload []byte) (dropped []string) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	for _, client := range cm.clients {
		if !client.Wants(event) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			dropped = append(dropped, client.ID)
		}
	}
	return dropped
}

// Deliver queues payload on one client unless it has been unregistered
func (cm *ConnectionManager) Deliver(client *Client, payload []byte) bool {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	if _, ok := cm.clients[client.ID]; !ok {
		return false
	}
	select {
	case client.Send <- payload:
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
		ByPort:           make(map[string]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		port := client.Port
		if port == "" {
			port = "*"
		}
		stats.ByPort[port]++
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ByPort           map[string]int `json:"by_port"`
	Clients          []*Client      `json:"clients"`
}
