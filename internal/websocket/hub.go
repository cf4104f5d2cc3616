package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/sirupsen/logrus"
)

// Options tunes client connections.
type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBufferSize int
	// AllowedOrigins restricts browser upgrades; empty allows any origin.
	AllowedOrigins []string
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 4096,
		SendBufferSize: 256,
	}
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for every client
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Last payload per message type, replayed to new clients
	snapshots map[string][]byte

	// Closed once Run returns
	done chan struct{}

	logger  *logrus.Logger
	metrics metrics.MetricsCollector
	options Options

	mu    sync.RWMutex
	stats *HubStats
}

// HubStats contains hub statistics
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	MessagesDropped  int64     `json:"messages_dropped"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logrus.Logger, collector metrics.MetricsCollector, options Options) *Hub {
	if collector == nil {
		collector = metrics.Noop{}
	}
	defaults := DefaultOptions()
	if options.PingInterval <= 0 {
		options.PingInterval = defaults.PingInterval
	}
	if options.PongTimeout <= options.PingInterval {
		options.PongTimeout = options.PingInterval * 2
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaults.WriteTimeout
	}
	if options.MaxMessageSize <= 0 {
		options.MaxMessageSize = defaults.MaxMessageSize
	}
	if options.SendBufferSize <= 0 {
		options.SendBufferSize = defaults.SendBufferSize
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		snapshots:  make(map[string][]byte),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    collector,
		options:    options,
		stats: &HubStats{
			LastActivity: time.Now(),
		},
	}
}

// Run handles client registration and broadcasting until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	ticker := time.NewTicker(h.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
	connected := len(h.clients)
	replay := make([][]byte, 0, len(h.snapshots))
	for _, snap := range []string{MessageTypeLiveData, MessageTypeAlarms} {
		if data, ok := h.snapshots[snap]; ok {
			replay = append(replay, data)
		}
	}
	h.mu.Unlock()

	h.metrics.RecordWebSocketConnection("connect")
	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"remote_addr":       client.RemoteAddr,
		"connected_clients": connected,
	}).Info("WebSocket client connected")

	welcome := Message{
		Type: MessageTypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.ID,
		},
	}
	client.enqueue(welcome.ToJSON())
	for _, data := range replay {
		client.enqueue(data)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.close()
		h.stats.ConnectedClients = len(h.clients)
		h.stats.LastActivity = time.Now()
	}
	connected := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	h.metrics.RecordWebSocketConnection("disconnect")
	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"connected_clients": connected,
	}).Info("WebSocket client disconnected")
}

func (h *Hub) broadcastMessage(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		if !client.enqueue(message) {
			slow = append(slow, client)
			continue
		}
		h.metrics.RecordWebSocketConnection("message_sent")
	}

	h.mu.Lock()
	h.stats.MessagesSent++
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	// Client's send channel is full, drop it
	for _, client := range slow {
		h.unregisterClient(client)
	}

	h.logger.WithFields(logrus.Fields{
		"message_size": len(message),
		"clients_sent": len(clients) - len(slow),
	}).Debug("Message broadcasted to WebSocket clients")
}

func (h *Hub) sendHeartbeat() {
	heartbeat := Message{
		Type: MessageTypeHeartbeat,
		Data: map[string]interface{}{
			"clients": h.GetClientCount(),
		},
	}
	h.BroadcastToAll(heartbeat)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
		h.metrics.RecordWebSocketConnection("disconnect")
	}
	h.stats.ConnectedClients = 0
	close(h.done)
}

// BroadcastToAll queues message for every connected client. liveData and
// alarms payloads are also kept for clients that connect later.
func (h *Hub) BroadcastToAll(message Message) {
	data := message.ToJSON()

	if message.Type == MessageTypeLiveData || message.Type == MessageTypeAlarms {
		h.mu.Lock()
		h.snapshots[message.Type] = data
		h.mu.Unlock()
	}

	select {
	case h.broadcast <- data:
	default:
		h.mu.Lock()
		h.stats.MessagesDropped++
		h.mu.Unlock()
		h.logger.WithField("message_type", message.Type).Warn("Broadcast channel is full, message dropped")
	}
}

// Snapshot returns the last payload broadcast for messageType.
func (h *Hub) Snapshot(messageType string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, ok := h.snapshots[messageType]
	return data, ok
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() *HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	statsCopy := *h.stats
	statsCopy.ConnectedClients = len(h.clients)
	return &statsCopy
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) recordReceived() {
	h.mu.Lock()
	h.stats.MessagesReceived++
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()
	h.metrics.RecordWebSocketConnection("message_received")
}
