package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Publisher is what the kiosk runtime uses to push events to device pages.
type Publisher interface {
	PublishToDevice(deviceID string, event Event)
}

// ActivityHandler receives activity reported by a page over its websocket.
type ActivityHandler interface {
	HandleActivity(deviceID, kind string)
}

// ConnectionObserver is notified as connections come and go.
type ConnectionObserver interface {
	ClientConnected()
	ClientDisconnected()
}

// Hub tracks every websocket connection, grouped by kiosk device.
// A device may have several connections, e.g. a reloaded tab that has not
// timed out yet.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	seq atomic.Int64

	activity ActivityHandler
	observer ConnectionObserver
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a hub. Either argument may be nil.
func NewHub(activity ActivityHandler, observer ConnectionObserver) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		activity:   activity,
		observer:   observer,
	}
}

// SetActivityHandler wires the handler after construction, for when the
// handler itself needs the hub.
func (h *Hub) SetActivityHandler(a ActivityHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activity = a
}

// Run processes registrations until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			close(h.done)
			h.Shutdown()
			return
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.deviceID]; !ok {
		h.clients[client.deviceID] = make(map[*Client]bool)
	}
	h.clients[client.deviceID][client] = true
	if h.observer != nil {
		h.observer.ClientConnected()
	}
	slog.Info("ws_event", "event", "client_connected", "device_id", client.deviceID,
		"connections", len(h.clients[client.deviceID]))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.deviceID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if h.observer != nil {
		h.observer.ClientDisconnected()
	}
	if len(clients) == 0 {
		delete(h.clients, client.deviceID)
	}
	slog.Info("ws_event", "event", "client_disconnected", "device_id", client.deviceID,
		"connections", len(clients))
}

// PublishToDevice queues an event on every connection of a device.
// Connections whose buffer is full are dropped.
func (h *Hub) PublishToDevice(deviceID string, event Event) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("ws_event", "event", "marshal_failed", "op", event.Op, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[deviceID] {
		select {
		case client.send <- data:
		default:
			go h.leave(client)
		}
	}
}

// Connections returns the number of open connections of a device.
func (h *Hub) Connections(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[deviceID])
}

// ConnectedDevices returns the ids of devices with at least one connection.
func (h *Hub) ConnectedDevices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			close(client.send)
			if h.observer != nil {
				h.observer.ClientDisconnected()
			}
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	slog.Info("ws_event", "event", "hub_shutdown")
}

// join and leave hand a client to Run; they give up once Run has returned.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) activityHandler() ActivityHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activity
}
