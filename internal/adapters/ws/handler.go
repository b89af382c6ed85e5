package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler upgrades kiosk page requests to websocket connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. checkOrigin may be nil to accept same-origin
// requests only, which is the gorilla default.
func NewHandler(hub *Hub, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeDevice upgrades the request and attaches the connection to deviceID.
// It blocks until the connection closes.
// PRE: deviceID was resolved from the kiosk device cookie
func (h *Handler) ServeDevice(w http.ResponseWriter, r *http.Request, deviceID string, ready any) {
	if deviceID == "" {
		http.Error(w, "missing kiosk device", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws_event", "event", "upgrade_failed", "device_id", deviceID, "error", err)
		return
	}

	client := &Client{
		hub:      h.hub,
		conn:     conn,
		deviceID: deviceID,
		send:     make(chan []byte, sendBufferSize),
	}
	if !h.hub.join(client) {
		conn.Close()
		return
	}
	client.sendEvent(Event{Op: OpReady, Data: ready})

	go client.WritePump()
	client.ReadPump()
}

// Connections returns the number of open connections of deviceID.
func (h *Handler) Connections(deviceID string) int {
	return h.hub.Connections(deviceID)
}
