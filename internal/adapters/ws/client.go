package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to the connection.
	writeWait = 10 * time.Second

	// pongWait is how long a page may stay silent; pages send a heartbeat
	// every 30 seconds.
	pongWait = 90 * time.Second

	// maxMessageSize bounds inbound messages. Pages only send activity and
	// heartbeats.
	maxMessageSize = 1024

	// sendBufferSize is the per-connection outbound queue; a full queue drops
	// the connection.
	sendBufferSize = 64
)

// Client is one websocket connection of a kiosk page.
// ReadPump and WritePump run in separate goroutines because a connection
// supports one concurrent reader and one concurrent writer.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	deviceID string
	send     chan []byte
	mu       sync.Mutex // guards conn writes
}

// ReadPump reads page events until the connection fails, then unregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("ws_event", "event", "read_deadline_failed", "device_id", c.deviceID, "error", err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws_event", "event", "unexpected_close", "device_id", c.deviceID, "error", err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			slog.Warn("ws_event", "event", "invalid_message", "device_id", c.deviceID, "error", err)
			continue
		}
		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpActivity:
		c.handleActivity(event)

	default:
		slog.Warn("ws_event", "event", "unknown_op", "device_id", c.deviceID, "op", event.Op)
	}
}

// handleActivity forwards { op: "activity", d: { kind: "pointerdown" } } to
// the kiosk runtime. Any inbound activity also proves the page is alive.
func (c *Client) handleActivity(event Event) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	var data ActivityData
	if err := json.Unmarshal(raw, &data); err != nil || data.Kind == "" {
		return
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	if h := c.hub.activityHandler(); h != nil {
		h.HandleActivity(c.deviceID, data.Kind)
	}
}

// sendEvent queues one event for this connection only.
func (c *Client) sendEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("ws_event", "event", "send_buffer_full", "device_id", c.deviceID)
		go c.hub.leave(c)
	}
}

// WritePump writes queued events until the hub closes the send channel.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			c.writeMessage(websocket.CloseMessage, nil)
			return
		}
		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
