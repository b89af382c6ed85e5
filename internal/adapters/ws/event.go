// Package ws carries kiosk state between the server and the browser pages
// over websocket connections, one set of connections per kiosk device.
//
// Flow: a kiosk action changes a terminal, the runtime publishes a state
// event to the device, the hub queues it on every connection of that device
// and each connection's WritePump writes it out.
package ws

// Event is one message on a kiosk websocket.
//
// Seq increases for every outbound event so a page can detect gaps.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Client -> server operations
const (
	OpHeartbeat = "heartbeat"
	OpActivity  = "activity"
)

// Server -> client operations
const (
	OpReady        = "ready"
	OpHeartbeatAck = "heartbeat_ack"
	OpState        = "state"
	OpIdleTick     = "idle_tick"
	OpSessionReset = "session_reset"
)

// ActivityData is the payload of an activity event.
type ActivityData struct {
	Kind string `json:"kind"`
}

// IdleTickData is the payload of an idle_tick event.
type IdleTickData struct {
	Remaining int `json:"remaining"`
	Timeout   int `json:"timeout"`
}

// SessionResetData is the payload of a session_reset event.
type SessionResetData struct {
	Reason string `json:"reason"`
}
