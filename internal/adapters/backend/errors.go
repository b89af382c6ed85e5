package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxRawMessage bounds how much of a non-JSON error body is kept.
const maxRawMessage = 200

// RemoteError is a non-2xx response from the backend.
type RemoteError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// Error includes details and hint so message-based translation can match them.
func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Details != "" {
		fmt.Fprintf(&b, " (%s)", e.Details)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " hint: %s", e.Hint)
	}
	return b.String()
}

// ErrorCode exposes the PostgREST or Postgres error code.
func (e *RemoteError) ErrorCode() string {
	return e.Code
}

// decodeRemoteError builds a RemoteError from a response body.
// POST: never returns nil; unparseable bodies become the Message
func decodeRemoteError(status int, body []byte) *RemoteError {
	e := &RemoteError{Status: status}
	var wire struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
		Hint    string `json:"hint"`
		Error   string `json:"error"`
		Desc    string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxRawMessage {
			msg = msg[:maxRawMessage]
		}
		e.Message = msg
		return e
	}
	e.Code = stringify(wire.Code)
	e.Message = wire.Message
	e.Details = stringify(wire.Details)
	e.Hint = wire.Hint
	if e.Message == "" {
		e.Message = wire.Desc
	}
	if e.Message == "" {
		e.Message = wire.Error
	}
	return e
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
