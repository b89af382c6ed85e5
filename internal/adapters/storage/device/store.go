// Package device persists the kiosk terminals that have contacted the server.
package device

import (
	"context"
	"time"
)

// Device is a browser that has been issued a kiosk cookie.
type Device struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Store defines the interface for kiosk device persistence.
type Store interface {
	// Touch records that a device was seen, creating it on first contact.
	// PRE: id is non-empty
	// POST: LastSeenAt is now; CreatedAt is set only on insert
	Touch(ctx context.Context, id, userAgent string, now time.Time) error

	// Rename sets the operator-facing label of a device.
	Rename(ctx context.Context, id, label string) error

	// List returns all devices, most recently seen first.
	List(ctx context.Context) ([]Device, error)
}

var _ Store = (*SQLiteStore)(nil)
