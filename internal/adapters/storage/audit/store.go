package audit

import (
	"context"
	"time"

	domain "restart/internal/domain/audit"
)

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	// PRE: event has an id
	// POST: Event is persisted
	Save(ctx context.Context, event domain.Event) error

	// List returns audit events with optional filtering.
	// PRE: limit > 0
	// POST: Returns events ordered by timestamp desc
	List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error)

	// GetByID retrieves a specific audit event.
	GetByID(ctx context.Context, id string) (domain.Event, error)

	// DeleteBefore removes events older than cutoff and reports how many went.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Filter defines query parameters for listing audit events.
type Filter struct {
	Category *domain.Category
	Action   *domain.Action
	ActorID  *string
	DeviceID *string
	Severity *domain.Severity
	From     *time.Time
	To       *time.Time
}

var _ Store = (*SQLiteStore)(nil)
