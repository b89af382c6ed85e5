package projections

import (
	"context"
	"time"

	auditstore "restart/internal/adapters/storage/audit"
	"restart/internal/adapters/storage/device"
	domainAudit "restart/internal/domain/audit"
	"restart/internal/domain/hours"
)

// HoursReader is the backend surface needed by the admin read models.
// Calls run with the caller's token attached to ctx.
type HoursReader interface {
	ListInstructors(ctx context.Context) ([]hours.Instructor, error)
	ListHours(ctx context.Context, f hours.ListFilter) ([]hours.Entry, error)
	ReportRange(ctx context.Context, start, end, userID string) ([]hours.ReportRow, error)
	ListLockedPeriods(ctx context.Context) ([]hours.LockedPeriod, error)
}

// AuditReader interface for audit log queries.
type AuditReader interface {
	List(ctx context.Context, filter auditstore.Filter, limit int) ([]domainAudit.Event, error)
}

// DeviceReader interface for kiosk device queries.
type DeviceReader interface {
	List(ctx context.Context) ([]device.Device, error)
}

// Clock returns the current time; nil means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
