package projections

import (
	"context"
	"time"

	auditstore "restart/internal/adapters/storage/audit"
	"restart/internal/adapters/storage/device"
	domainAudit "restart/internal/domain/audit"
)

// Audit log page size bounds.
const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 500
)

// GetAuditLogQuery carries input for the audit log view.
type GetAuditLogQuery struct {
	Category string
	Action   string
	DeviceID string
	Since    time.Duration
	Limit    int
}

// GetAuditLogDeps holds dependencies for the audit log projection.
type GetAuditLogDeps struct {
	Store   AuditReader
	Devices DeviceReader
	Now     Clock
}

// AuditLogResult is a page of audit events plus the known kiosk devices.
type AuditLogResult struct {
	Events  []domainAudit.Event `json:"events"`
	Devices []device.Device     `json:"devices"`
}

// QueryGetAuditLog lists recent audit events, newest first.
// PRE: Category and Action are empty or known names
// POST: Limit is clamped to 1..MaxAuditLimit
func QueryGetAuditLog(ctx context.Context, query GetAuditLogQuery, deps GetAuditLogDeps) (AuditLogResult, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}

	var f auditstore.Filter
	if query.Category != "" {
		c, err := domainAudit.ParseCategory(query.Category)
		if err != nil {
			return AuditLogResult{}, err
		}
		f.Category = &c
	}
	if query.Action != "" {
		a, err := domainAudit.ParseAction(query.Action)
		if err != nil {
			return AuditLogResult{}, err
		}
		f.Action = &a
	}
	if query.DeviceID != "" {
		d := query.DeviceID
		f.DeviceID = &d
	}
	if query.Since > 0 {
		from := deps.Now.now().Add(-query.Since)
		f.From = &from
	}

	events, err := deps.Store.List(ctx, f, limit)
	if err != nil {
		return AuditLogResult{}, err
	}
	res := AuditLogResult{Events: events, Devices: []device.Device{}}
	if res.Events == nil {
		res.Events = []domainAudit.Event{}
	}
	if deps.Devices != nil {
		devices, err := deps.Devices.List(ctx)
		if err != nil {
			return AuditLogResult{}, err
		}
		if devices != nil {
			res.Devices = devices
		}
	}
	return res, nil
}
