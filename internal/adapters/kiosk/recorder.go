package kiosk

import (
	"context"
	"log/slog"
	"time"

	auditstore "restart/internal/adapters/storage/audit"
	"restart/internal/adapters/storage/device"
	"restart/internal/domain/audit"
)

// Event is a device-level occurrence worth keeping.
type Event struct {
	DeviceID   string
	IdentityID string
	Action     audit.Action
	Severity   audit.Severity
	Detail     string
}

// EventRecorder receives device events.
type EventRecorder interface {
	Record(ctx context.Context, e Event)
}

// EventCounter counts events by name. *metrics.Metrics satisfies it.
type EventCounter interface {
	KioskEvent(event string)
}

// Recorder logs device events, counts them and appends them to the audit log.
// Any of the sinks may be nil.
type Recorder struct {
	audit   auditstore.Store
	devices device.Store
	counter EventCounter
	now     func() time.Time
}

// NewRecorder creates a recorder writing to the given sinks.
func NewRecorder(store auditstore.Store, devices device.Store, counter EventCounter) *Recorder {
	return &Recorder{audit: store, devices: devices, counter: counter, now: time.Now}
}

// Record never fails; storage errors are logged.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.Severity == "" {
		e.Severity = audit.SeverityInfo
	}
	slog.Info("kiosk_event", "event", string(e.Action), "device_id", e.DeviceID,
		"identity_id", e.IdentityID, "detail", e.Detail)
	if r.counter != nil {
		r.counter.KioskEvent(string(e.Action))
	}
	now := r.now()
	if r.audit != nil {
		ev := audit.NewEvent(now, audit.CategoryKiosk, e.Action).
			WithDevice(e.DeviceID).
			WithActor(e.IdentityID).
			WithSeverity(e.Severity).
			WithDescription(e.Detail)
		if err := r.audit.Save(ctx, ev); err != nil {
			slog.Error("internal_error", "op", "audit_save", "action", string(e.Action), "error", err)
		}
	}
	if r.devices != nil && e.DeviceID != "" {
		if err := r.devices.Touch(ctx, e.DeviceID, "", now); err != nil {
			slog.Error("internal_error", "op", "device_touch", "device_id", e.DeviceID, "error", err)
		}
	}
}
