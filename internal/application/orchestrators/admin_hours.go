package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"restart/internal/adapters/backend"
	"restart/internal/domain/audit"
	"restart/internal/domain/hours"
)

// AdminAuditLog is the audit store interface needed by admin orchestrators.
type AdminAuditLog interface {
	Save(ctx context.Context, event audit.Event) error
}

// AdminDeps holds dependencies shared by the admin orchestrators.
// The backend calls run with the caller's token attached to ctx.
type AdminDeps struct {
	Backend backend.Admin
	Audit   AdminAuditLog
	Now     func() time.Time
}

func (d AdminDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// record appends an admin event; failures are logged, never returned.
func (d AdminDeps) record(ctx context.Context, ev audit.Event) {
	slog.Info("admin_event", "event", string(ev.Action), "actor_id", ev.ActorID,
		"resource_id", ev.ResourceID, "detail", ev.Description)
	if d.Audit == nil {
		return
	}
	if err := d.Audit.Save(ctx, ev); err != nil {
		slog.Error("internal_error", "op", "audit_save", "action", string(ev.Action), "error", err)
	}
}

// --- Single decision ---

// DecideHourInput carries input for approving or rejecting one entry.
type DecideHourInput struct {
	ActorID string
	ID      string
	Approve bool
	Reason  string
}

// ExecuteDecideHour approves or rejects one entry.
// PRE: ID is non-empty; Reason is ignored when approving
// POST: a blank rejection reason is sent as null
func ExecuteDecideHour(ctx context.Context, input DecideHourInput, deps AdminDeps) error {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return hours.ErrEmptyID
	}
	action := audit.ActionApprove
	if input.Approve {
		if err := deps.Backend.ApproveHour(ctx, id); err != nil {
			return err
		}
	} else {
		reason := hours.ReasonOrNil(input.Reason)
		if reason != nil && len(*reason) > hours.MaxReasonLength {
			return hours.ErrReasonTooLong
		}
		if err := deps.Backend.RejectHour(ctx, id, reason); err != nil {
			return err
		}
		action = audit.ActionReject
	}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, action).
		WithActor(input.ActorID).
		WithResource("ore", id).
		WithDescription(strings.TrimSpace(input.Reason)))
	return nil
}

// --- Bulk decision ---

// BulkDecideInput carries input for approving or rejecting several entries.
type BulkDecideInput struct {
	ActorID  string
	Decision hours.BulkDecision
	Approve  bool
}

// ExecuteBulkDecide applies one decision to every selected entry in a single
// backend call and returns how many entries were sent.
// PRE: at least one non-blank id
// POST: ids are deduplicated; no call is made when none remain
func ExecuteBulkDecide(ctx context.Context, input BulkDecideInput, deps AdminDeps) (int, error) {
	dec := input.Decision.Normalize()
	if err := dec.Validate(); err != nil {
		return 0, err
	}
	action := audit.ActionApprove
	if input.Approve {
		if err := deps.Backend.ApproveMany(ctx, dec.IDs); err != nil {
			return 0, err
		}
	} else {
		if err := deps.Backend.RejectMany(ctx, dec.IDs, hours.ReasonOrNil(dec.Reason)); err != nil {
			return 0, err
		}
		action = audit.ActionReject
	}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, action).
		WithActor(input.ActorID).
		WithResource("ore", strings.Join(dec.IDs, ",")).
		WithDescription(strings.TrimSpace(fmt.Sprintf("%d entries %s", len(dec.IDs), dec.Reason))).
		WithDetail("count", strconv.Itoa(len(dec.IDs))))
	return len(dec.IDs), nil
}

// --- Delete ---

// DeleteHourInput carries input for deleting one entry.
type DeleteHourInput struct {
	ActorID string
	ID      string
}

// ExecuteDeleteHour removes one entry.
// PRE: ID is non-empty
func ExecuteDeleteHour(ctx context.Context, input DeleteHourInput, deps AdminDeps) error {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return hours.ErrEmptyID
	}
	if err := deps.Backend.DeleteHour(ctx, id); err != nil {
		return err
	}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, audit.ActionDelete).
		WithActor(input.ActorID).
		WithSeverity(audit.SeverityWarning).
		WithResource("ore", id))
	return nil
}
