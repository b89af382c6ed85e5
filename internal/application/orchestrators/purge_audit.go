package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"restart/internal/domain/audit"
)

// AuditPurger deletes audit events older than a cutoff and records the purge.
type AuditPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Save(ctx context.Context, event audit.Event) error
}

// PurgeAuditDeps provides the dependencies for trimming the audit log.
type PurgeAuditDeps struct {
	Store AuditPurger
	Now   func() time.Time
}

// ExecutePurgeAudit removes events older than retention.
// PRE: retention > 0
// POST: returns the number of removed events; a non-zero purge is itself audited
func ExecutePurgeAudit(ctx context.Context, retention time.Duration, deps PurgeAuditDeps) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	at := now()
	n, err := deps.Store.DeleteBefore(ctx, at.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	ev := audit.NewEvent(at, audit.CategorySystem, audit.ActionAuditPurged).
		WithDescription(fmt.Sprintf("removed %d events older than %s", n, retention)).
		WithDetail("count", strconv.FormatInt(n, 10)).
		WithDetail("cutoff", at.Add(-retention).UTC().Format(time.RFC3339))
	if err := deps.Store.Save(ctx, ev); err != nil {
		slog.Error("internal_error", "op", "audit_save", "action", string(ev.Action), "error", err)
	}
	slog.Info("audit_purged", "count", n, "retention", retention.String())
	return n, nil
}

// StartAuditRetentionWorker purges the audit log once at start and then every interval.
// PRE: stopCh is provided to signal shutdown
// POST: worker runs until stopCh is closed; a zero retention starts nothing
func StartAuditRetentionWorker(deps PurgeAuditDeps, retention, interval time.Duration, stopCh <-chan struct{}) {
	if retention <= 0 {
		return
	}
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := ExecutePurgeAudit(ctx, retention, deps); err != nil {
			slog.Error("audit_retention_failed", "error", err)
		}
	}
	go func() {
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-stopCh:
				slog.Info("audit_retention_worker_stopped")
				return
			}
		}
	}()
}
