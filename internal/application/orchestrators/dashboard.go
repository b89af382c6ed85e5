package orchestrators

import (
	"context"
	"strconv"
	"time"

	"restart/internal/adapters/backend"
	"restart/internal/domain/audit"
	"restart/internal/domain/hours"
)

// DashboardDeps holds dependencies for the signed-in instructor's operations.
// The backend calls run with the caller's token attached to ctx.
type DashboardDeps struct {
	Backend backend.Dashboard
	Audit   AdminAuditLog
	Now     func() time.Time
}

// AddHourInput carries an entry an instructor logs for themselves.
type AddHourInput struct {
	ActorID string
	Entry   hours.NewEntry
}

// ExecuteAddHour validates and logs the caller's own entry, which waits for
// approval. The backend decides whose entry it is from the token.
// PRE: ActorID is the verified caller
// POST: nothing reaches the backend when validation fails
func ExecuteAddHour(ctx context.Context, input AddHourInput, deps DashboardDeps) error {
	e := input.Entry.Normalize()
	e.UserID = ""
	if err := e.Validate(); err != nil {
		return err
	}
	if err := deps.Backend.AddHour(ctx, e); err != nil {
		return err
	}
	rec := AdminDeps{Audit: deps.Audit, Now: deps.Now}
	rec.record(ctx, hourAddedEvent(rec.now(), audit.CategoryDashboard, input.ActorID, e))
	return nil
}

// AddHourForUserInput carries an entry an administrator logs for an instructor.
type AddHourForUserInput struct {
	ActorID string
	Entry   hours.NewEntry
}

// ExecuteAddHourForUser logs an entry on an instructor's behalf. The backend
// stores it already approved.
// PRE: Entry.UserID names the instructor
func ExecuteAddHourForUser(ctx context.Context, input AddHourForUserInput, deps AdminDeps) error {
	e := input.Entry.Normalize()
	if e.UserID == "" {
		return hours.ErrNoInstructor
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if err := deps.Backend.AddHourForUser(ctx, e); err != nil {
		return err
	}
	deps.record(ctx, hourAddedEvent(deps.now(), audit.CategoryAdmin, input.ActorID, e).
		WithDetail("status", string(hours.StatusApproved)))
	return nil
}

func hourAddedEvent(at time.Time, cat audit.Category, actor string, e hours.NewEntry) audit.Event {
	owner := e.UserID
	if owner == "" {
		owner = actor
	}
	return audit.NewEvent(at, cat, audit.ActionHourAdded).
		WithActor(actor).
		WithResource("ore", owner).
		WithDescription(e.Day+" "+e.Start+"-"+e.End+" "+e.Room).
		WithDetail("activity", e.Activity).
		WithDetail("hours", strconv.FormatFloat(e.Hours(), 'f', 1, 64))
}
