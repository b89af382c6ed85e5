package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"restart/internal/domain/audit"
	"restart/internal/domain/hours"
)

// ErrDeleteSelf is returned when an administrator tries to delete their own account.
var ErrDeleteSelf = errors.New("administrators cannot delete their own account")

// --- Create ---

// CreateInstructorInput carries a new instructor account.
type CreateInstructorInput struct {
	ActorID    string
	Instructor hours.NewInstructor
}

// CreateInstructorResult reports the new account.
type CreateInstructorResult struct {
	ID string
	// PinErr is set when the account exists but its optional PIN was not stored.
	PinErr error
}

// ExecuteCreateInstructor provisions a confirmed account with the instructor
// role and, when given, its kiosk PIN.
// PRE: none
// POST: a PIN failure does not undo the account; it is reported through PinErr
func ExecuteCreateInstructor(ctx context.Context, input CreateInstructorInput, deps AdminDeps) (CreateInstructorResult, error) {
	n := input.Instructor.Normalize()
	if err := n.Validate(); err != nil {
		return CreateInstructorResult{}, err
	}
	id, err := deps.Backend.CreateInstructor(ctx, n)
	if err != nil {
		if id != "" {
			slog.Error("admin_event", "event", "instructor_incomplete", "user_id", id, "error", err)
		}
		return CreateInstructorResult{ID: id}, err
	}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, audit.ActionInstructorCreated).
		WithActor(input.ActorID).
		WithResource("profile", id).
		WithDescription(n.FullName).
		WithDetail("email", n.Email))

	res := CreateInstructorResult{ID: id}
	if n.Pin != "" {
		res.PinErr = ExecuteSetPin(ctx, SetPinInput{ActorID: input.ActorID, IdentityID: id, Pin: n.Pin}, deps)
		if res.PinErr != nil {
			slog.Warn("admin_event", "event", "instructor_pin_failed", "user_id", id, "error", res.PinErr)
		}
	}
	return res, nil
}

// --- Delete ---

// DeleteInstructorInput carries the account to remove.
type DeleteInstructorInput struct {
	ActorID string
	ID      string
}

// ExecuteDeleteInstructor removes an instructor with every entry they logged.
// PRE: ID is non-empty and is not the caller
func ExecuteDeleteInstructor(ctx context.Context, input DeleteInstructorInput, deps AdminDeps) error {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return hours.ErrEmptyID
	}
	if id == input.ActorID {
		return ErrDeleteSelf
	}
	if err := deps.Backend.DeleteInstructor(ctx, id); err != nil {
		return err
	}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, audit.ActionInstructorDeleted).
		WithActor(input.ActorID).
		WithSeverity(audit.SeverityCritical).
		WithResource("profile", id))
	return nil
}

// --- Password ---

// SetPasswordInput carries a new password for an instructor's dashboard login.
type SetPasswordInput struct {
	ActorID  string
	ID       string
	Password string
}

// ExecuteSetPassword replaces an instructor's password.
// POST: the password itself is never recorded
func ExecuteSetPassword(ctx context.Context, input SetPasswordInput, deps AdminDeps) error {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return hours.ErrEmptyID
	}
	if err := hours.ValidatePassword(input.Password); err != nil {
		return err
	}
	if err := deps.Backend.SetPassword(ctx, id, input.Password); err != nil {
		return err
	}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, audit.ActionSetPassword).
		WithActor(input.ActorID).
		WithSeverity(audit.SeverityWarning).
		WithResource("profile", id))
	return nil
}
