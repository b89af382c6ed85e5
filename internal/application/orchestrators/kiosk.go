package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"restart/internal/adapters/backend"
	kioskrt "restart/internal/adapters/kiosk"
	"restart/internal/domain/audit"
	"restart/internal/domain/dates"
	"restart/internal/domain/humanerror"
	"restart/internal/domain/kiosk"
)

// KioskTerminal is the runtime handle of one kiosk device.
// Do serialises access to the terminal; remote calls happen between Do calls.
type KioskTerminal interface {
	ID() string
	Do(fn func(t *kiosk.Terminal) error) error
	Record(ctx context.Context, e kioskrt.Event)
}

// --- Boot ---

// BootKioskInput carries input for loading the roster of a device.
type BootKioskInput struct {
	// Force reloads an already loaded roster.
	Force bool
}

// BootKioskDeps holds dependencies for BootKiosk.
type BootKioskDeps struct {
	Terminal KioskTerminal
	Backend  backend.Kiosk
}

// ExecuteBootKiosk loads the roster once per terminal, or again when forced.
// PRE: deps are non-nil
// POST: the roster is loaded, or empty with a roster-unavailable notification
// when the backend call failed
func ExecuteBootKiosk(ctx context.Context, input BootKioskInput, deps BootKioskDeps) error {
	if !input.Force {
		loaded := false
		deps.Terminal.Do(func(t *kiosk.Terminal) error {
			loaded = t.RosterLoaded()
			return nil
		})
		if loaded {
			return nil
		}
	}

	ids, err := deps.Backend.ListKioskIdentities(ctx)
	if err != nil {
		deps.Terminal.Do(func(t *kiosk.Terminal) error {
			t.LoadRoster(nil)
			t.Notify(kiosk.NotifyError, kiosk.MsgRosterUnavailable)
			return nil
		})
		deps.Terminal.Record(ctx, kioskrt.Event{
			Action:   audit.ActionRosterLoaded,
			Severity: audit.SeverityWarning,
			Detail:   err.Error(),
		})
		return fmt.Errorf("load kiosk roster: %w", err)
	}

	deps.Terminal.Do(func(t *kiosk.Terminal) error {
		t.LoadRoster(ids)
		return nil
	})
	deps.Terminal.Record(ctx, kioskrt.Event{
		Action: audit.ActionRosterLoaded,
		Detail: strconv.Itoa(len(ids)) + " identities",
	})
	return nil
}

// --- Select identity ---

// SelectIdentityInput carries input for opening a session.
type SelectIdentityInput struct {
	IdentityID string
}

// SelectIdentityDeps holds dependencies for SelectIdentity.
type SelectIdentityDeps struct {
	Terminal KioskTerminal
}

// ExecuteSelectIdentity opens a session for a roster identity. No remote call.
// PRE: the terminal shows the identity list
// POST: the terminal shows the keypad and the idle countdown runs
func ExecuteSelectIdentity(ctx context.Context, input SelectIdentityInput, deps SelectIdentityDeps) error {
	if input.IdentityID == "" {
		return kiosk.ErrNoIdentity
	}
	if err := deps.Terminal.Do(func(t *kiosk.Terminal) error {
		return t.Select(input.IdentityID)
	}); err != nil {
		return err
	}
	deps.Terminal.Record(ctx, kioskrt.Event{IdentityID: input.IdentityID, Action: audit.ActionSessionStart})
	return nil
}

// --- PIN ---

// VerifyPinDeps holds dependencies for VerifyPin and PressKey.
type VerifyPinDeps struct {
	Terminal KioskTerminal
	Backend  backend.Kiosk
	Now      func() time.Time
}

// VerifyPinResult reports the outcome of a verification.
type VerifyPinResult struct {
	Verified bool
}

// ExecutePressKey applies a keypad key; the ok key verifies the PIN.
// PRE: the terminal shows the keypad
func ExecutePressKey(ctx context.Context, key string, deps VerifyPinDeps) (VerifyPinResult, error) {
	if key == kiosk.KeyOK {
		return ExecuteVerifyPin(ctx, deps)
	}
	err := deps.Terminal.Do(func(t *kiosk.Terminal) error {
		return t.PressKey(key)
	})
	return VerifyPinResult{}, err
}

// ExecuteVerifyPin checks the buffered PIN remotely and, on success, prefills
// the form from recent preferences before showing it.
// PRE: the terminal shows the keypad
// POST: a rejected or unverifiable PIN keeps the keypad and identity with the
// invalid-PIN error; a short PIN fails locally with kiosk.ErrPinTooShort;
// a result for a session that ended meanwhile returns kiosk.ErrStaleResult
func ExecuteVerifyPin(ctx context.Context, deps VerifyPinDeps) (VerifyPinResult, error) {
	var attempt kiosk.PinAttempt
	if err := deps.Terminal.Do(func(t *kiosk.Terminal) error {
		a, err := t.BeginVerify()
		attempt = a
		return err
	}); err != nil {
		return VerifyPinResult{}, err
	}

	ok, err := deps.Backend.VerifyPin(ctx, attempt.IdentityID, attempt.Pin)
	if err != nil || !ok {
		detail := "pin rejected"
		if err != nil {
			detail = err.Error()
			slog.Warn("kiosk_event", "event", "verify_pin_failed", "device_id", deps.Terminal.ID(), "error", err)
		}
		if rerr := deps.Terminal.Do(func(t *kiosk.Terminal) error {
			return t.RejectPin(attempt)
		}); rerr != nil {
			return VerifyPinResult{}, rerr
		}
		deps.Terminal.Record(ctx, kioskrt.Event{
			IdentityID: attempt.IdentityID,
			Action:     audit.ActionPinFailed,
			Severity:   audit.SeverityWarning,
			Detail:     detail,
		})
		return VerifyPinResult{}, nil
	}

	var prefs *kiosk.RecentPreferences
	if p, err := deps.Backend.RecentPrefs(ctx, attempt.IdentityID); err != nil {
		slog.Warn("kiosk_event", "event", "recent_prefs_failed", "device_id", deps.Terminal.ID(), "error", err)
	} else {
		prefs = &p
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	today := dates.Today(now())
	if err := deps.Terminal.Do(func(t *kiosk.Terminal) error {
		return t.OpenForm(attempt, prefs, today)
	}); err != nil {
		return VerifyPinResult{}, err
	}
	return VerifyPinResult{Verified: true}, nil
}

// --- Submit ---

// SubmitEntryDeps holds dependencies for SubmitEntry.
type SubmitEntryDeps struct {
	Terminal KioskTerminal
	Backend  backend.Kiosk
}

// SubmitEntryResult reports the outcome of a submission.
type SubmitEntryResult struct {
	Accepted   bool
	MessageKey string
}

// ExecuteSubmitEntry validates the draft locally, sends it with the PIN
// captured at verification and applies the outcome.
// PRE: the terminal shows the form
// POST: local validation failures and kiosk.ErrSubmitInFlight are returned
// without a remote call; a backend rejection is translated into MessageKey
// and the draft is kept; results for an ended session return kiosk.ErrStaleResult
func ExecuteSubmitEntry(ctx context.Context, deps SubmitEntryDeps) (SubmitEntryResult, error) {
	var sub kiosk.Submission
	if err := deps.Terminal.Do(func(t *kiosk.Terminal) error {
		s, err := t.BeginSubmit()
		sub = s
		return err
	}); err != nil {
		return SubmitEntryResult{}, err
	}

	err := deps.Backend.AddKioskEntry(ctx, backend.KioskEntry{
		IdentityID: sub.IdentityID,
		Pin:        sub.Pin,
		Entry:      sub.Entry,
	})
	if err != nil {
		key := humanerror.Translate(err)
		if ferr := deps.Terminal.Do(func(t *kiosk.Terminal) error {
			return t.FailSubmit(sub, key)
		}); ferr != nil {
			return SubmitEntryResult{}, ferr
		}
		deps.Terminal.Record(ctx, kioskrt.Event{
			IdentityID: sub.IdentityID,
			Action:     audit.ActionEntryFailed,
			Severity:   audit.SeverityWarning,
			Detail:     err.Error(),
		})
		return SubmitEntryResult{MessageKey: key}, nil
	}

	if err := deps.Terminal.Do(func(t *kiosk.Terminal) error {
		return t.CompleteSubmit(sub)
	}); err != nil {
		return SubmitEntryResult{}, err
	}
	deps.Terminal.Record(ctx, kioskrt.Event{
		IdentityID: sub.IdentityID,
		Action:     audit.ActionEntrySubmitted,
		Detail:     fmt.Sprintf("%s %s-%s %s", sub.Entry.Day, sub.Entry.Start, sub.Entry.End, sub.Entry.Room),
	})
	return SubmitEntryResult{Accepted: true, MessageKey: kiosk.MsgEntrySubmitted}, nil
}

// --- Draft edits ---

// UpdateDraftInput carries the fields to change; nil fields are left alone.
// Edits apply in field order, so a new Start may move End before End is set.
type UpdateDraftInput struct {
	Day            *string
	DayDelta       *int
	Room           *string
	Start          *string
	End            *string
	Activity       *string
	RecentActivity *string
	Substitution   *bool
	Note           *string
}

// UpdateDraftDeps holds dependencies for UpdateDraft.
type UpdateDraftDeps struct {
	Terminal KioskTerminal
}

// ExecuteUpdateDraft applies a set of edits atomically.
// PRE: the terminal shows the form
// POST: on error the draft is unchanged
func ExecuteUpdateDraft(ctx context.Context, input UpdateDraftInput, deps UpdateDraftDeps) error {
	return deps.Terminal.Do(func(t *kiosk.Terminal) error {
		return t.UpdateDraft(func(d *kiosk.DraftEntry) error {
			if input.Day != nil {
				if err := d.SetDay(*input.Day); err != nil {
					return err
				}
			}
			if input.DayDelta != nil {
				if err := d.ShiftDay(*input.DayDelta); err != nil {
					return err
				}
			}
			if input.Room != nil {
				if err := d.SetRoom(*input.Room); err != nil {
					return err
				}
			}
			if input.Start != nil {
				if err := d.SetStart(*input.Start); err != nil {
					return err
				}
			}
			if input.End != nil {
				if err := d.SetEnd(*input.End); err != nil {
					return err
				}
			}
			if input.Activity != nil {
				d.Activity = *input.Activity
			}
			if input.RecentActivity != nil {
				d.Activity = *input.RecentActivity
			}
			if input.Substitution != nil {
				d.Substitution = *input.Substitution
			}
			if input.Note != nil {
				d.Note = *input.Note
			}
			return nil
		})
	})
}

// IsKioskConflict reports errors that mean the request does not fit the
// terminal's current state rather than being malformed.
func IsKioskConflict(err error) bool {
	return errors.Is(err, kiosk.ErrWrongView) ||
		errors.Is(err, kiosk.ErrStaleResult) ||
		errors.Is(err, kiosk.ErrSubmitInFlight)
}
