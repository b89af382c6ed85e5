// Package backend talks to the hosted PostgREST API that owns instructors,
// logged hours and locked periods.
package backend

import (
	"context"
	"errors"

	"restart/internal/domain/hours"
	"restart/internal/domain/kiosk"
)

// ErrNotFound is returned when a targeted row does not exist.
var ErrNotFound = errors.New("backend: not found")

// KioskEntry is the payload of a kiosk submission, authorized by the PIN.
type KioskEntry struct {
	IdentityID string
	Pin        string
	Entry      kiosk.DraftEntry
}

// Kiosk is the backend surface the unattended terminal may call.
type Kiosk interface {
	ListKioskIdentities(ctx context.Context) ([]kiosk.Identity, error)
	VerifyPin(ctx context.Context, identityID, pin string) (bool, error)
	RecentPrefs(ctx context.Context, identityID string) (kiosk.RecentPreferences, error)
	AddKioskEntry(ctx context.Context, e KioskEntry) error
}

// Dashboard is the backend surface of a signed-in instructor. Calls run with
// the access token carried by ctx.
type Dashboard interface {
	AddHour(ctx context.Context, e hours.NewEntry) error
	ListDayHours(ctx context.Context, userID, day string) ([]hours.Entry, error)
}

// Admin is the backend surface used by administrators. Calls run with the
// access token carried by ctx (see WithAccessToken).
type Admin interface {
	IsAdmin(ctx context.Context) (bool, error)
	ListInstructors(ctx context.Context) ([]hours.Instructor, error)
	ListHours(ctx context.Context, f hours.ListFilter) ([]hours.Entry, error)
	ApproveHour(ctx context.Context, id string) error
	RejectHour(ctx context.Context, id string, reason *string) error
	ApproveMany(ctx context.Context, ids []string) error
	RejectMany(ctx context.Context, ids []string, reason *string) error
	DeleteHour(ctx context.Context, id string) error
	ReportRange(ctx context.Context, start, end, userID string) ([]hours.ReportRow, error)
	CloseMonth(ctx context.Context, m hours.MonthClose) error
	UnlockPeriod(ctx context.Context, u hours.Unlock) error
	ListLockedPeriods(ctx context.Context) ([]hours.LockedPeriod, error)
	SetPinHash(ctx context.Context, identityID, hash string) error
	AddHourForUser(ctx context.Context, e hours.NewEntry) error
	CreateInstructor(ctx context.Context, n hours.NewInstructor) (string, error)
	DeleteInstructor(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id, password string) error
}

// Client is the full backend.
type Client interface {
	Kiosk
	Dashboard
	Admin
}

type tokenKey struct{}

// WithAccessToken attaches a caller's bearer token to ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessToken returns the bearer token attached to ctx, if any.
func AccessToken(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok && tok != ""
}
