package kiosk

import (
	"errors"
	"strings"
)

// Domain errors
var (
	ErrUnknownIdentity = errors.New("identity is not on the kiosk roster")
	ErrNoIdentity      = errors.New("no identity selected")
	ErrWrongView       = errors.New("operation not allowed in the current view")
	ErrPinTooShort     = errors.New("pin must have at least 4 digits")
	ErrPinRejected     = errors.New("pin rejected")
	ErrInvalidKey      = errors.New("invalid keypad key")
	ErrStaleResult     = errors.New("kiosk session changed while the request was in flight")
	ErrSubmitInFlight  = errors.New("a submission is already in flight")
	ErrPinFormat       = errors.New("pin must be 4 to 6 digits")
)

// RoleAdmin is never eligible for the kiosk roster.
const RoleAdmin = "admin"

// DefaultIdleSeconds is the countdown applied when a session is armed.
const DefaultIdleSeconds = 60

// View is the screen the kiosk is currently showing.
type View string

const (
	ViewList View = "list"
	ViewPin  View = "pin"
	ViewForm View = "form"
)

// Identity is a roster entry that may log hours on the kiosk.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	HasPin      bool   `json:"has_pin"`
	Role        string `json:"role"`
}

// Eligible reports whether the identity may appear on the kiosk roster.
// INVARIANT: Identity fields are not mutated
func (i Identity) Eligible() bool {
	return i.ID != "" && !strings.EqualFold(i.Role, RoleAdmin)
}

// Rooms is the fixed, ordered set of rooms a kiosk entry may reference.
var Rooms = []string{
	"SALA A",
	"SALA A+B",
	"SALA B",
	"SALA C",
	"SALA B+C",
	"SALA ATTREZZI",
}

// DefaultRoom is the first enumerated room.
func DefaultRoom() string {
	return Rooms[0]
}

// IsRoom reports whether name is one of the enumerated rooms.
func IsRoom(name string) bool {
	for _, r := range Rooms {
		if r == name {
			return true
		}
	}
	return false
}

// ActivityKind names an interaction that keeps an armed session alive.
type ActivityKind string

const (
	ActivityPointerDown ActivityKind = "pointerdown"
	ActivityTouchStart  ActivityKind = "touchstart"
	ActivityMouseMove   ActivityKind = "mousemove"
	ActivityKeyDown     ActivityKind = "keydown"
	ActivityClick       ActivityKind = "click"
	ActivityVisible     ActivityKind = "visible"
)

// ActivityKinds returns every kind that qualifies as user interaction.
func ActivityKinds() []ActivityKind {
	return []ActivityKind{
		ActivityPointerDown, ActivityTouchStart, ActivityMouseMove,
		ActivityKeyDown, ActivityClick, ActivityVisible,
	}
}

// Valid reports whether the activity kind qualifies as user interaction.
func (a ActivityKind) Valid() bool {
	for _, k := range ActivityKinds() {
		if a == k {
			return true
		}
	}
	return false
}

// SubmitState tracks the lifecycle of the current entry submission.
type SubmitState string

const (
	SubmitIdle       SubmitState = "idle"
	SubmitSubmitting SubmitState = "submitting"
	SubmitDone       SubmitState = "done"
)

// Message keys surfaced to the kiosk screen. Localized by the presentation layer.
const (
	MsgPinRequired       = "kiosk.pin_required"
	MsgPinInvalid        = "kiosk.pin_invalid"
	MsgActivityRequired  = "kiosk.activity_required"
	MsgEndBeforeStart    = "kiosk.end_before_start"
	MsgEntrySubmitted    = "kiosk.entry_submitted"
	MsgSessionExpired    = "kiosk.session_expired"
	MsgRosterUnavailable = "kiosk.roster_unavailable"
)

// NotificationKind distinguishes toast styles.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a transient toast queued for the kiosk screen.
type Notification struct {
	Kind NotificationKind `json:"kind"`
	Key  string           `json:"key"`
}
