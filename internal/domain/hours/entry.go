package hours

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"restart/internal/domain/dates"
	"restart/internal/domain/kiosk"
)

// MinPasswordLength is the shortest password the hosted auth service accepts.
const MinPasswordLength = 6

const (
	maxActivityLength = 120
	maxNoteLength     = 500
)

// Dashboard and provisioning errors
var (
	ErrNoInstructor     = errors.New("an instructor must be selected")
	ErrInstructorName   = errors.New("instructor name is required")
	ErrInstructorEmail  = errors.New("instructor email is not valid")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrActivityTooLong  = errors.New("activity cannot exceed 120 characters")
	ErrNoteTooLong      = errors.New("note cannot exceed 500 characters")
)

// NewEntry is a block of hours logged from the dashboard. Instructors log
// their own, which wait for approval; an administrator may log one for an
// instructor, which is stored approved.
type NewEntry struct {
	UserID       string `json:"user_id,omitempty"`
	Day          string `json:"day"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Room         string `json:"room"`
	Activity     string `json:"activity"`
	Substitution bool   `json:"substitution"`
	Note         string `json:"note"`
}

// Normalize trims every text field.
func (e NewEntry) Normalize() NewEntry {
	e.UserID = strings.TrimSpace(e.UserID)
	e.Day = strings.TrimSpace(e.Day)
	e.Start = strings.TrimSpace(e.Start)
	e.End = strings.TrimSpace(e.End)
	e.Room = strings.TrimSpace(e.Room)
	e.Activity = strings.TrimSpace(e.Activity)
	e.Note = strings.TrimSpace(e.Note)
	return e
}

// Validate applies the checks the kiosk form applies, on the dashboard.
// PRE: e was normalized
// POST: returns nil if the entry may be sent; UserID is not checked
func (e NewEntry) Validate() error {
	if _, err := dates.Parse(e.Day, time.UTC); err != nil {
		return err
	}
	if e.Activity == "" {
		return kiosk.ErrActivityRequired
	}
	if len([]rune(e.Activity)) > maxActivityLength {
		return ErrActivityTooLong
	}
	if !kiosk.IsGridTime(e.Start) || !kiosk.IsGridTime(e.End) {
		return kiosk.ErrNotGridTime
	}
	if e.End <= e.Start {
		return kiosk.ErrEndBeforeStart
	}
	if !kiosk.IsRoom(e.Room) {
		return kiosk.ErrUnknownRoom
	}
	if len([]rune(e.Note)) > maxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// NoteOrNil maps a blank note to nil, which the backend stores as NULL.
func (e NewEntry) NoteOrNil() *string {
	return ReasonOrNil(e.Note)
}

// Hours returns the entry duration in decimal hours.
func (e NewEntry) Hours() float64 {
	return dates.HoursBetween(e.Start, e.End)
}

// NewInstructor is an account provisioned by an administrator.
type NewInstructor struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// Pin is optional; when set it becomes the kiosk PIN.
	Pin string `json:"pin"`
}

// Normalize trims the name, email and PIN. The password is kept verbatim.
func (n NewInstructor) Normalize() NewInstructor {
	n.FullName = strings.TrimSpace(n.FullName)
	n.Email = strings.ToLower(strings.TrimSpace(n.Email))
	n.Pin = strings.TrimSpace(n.Pin)
	return n
}

// Validate checks the account fields and the optional PIN.
// PRE: n was normalized
func (n NewInstructor) Validate() error {
	if n.FullName == "" {
		return ErrInstructorName
	}
	if addr, err := mail.ParseAddress(n.Email); err != nil || addr.Address != n.Email {
		return ErrInstructorEmail
	}
	if err := ValidatePassword(n.Password); err != nil {
		return err
	}
	if n.Pin != "" {
		return kiosk.ValidatePinFormat(n.Pin)
	}
	return nil
}

// ValidatePassword checks a password an administrator sets for an instructor.
func ValidatePassword(pw string) error {
	if len([]rune(pw)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
