package kiosk

import (
	"errors"
	"strings"

	"restart/internal/domain/dates"
)

// Draft defaults applied on open and after every successful submission.
const (
	DefaultStart = "10:00"
	DefaultEnd   = "11:00"
)

// Draft validation errors
var (
	ErrActivityRequired = errors.New("activity is required")
	ErrEndBeforeStart   = errors.New("end time must be after start time")
	ErrNotGridTime      = errors.New("time must be on the half-hour grid")
	ErrEndNotOffered    = errors.New("end time is not offered for the chosen start")
	ErrUnknownRoom      = errors.New("room is not one of the enumerated rooms")
)

// RecentPreferences seeds a draft for a verified identity.
type RecentPreferences struct {
	LastRoom         *string  `json:"last_room"`
	RecentActivities []string `json:"recent_activities"`
}

// DraftEntry is the in-progress, unsaved time entry.
type DraftEntry struct {
	Day          string `json:"day"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Room         string `json:"room"`
	Activity     string `json:"activity"`
	Substitution bool   `json:"substitution"`
	Note         string `json:"note"`
}

// NewDraft builds a draft with the hard-coded defaults for day.
// PRE: day is YYYY-MM-DD
// POST: room is the first enumerated room, slot is 10:00-11:00
func NewDraft(day string) DraftEntry {
	return DraftEntry{
		Day:   day,
		Start: DefaultStart,
		End:   DefaultEnd,
		Room:  DefaultRoom(),
	}
}

// ApplyPreferences seeds the room from recent preferences when it is recognized.
// A nil prefs leaves the defaults in place.
func (d *DraftEntry) ApplyPreferences(prefs *RecentPreferences) {
	if prefs == nil || prefs.LastRoom == nil {
		return
	}
	if IsRoom(*prefs.LastRoom) {
		d.Room = *prefs.LastRoom
	}
}

// SoftReset restores the slot and clears the free-text fields.
// INVARIANT: Day and Room are kept for consecutive entries
func (d *DraftEntry) SoftReset() {
	d.Start = DefaultStart
	d.End = DefaultEnd
	d.Activity = ""
	d.Substitution = false
	d.Note = ""
}

// SetDay sets the entry day.
func (d *DraftEntry) SetDay(day string) error {
	if _, err := dates.Parse(day, nil); err != nil {
		return err
	}
	d.Day = day
	return nil
}

// ShiftDay moves the entry day by delta days.
func (d *DraftEntry) ShiftDay(delta int) error {
	next, err := dates.AddDays(d.Day, delta)
	if err != nil {
		return err
	}
	d.Day = next
	return nil
}

// SetRoom selects a room from the enumerated set.
func (d *DraftEntry) SetRoom(room string) error {
	if !IsRoom(room) {
		return ErrUnknownRoom
	}
	d.Room = room
	return nil
}

// SetStart sets the start time and keeps the end strictly after it.
// POST: End is moved to the first later slot when it no longer follows Start,
// or cleared when Start is the last slot of the day
func (d *DraftEntry) SetStart(start string) error {
	if !IsGridTime(start) {
		return ErrNotGridTime
	}
	d.Start = start
	if d.End <= start {
		d.End = NextAfter(start)
	}
	return nil
}

// SetEnd sets the end time from the options offered for the current start.
func (d *DraftEntry) SetEnd(end string) error {
	if !IsGridTime(end) {
		return ErrNotGridTime
	}
	for _, o := range EndOptions(d.Start) {
		if o == end {
			d.End = end
			return nil
		}
	}
	return ErrEndNotOffered
}

// Validate runs the local checks performed before any remote call.
// PRE: none
// POST: returns nil if the draft may be submitted
func (d *DraftEntry) Validate() error {
	if strings.TrimSpace(d.Activity) == "" {
		return ErrActivityRequired
	}
	// HH:MM labels are zero-padded so string order is time order.
	if d.End <= d.Start {
		return ErrEndBeforeStart
	}
	return nil
}

// NoteOrNil returns the trimmed note, or nil when it is blank.
func (d DraftEntry) NoteOrNil() *string {
	n := strings.TrimSpace(d.Note)
	if n == "" {
		return nil
	}
	return &n
}

// validationKey maps a draft validation error to its screen message key.
func validationKey(err error) string {
	switch {
	case errors.Is(err, ErrActivityRequired):
		return MsgActivityRequired
	case errors.Is(err, ErrEndBeforeStart):
		return MsgEndBeforeStart
	}
	return ""
}
