// Package hours holds the administrative view of logged hours: entries awaiting
// approval, per-instructor report rows and locked accounting periods.
package hours

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"restart/internal/domain/dates"
)

// Status values of a logged entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// UnnamedInstructor labels report rows whose instructor has no name.
const UnnamedInstructor = "(Senza nome)"

// MaxReasonLength bounds a rejection reason.
const MaxReasonLength = 500

// Domain errors
var (
	ErrNoIDs          = errors.New("at least one entry must be selected")
	ErrEmptyID        = errors.New("entry id cannot be empty")
	ErrReasonTooLong  = errors.New("rejection reason cannot exceed 500 characters")
	ErrInvalidStatus  = errors.New("status must be pending, approved or rejected")
	ErrInvalidMonth   = errors.New("month must be between 1 and 12")
	ErrInvalidYear    = errors.New("year is out of range")
	ErrRangeBackwards = errors.New("end date cannot be before start date")
)

// Entry is one logged block of hours as the backend returns it.
type Entry struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Instructor   string  `json:"instructor,omitempty"`
	Day          string  `json:"giorno"`
	Start        string  `json:"ora_start"`
	End          string  `json:"ora_end"`
	Room         string  `json:"sala"`
	Activity     string  `json:"corso"`
	Substitution bool    `json:"sostituzione"`
	Note         *string `json:"note"`
	Status       Status  `json:"status"`
	RejectReason *string `json:"reject_reason"`
}

// Hours returns the entry duration in decimal hours.
func (e Entry) Hours() float64 {
	return dates.HoursBetween(e.Start, e.End)
}

// Instructor is a roster member as seen by an administrator.
type Instructor struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// ReportRow is one aggregated line of an hours report.
type ReportRow struct {
	Instructor string  `json:"istruttore"`
	Room       *string `json:"sala"`
	TotalHours float64 `json:"totale_ore"`
}

// CollapseByInstructor sums rows per instructor, dropping the room split.
// PRE: none
// POST: one row per instructor, Room nil, sorted by Italian collation;
// blank names are grouped under UnnamedInstructor
func CollapseByInstructor(rows []ReportRow) []ReportRow {
	totals := make(map[string]float64)
	var order []string
	for _, r := range rows {
		key := r.Instructor
		if strings.TrimSpace(key) == "" {
			key = UnnamedInstructor
		}
		if _, ok := totals[key]; !ok {
			order = append(order, key)
		}
		totals[key] += r.TotalHours
	}
	collate.New(language.Italian).SortStrings(order)
	out := make([]ReportRow, 0, len(order))
	for _, name := range order {
		out = append(out, ReportRow{Instructor: name, TotalHours: totals[name]})
	}
	return out
}

// TotalHours sums the hours of every row.
func TotalHours(rows []ReportRow) float64 {
	var sum float64
	for _, r := range rows {
		sum += r.TotalHours
	}
	return sum
}

// LockedPeriod is a closed span in which entries can no longer change.
type LockedPeriod struct {
	ID        string    `json:"id"`
	Start     string    `json:"period_start"`
	End       string    `json:"period_end"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows the admin entry listing.
type ListFilter struct {
	From        string
	To          string
	UserID      string
	Status      Status
	OnlyPending bool
}

// Validate checks the filter dates and status.
// PRE: none
// POST: returns nil when the filter can be sent to the backend
func (f ListFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return ErrInvalidStatus
	}
	if f.From != "" {
		if _, err := dates.Parse(f.From, time.UTC); err != nil {
			return err
		}
	}
	if f.To != "" {
		if _, err := dates.Parse(f.To, time.UTC); err != nil {
			return err
		}
	}
	if f.From != "" && f.To != "" && f.To < f.From {
		return ErrRangeBackwards
	}
	return nil
}

// EffectiveStatus resolves OnlyPending against an explicit status.
func (f ListFilter) EffectiveStatus() Status {
	if f.OnlyPending {
		return StatusPending
	}
	return f.Status
}

// BulkDecision is an approve or reject applied to several entries at once.
type BulkDecision struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason"`
}

// Normalize trims the reason and removes blank and duplicate ids, keeping order.
func (b BulkDecision) Normalize() BulkDecision {
	seen := make(map[string]bool, len(b.IDs))
	ids := make([]string, 0, len(b.IDs))
	for _, id := range b.IDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return BulkDecision{IDs: ids, Reason: strings.TrimSpace(b.Reason)}
}

// Validate checks that the decision targets at least one entry.
// PRE: b was normalized
// POST: returns nil if valid
func (b BulkDecision) Validate() error {
	if len(b.IDs) == 0 {
		return ErrNoIDs
	}
	if len(b.Reason) > MaxReasonLength {
		return ErrReasonTooLong
	}
	return nil
}

// ReasonOrNil maps a blank reason to nil, which the backend stores as NULL.
func ReasonOrNil(reason string) *string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	return &reason
}

// MonthClose identifies a calendar month to lock.
type MonthClose struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Validate checks the month and year.
func (m MonthClose) Validate() error {
	if m.Month < 1 || m.Month > 12 {
		return ErrInvalidMonth
	}
	if m.Year < 2000 || m.Year > 9999 {
		return ErrInvalidYear
	}
	return nil
}

// Range returns the first and last day of the month.
func (m MonthClose) Range() dates.Range {
	return dates.MonthRange(time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC))
}

// Label renders "ottobre 2025".
func (m MonthClose) Label() string {
	return dates.MonthLabelIT(m.Year, time.Month(m.Month))
}

// Unlock is a span of days to reopen.
type Unlock struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks both days and their order.
func (u Unlock) Validate() error {
	s, err := dates.Parse(u.Start, time.UTC)
	if err != nil {
		return err
	}
	e, err := dates.Parse(u.End, time.UTC)
	if err != nil {
		return err
	}
	if e.Before(s) {
		return ErrRangeBackwards
	}
	return nil
}
