// Package dates holds the calendar-day helpers shared by the kiosk and the
// admin reports. Days travel as YYYY-MM-DD strings in local time.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the wire format for a calendar day.
const Layout = "2006-01-02"

// ErrInvalidDay is returned when a day string is not YYYY-MM-DD.
var ErrInvalidDay = errors.New("day must use the YYYY-MM-DD format")

// ErrRangeBackwards is returned when a range ends before it starts.
var ErrRangeBackwards = errors.New("range end cannot be before range start")

// Today returns the local calendar day of now.
func Today(now time.Time) string {
	return now.Format(Layout)
}

// Parse parses a YYYY-MM-DD day in loc (local time when loc is nil).
// PRE: none
// POST: returns ErrInvalidDay for malformed input
func Parse(day string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(Layout, day, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDay
	}
	return t, nil
}

// AddDays shifts a day by n calendar days.
// PRE: day is YYYY-MM-DD
// POST: returns the shifted day; DST changes never skip or repeat a day
func AddDays(day string, n int) (string, error) {
	t, err := Parse(day, time.UTC)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(Layout), nil
}

var weekdaysIT = [...]string{"Domenica", "Lunedì", "Martedì", "Mercoledì", "Giovedì", "Venerdì", "Sabato"}

var monthsIT = [...]string{"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno",
	"luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre"}

// HumanIT renders a day as "Lunedì 6 ottobre 2025".
func HumanIT(day string) string {
	t, err := Parse(day, time.UTC)
	if err != nil {
		return day
	}
	return fmt.Sprintf("%s %d %s %d", weekdaysIT[t.Weekday()], t.Day(), monthsIT[t.Month()-1], t.Year())
}

// MonthLabelIT renders "ottobre 2025".
func MonthLabelIT(year int, month time.Month) string {
	if month < time.January || month > time.December {
		return ""
	}
	return fmt.Sprintf("%s %d", monthsIT[month-1], year)
}

// Range is an inclusive span of calendar days.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks that both ends parse and End is not before Start.
func (r Range) Validate() error {
	s, err := Parse(r.Start, time.UTC)
	if err != nil {
		return err
	}
	e, err := Parse(r.End, time.UTC)
	if err != nil {
		return err
	}
	if e.Before(s) {
		return ErrRangeBackwards
	}
	return nil
}

// WeekRange returns Monday..Sunday of the week containing now.
func WeekRange(now time.Time) Range {
	offset := int(now.Weekday()) - 1
	if now.Weekday() == time.Sunday {
		offset = 6
	}
	start := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, now.Location())
	return Range{Start: start.Format(Layout), End: start.AddDate(0, 0, 6).Format(Layout)}
}

// MonthRange returns the first and last day of the month containing now.
func MonthRange(now time.Time) Range {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Range{Start: start.Format(Layout), End: start.AddDate(0, 1, -1).Format(Layout)}
}

// YearRange returns 1 January..31 December of now's year.
func YearRange(now time.Time) Range {
	return Range{
		Start: fmt.Sprintf("%04d-01-01", now.Year()),
		End:   fmt.Sprintf("%04d-12-31", now.Year()),
	}
}

// HoursBetween returns the decimal hours between two HH:MM labels.
// PRE: both labels are HH:MM
// POST: returns 0 for malformed input or a non-positive span
func HoursBetween(start, end string) float64 {
	s, ok1 := minutesOf(start)
	e, ok2 := minutesOf(end)
	if !ok1 || !ok2 || e <= s {
		return 0
	}
	return float64(e-s) / 60
}

func minutesOf(hhmm string) (int, bool) {
	parts := strings.Split(hhmm, ":")
	if len(parts) < 2 {
		return 0, false
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0]+" "+parts[1], "%d %d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
