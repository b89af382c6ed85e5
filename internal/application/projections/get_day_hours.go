package projections

import (
	"context"
	"errors"
	"strings"

	"restart/internal/domain/dates"
	"restart/internal/domain/hours"
)

// ErrNoUser is returned when the day list is asked for without a caller.
var ErrNoUser = errors.New("user id cannot be empty")

// DayHoursReader is the backend surface for the instructor's own day list.
type DayHoursReader interface {
	ListDayHours(ctx context.Context, userID, day string) ([]hours.Entry, error)
}

// GetDayHoursQuery selects one day of the caller's entries. An empty Day
// means today.
type GetDayHoursQuery struct {
	UserID string
	Day    string
}

// GetDayHoursDeps holds dependencies for the day list.
type GetDayHoursDeps struct {
	Backend DayHoursReader
	Now     Clock
}

// DayHoursResult is one day of entries with its total.
type DayHoursResult struct {
	Day        string        `json:"day"`
	Entries    []hours.Entry `json:"entries"`
	TotalHours float64       `json:"total_hours"`
}

// QueryGetDayHours lists what the caller logged on one day, whatever the status.
// POST: Entries is never nil; the total counts every status
func QueryGetDayHours(ctx context.Context, query GetDayHoursQuery, deps GetDayHoursDeps) (DayHoursResult, error) {
	user := strings.TrimSpace(query.UserID)
	if user == "" {
		return DayHoursResult{}, ErrNoUser
	}
	day := strings.TrimSpace(query.Day)
	if day == "" {
		day = dates.Today(deps.Now.now())
	}
	if _, err := dates.Parse(day, nil); err != nil {
		return DayHoursResult{}, err
	}
	entries, err := deps.Backend.ListDayHours(ctx, user, day)
	if err != nil {
		return DayHoursResult{}, err
	}
	if entries == nil {
		entries = []hours.Entry{}
	}
	var total float64
	for _, e := range entries {
		total += e.Hours()
	}
	return DayHoursResult{Day: day, Entries: entries, TotalHours: total}, nil
}
