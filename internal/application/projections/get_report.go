package projections

import (
	"context"
	"errors"
	"strings"

	"restart/internal/domain/dates"
	"restart/internal/domain/hours"
)

// Report period presets.
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// ErrUnknownPeriod is returned for a preset other than week, month or year.
var ErrUnknownPeriod = errors.New("period must be week, month or year")

// GetReportQuery carries input for the hours report.
// An explicit From/To wins over Period; with neither, the current month applies.
type GetReportQuery struct {
	From   string
	To     string
	Period string
	UserID string
}

// GetReportDeps holds dependencies for the report projection.
type GetReportDeps struct {
	Backend HoursReader
	Now     Clock
}

// ReportResult is the approved hours per instructor over a range.
type ReportResult struct {
	Range      dates.Range       `json:"range"`
	Rows       []hours.ReportRow `json:"rows"`
	TotalHours float64           `json:"total_hours"`
}

// QueryGetReport aggregates approved hours per instructor.
// PRE: From and To are both set or both empty
// POST: rows are collapsed per instructor and sorted by name
func QueryGetReport(ctx context.Context, query GetReportQuery, deps GetReportDeps) (ReportResult, error) {
	r, err := reportRange(query, deps.Now)
	if err != nil {
		return ReportResult{}, err
	}
	rows, err := deps.Backend.ReportRange(ctx, r.Start, r.End, strings.TrimSpace(query.UserID))
	if err != nil {
		return ReportResult{}, err
	}
	collapsed := hours.CollapseByInstructor(rows)
	return ReportResult{
		Range:      r,
		Rows:       collapsed,
		TotalHours: hours.TotalHours(collapsed),
	}, nil
}

func reportRange(query GetReportQuery, clock Clock) (dates.Range, error) {
	if query.From != "" || query.To != "" {
		r := dates.Range{Start: query.From, End: query.To}
		if err := r.Validate(); err != nil {
			return dates.Range{}, err
		}
		return r, nil
	}
	now := clock.now()
	switch query.Period {
	case PeriodWeek:
		return dates.WeekRange(now), nil
	case "", PeriodMonth:
		return dates.MonthRange(now), nil
	case PeriodYear:
		return dates.YearRange(now), nil
	}
	return dates.Range{}, ErrUnknownPeriod
}
