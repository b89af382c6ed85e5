package projections

import (
	"cmp"
	"context"
	"slices"

	"restart/internal/application/listutil"
	"restart/internal/domain/hours"
)

// HourSortColumns are the columns the entry list may be sorted by.
var HourSortColumns = []string{"giorno", "ora_start", "instructor", "sala", "status"}

// GetHourListQuery carries input for the admin entry list.
// A zero Page returns every entry on one page.
type GetHourListQuery struct {
	Filter hours.ListFilter
	Page   listutil.PageParams
	Sort   listutil.SortParams
}

// GetHourListDeps holds dependencies for the entry list projection.
type GetHourListDeps struct {
	Backend HoursReader
}

// HourListResult is the filtered entry list with its totals.
type HourListResult struct {
	Entries      []hours.Entry     `json:"entries"`
	TotalHours   float64           `json:"total_hours"`
	PendingCount int               `json:"pending_count"`
	Page         listutil.PageInfo `json:"page"`
}

// QueryGetHourList lists entries in backend order (newest day first) unless a
// sort column is given.
// PRE: Filter is valid
// POST: totals cover every matching entry, not only the returned page
func QueryGetHourList(ctx context.Context, query GetHourListQuery, deps GetHourListDeps) (HourListResult, error) {
	if err := query.Filter.Validate(); err != nil {
		return HourListResult{}, err
	}
	entries, err := deps.Backend.ListHours(ctx, query.Filter)
	if err != nil {
		return HourListResult{}, err
	}
	res := HourListResult{Entries: entries}
	if res.Entries == nil {
		res.Entries = []hours.Entry{}
	}
	for _, e := range entries {
		res.TotalHours += e.Hours()
		if e.Status == hours.StatusPending {
			res.PendingCount++
		}
	}

	sortEntries(res.Entries, query.Sort)
	page := query.Page
	if page.Page == 0 {
		page = listutil.PageParams{Page: 1, PerPage: max(len(res.Entries), 1)}
	}
	res.Page = listutil.NewPageInfo(page, len(res.Entries))
	res.Entries = listutil.Slice(res.Entries, res.Page)
	return res, nil
}

// sortEntries orders entries in place; ties keep the backend order.
func sortEntries(entries []hours.Entry, s listutil.SortParams) {
	if s.Sort == "" {
		return
	}
	key := func(e hours.Entry) string {
		switch s.Sort {
		case "giorno":
			return e.Day + " " + e.Start
		case "ora_start":
			return e.Start
		case "instructor":
			return e.Instructor
		case "sala":
			return e.Room
		case "status":
			return string(e.Status)
		}
		return ""
	}
	slices.SortStableFunc(entries, func(a, b hours.Entry) int {
		c := cmp.Compare(key(a), key(b))
		if s.Desc {
			return -c
		}
		return c
	})
}

// QueryGetInstructors lists instructors for the admin filters.
func QueryGetInstructors(ctx context.Context, deps GetHourListDeps) ([]hours.Instructor, error) {
	list, err := deps.Backend.ListInstructors(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []hours.Instructor{}
	}
	return list, nil
}
