package projections

import (
	"context"
	"errors"
	"testing"
	"time"

	auditstore "restart/internal/adapters/storage/audit"
	"restart/internal/application/listutil"
	"restart/internal/adapters/storage/device"
	domainAudit "restart/internal/domain/audit"
	"restart/internal/domain/dates"
	"restart/internal/domain/hours"
)

// mockHoursReader implements HoursReader for testing.
type mockHoursReader struct {
	instructors []hours.Instructor
	entries     []hours.Entry
	report      []hours.ReportRow
	periods     []hours.LockedPeriod
	err         error

	lastFilter hours.ListFilter
	lastRange  [3]string
}

func (m *mockHoursReader) ListInstructors(context.Context) ([]hours.Instructor, error) {
	return m.instructors, m.err
}

func (m *mockHoursReader) ListHours(_ context.Context, f hours.ListFilter) ([]hours.Entry, error) {
	m.lastFilter = f
	return m.entries, m.err
}

func (m *mockHoursReader) ReportRange(_ context.Context, start, end, userID string) ([]hours.ReportRow, error) {
	m.lastRange = [3]string{start, end, userID}
	return m.report, m.err
}

func (m *mockHoursReader) ListLockedPeriods(context.Context) ([]hours.LockedPeriod, error) {
	return m.periods, m.err
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestQueryGetReport_Ranges(t *testing.T) {
	now := time.Date(2025, 10, 8, 12, 0, 0, 0, time.UTC) // Wednesday
	tests := []struct {
		name      string
		query     GetReportQuery
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"default month", GetReportQuery{}, "2025-10-01", "2025-10-31", false},
		{"week", GetReportQuery{Period: PeriodWeek}, "2025-10-06", "2025-10-12", false},
		{"year", GetReportQuery{Period: PeriodYear}, "2025-01-01", "2025-12-31", false},
		{"explicit wins", GetReportQuery{From: "2025-09-01", To: "2025-09-15", Period: PeriodYear}, "2025-09-01", "2025-09-15", false},
		{"backwards", GetReportQuery{From: "2025-09-15", To: "2025-09-01"}, "", "", true},
		{"half open", GetReportQuery{From: "2025-09-15"}, "", "", true},
		{"unknown period", GetReportQuery{Period: "decade"}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockHoursReader{}
			res, err := QueryGetReport(context.Background(), tt.query, GetReportDeps{Backend: backend, Now: fixedClock(now)})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("QueryGetReport: %v", err)
			}
			if res.Range.Start != tt.wantStart || res.Range.End != tt.wantEnd {
				t.Errorf("range = %+v, want %s..%s", res.Range, tt.wantStart, tt.wantEnd)
			}
			if backend.lastRange[0] != tt.wantStart || backend.lastRange[1] != tt.wantEnd {
				t.Errorf("backend range = %v", backend.lastRange)
			}
		})
	}
}

func TestQueryGetReport_CollapsesRows(t *testing.T) {
	a, b := "SALA A", "SALA B"
	backend := &mockHoursReader{report: []hours.ReportRow{
		{Instructor: "Zeno", Room: &a, TotalHours: 2},
		{Instructor: "  ", Room: &a, TotalHours: 1},
		{Instructor: "Zeno", Room: &b, TotalHours: 1.5},
		{Instructor: "Ángela", Room: &b, TotalHours: 4},
	}}
	res, err := QueryGetReport(context.Background(), GetReportQuery{From: "2025-10-01", To: "2025-10-31", UserID: " u1 "},
		GetReportDeps{Backend: backend})
	if err != nil {
		t.Fatalf("QueryGetReport: %v", err)
	}
	if backend.lastRange[2] != "u1" {
		t.Errorf("user filter = %q, want trimmed u1", backend.lastRange[2])
	}
	if len(res.Rows) != 3 {
		t.Fatalf("rows = %+v, want 3 instructors", res.Rows)
	}
	idx := map[string]int{}
	for i, r := range res.Rows {
		idx[r.Instructor] = i
	}
	if _, ok := idx[hours.UnnamedInstructor]; !ok {
		t.Errorf("rows = %+v, want a bucket for blank names", res.Rows)
	}
	if idx["Ángela"] > idx["Zeno"] {
		t.Errorf("rows = %+v, want accented names collated with their base letter", res.Rows)
	}
	if res.TotalHours != 8.5 {
		t.Errorf("TotalHours = %v, want 8.5", res.TotalHours)
	}
}

func TestQueryGetReport_BackendError(t *testing.T) {
	backend := &mockHoursReader{err: errors.New("boom")}
	if _, err := QueryGetReport(context.Background(), GetReportQuery{}, GetReportDeps{Backend: backend}); err == nil {
		t.Fatal("expected backend error")
	}
}

func TestQueryGetHourList(t *testing.T) {
	backend := &mockHoursReader{entries: []hours.Entry{
		{ID: "1", Start: "10:00", End: "11:30", Status: hours.StatusPending},
		{ID: "2", Start: "09:00", End: "10:00", Status: hours.StatusApproved},
	}}
	res, err := QueryGetHourList(context.Background(), GetHourListQuery{Filter: hours.ListFilter{OnlyPending: true}},
		GetHourListDeps{Backend: backend})
	if err != nil {
		t.Fatalf("QueryGetHourList: %v", err)
	}
	if res.TotalHours != 2.5 || res.PendingCount != 1 {
		t.Errorf("totals = %v / %d, want 2.5 / 1", res.TotalHours, res.PendingCount)
	}
	if !backend.lastFilter.OnlyPending {
		t.Error("filter should be forwarded")
	}

	if _, err := QueryGetHourList(context.Background(), GetHourListQuery{Filter: hours.ListFilter{Status: "maybe"}},
		GetHourListDeps{Backend: backend}); !errors.Is(err, hours.ErrInvalidStatus) {
		t.Errorf("invalid status err = %v", err)
	}

	empty, _ := QueryGetHourList(context.Background(), GetHourListQuery{}, GetHourListDeps{Backend: &mockHoursReader{}})
	if empty.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}
}

func TestQueryGetHourList_SortAndPage(t *testing.T) {
	backend := &mockHoursReader{entries: []hours.Entry{
		{ID: "a", Instructor: "Verdi", Start: "10:00", End: "11:00"},
		{ID: "b", Instructor: "Bianchi", Start: "10:00", End: "12:00"},
		{ID: "c", Instructor: "Rossi", Start: "10:00", End: "10:30"},
	}}
	res, err := QueryGetHourList(context.Background(), GetHourListQuery{
		Page: listutil.PageParams{Page: 2, PerPage: 2},
		Sort: listutil.SortParams{Sort: "instructor"},
	}, GetHourListDeps{Backend: backend})
	if err != nil {
		t.Fatalf("QueryGetHourList: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].ID != "a" {
		t.Errorf("page 2 = %+v, want only Verdi", res.Entries)
	}
	if res.Page.Total != 3 || res.Page.TotalPages != 2 {
		t.Errorf("page info = %+v", res.Page)
	}
	if res.TotalHours != 3.5 {
		t.Errorf("TotalHours = %v, want 3.5 across all pages", res.TotalHours)
	}
}

func TestQueryGetLockedPeriods_NewestFirst(t *testing.T) {
	backend := &mockHoursReader{periods: []hours.LockedPeriod{
		{ID: "a", Start: "2025-08-01", End: "2025-08-31"},
		{ID: "b", Start: "2025-10-01", End: "2025-10-31"},
		{ID: "c", Start: "2025-09-01", End: "2025-09-30"},
	}}
	got, err := QueryGetLockedPeriods(context.Background(), GetHourListDeps{Backend: backend})
	if err != nil {
		t.Fatalf("QueryGetLockedPeriods: %v", err)
	}
	if got[0].ID != "b" || got[1].ID != "c" || got[2].ID != "a" {
		t.Errorf("order = %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}
}

// mockAuditReader implements AuditReader for testing.
type mockAuditReader struct {
	filter auditstore.Filter
	limit  int
}

func (m *mockAuditReader) List(_ context.Context, f auditstore.Filter, limit int) ([]domainAudit.Event, error) {
	m.filter = f
	m.limit = limit
	return nil, nil
}

type mockDeviceReader struct{}

func (mockDeviceReader) List(context.Context) ([]device.Device, error) {
	return []device.Device{{ID: "dev-1"}}, nil
}

func TestQueryGetAuditLog(t *testing.T) {
	now := time.Date(2025, 10, 8, 12, 0, 0, 0, time.UTC)
	store := &mockAuditReader{}
	res, err := QueryGetAuditLog(context.Background(), GetAuditLogQuery{
		Category: "kiosk", DeviceID: "dev-1", Since: time.Hour, Limit: 10000,
	}, GetAuditLogDeps{Store: store, Devices: mockDeviceReader{}, Now: fixedClock(now)})
	if err != nil {
		t.Fatalf("QueryGetAuditLog: %v", err)
	}
	if store.limit != MaxAuditLimit {
		t.Errorf("limit = %d, want %d", store.limit, MaxAuditLimit)
	}
	if store.filter.Category == nil || *store.filter.Category != domainAudit.CategoryKiosk {
		t.Errorf("category filter = %v", store.filter.Category)
	}
	if store.filter.Action != nil {
		t.Error("empty action should not filter")
	}
	if store.filter.From == nil || !store.filter.From.Equal(now.Add(-time.Hour)) {
		t.Errorf("From = %v", store.filter.From)
	}
	if res.Events == nil || len(res.Devices) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestQueryGetAuditLog_UnknownNames(t *testing.T) {
	tests := []struct {
		name  string
		query GetAuditLogQuery
		want  error
	}{
		{"category", GetAuditLogQuery{Category: "billing"}, domainAudit.ErrUnknownCategory},
		{"action", GetAuditLogQuery{Action: "explode"}, domainAudit.ErrUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockAuditReader{}
			_, err := QueryGetAuditLog(context.Background(), tt.query, GetAuditLogDeps{Store: store})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if store.limit != 0 {
				t.Error("store was queried")
			}
		})
	}
}

// mockDayReader implements DayHoursReader for testing.
type mockDayReader struct {
	entries []hours.Entry
	err     error
	user    string
	day     string
}

func (m *mockDayReader) ListDayHours(_ context.Context, userID, day string) ([]hours.Entry, error) {
	m.user, m.day = userID, day
	return m.entries, m.err
}

func TestQueryGetDayHours(t *testing.T) {
	now := time.Date(2025, 10, 8, 12, 0, 0, 0, time.Local)
	backend := &mockDayReader{entries: []hours.Entry{
		{ID: "a", Start: "09:00", End: "10:30", Status: hours.StatusPending},
		{ID: "b", Start: "18:00", End: "19:00", Status: hours.StatusRejected},
	}}
	deps := GetDayHoursDeps{Backend: backend, Now: fixedClock(now)}

	res, err := QueryGetDayHours(context.Background(), GetDayHoursQuery{UserID: "u1"}, deps)
	if err != nil {
		t.Fatalf("QueryGetDayHours: %v", err)
	}
	if backend.day != "2025-10-08" || backend.user != "u1" || res.Day != "2025-10-08" {
		t.Errorf("asked %s/%s, result day %s", backend.user, backend.day, res.Day)
	}
	if res.TotalHours != 2.5 || len(res.Entries) != 2 {
		t.Errorf("result = %+v", res)
	}

	backend.entries = nil
	res, err = QueryGetDayHours(context.Background(), GetDayHoursQuery{UserID: "u1", Day: " 2025-09-30 "}, deps)
	if err != nil || backend.day != "2025-09-30" || res.Entries == nil || res.TotalHours != 0 {
		t.Errorf("explicit day: res = %+v err = %v", res, err)
	}
}

func TestQueryGetDayHours_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		query GetDayHoursQuery
		want  error
	}{
		{"no user", GetDayHoursQuery{Day: "2025-10-08"}, ErrNoUser},
		{"bad day", GetDayHoursQuery{UserID: "u1", Day: "08/10/2025"}, dates.ErrInvalidDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockDayReader{}
			_, err := QueryGetDayHours(context.Background(), tt.query, GetDayHoursDeps{Backend: backend})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if backend.day != "" {
				t.Error("backend was queried")
			}
		})
	}
}
