package dates

import (
	"testing"
	"time"
)

// TestAddDays tests day arithmetic across month, year and DST boundaries.
func TestAddDays(t *testing.T) {
	tests := []struct {
		day  string
		n    int
		want string
	}{
		{"2025-10-06", 1, "2025-10-07"},
		{"2025-10-06", -1, "2025-10-05"},
		{"2025-10-31", 1, "2025-11-01"},
		{"2025-12-31", 1, "2026-01-01"},
		{"2024-02-28", 1, "2024-02-29"},
		{"2025-03-30", 1, "2025-03-31"},
		{"2025-10-26", -1, "2025-10-25"},
	}
	for _, tt := range tests {
		got, err := AddDays(tt.day, tt.n)
		if err != nil {
			t.Fatalf("AddDays(%q, %d): %v", tt.day, tt.n, err)
		}
		if got != tt.want {
			t.Errorf("AddDays(%q, %d) = %q, want %q", tt.day, tt.n, got, tt.want)
		}
	}

	if _, err := AddDays("06/10/2025", 1); err != ErrInvalidDay {
		t.Errorf("expected ErrInvalidDay, got %v", err)
	}
}

// TestToday tests that Today uses the clock's own location.
func TestToday(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skip("tzdata not available")
	}
	now := time.Date(2025, 10, 6, 23, 30, 0, 0, rome)
	if got := Today(now); got != "2025-10-06" {
		t.Errorf("Today() = %q, want 2025-10-06", got)
	}
}

// TestHumanIT tests the Italian long-form date.
func TestHumanIT(t *testing.T) {
	if got := HumanIT("2025-10-06"); got != "Lunedì 6 ottobre 2025" {
		t.Errorf("HumanIT() = %q", got)
	}
	if got := HumanIT("2025-10-05"); got != "Domenica 5 ottobre 2025" {
		t.Errorf("HumanIT() = %q", got)
	}
	if got := HumanIT("garbage"); got != "garbage" {
		t.Errorf("HumanIT() on bad input = %q, want input echoed", got)
	}
}

// TestMonthLabelIT tests month labels and bounds.
func TestMonthLabelIT(t *testing.T) {
	if got := MonthLabelIT(2025, time.January); got != "gennaio 2025" {
		t.Errorf("MonthLabelIT() = %q", got)
	}
	if got := MonthLabelIT(2025, 13); got != "" {
		t.Errorf("MonthLabelIT(13) = %q, want empty", got)
	}
}

// TestDefaultRanges tests the week, month and year report windows.
func TestDefaultRanges(t *testing.T) {
	wed := time.Date(2025, 10, 8, 15, 0, 0, 0, time.UTC)
	sun := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)

	if r := WeekRange(wed); r.Start != "2025-10-06" || r.End != "2025-10-12" {
		t.Errorf("WeekRange(wed) = %+v", r)
	}
	if r := WeekRange(sun); r.Start != "2025-10-06" || r.End != "2025-10-12" {
		t.Errorf("WeekRange(sun) = %+v", r)
	}
	if r := MonthRange(wed); r.Start != "2025-10-01" || r.End != "2025-10-31" {
		t.Errorf("MonthRange() = %+v", r)
	}
	if r := YearRange(wed); r.Start != "2025-01-01" || r.End != "2025-12-31" {
		t.Errorf("YearRange() = %+v", r)
	}
}

// TestRange_Validate tests range ordering.
func TestRange_Validate(t *testing.T) {
	if err := (Range{Start: "2025-10-01", End: "2025-10-01"}).Validate(); err != nil {
		t.Errorf("single-day range: %v", err)
	}
	if err := (Range{Start: "2025-10-02", End: "2025-10-01"}).Validate(); err == nil {
		t.Error("backwards range should fail")
	}
	if err := (Range{Start: "x", End: "2025-10-01"}).Validate(); err != ErrInvalidDay {
		t.Errorf("expected ErrInvalidDay, got %v", err)
	}
}

// TestHoursBetween tests decimal durations.
func TestHoursBetween(t *testing.T) {
	tests := []struct {
		start, end string
		want       float64
	}{
		{"10:00", "11:00", 1},
		{"10:00", "11:30", 1.5},
		{"09:30:00", "10:00:00", 0.5},
		{"11:00", "10:00", 0},
		{"10:00", "10:00", 0},
		{"bad", "10:00", 0},
		{"25:00", "26:00", 0},
	}
	for _, tt := range tests {
		if got := HoursBetween(tt.start, tt.end); got != tt.want {
			t.Errorf("HoursBetween(%q, %q) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}
}
