package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"restart/internal/domain/audit"
	"restart/internal/domain/hours"
	"restart/internal/domain/kiosk"
)

// mockDashboardBackend implements backend.Dashboard for testing.
type mockDashboardBackend struct {
	added []hours.NewEntry
	err   error
}

func (m *mockDashboardBackend) AddHour(_ context.Context, e hours.NewEntry) error {
	m.added = append(m.added, e)
	return m.err
}

func (m *mockDashboardBackend) ListDayHours(context.Context, string, string) ([]hours.Entry, error) {
	return nil, nil
}

func dashboardEntry() hours.NewEntry {
	return hours.NewEntry{Day: "2025-10-06", Start: "18:00", End: "19:30", Room: " SALA B ", Activity: " Pilates "}
}

func TestExecuteAddHour(t *testing.T) {
	be := &mockDashboardBackend{}
	log := &mockAuditLog{}
	deps := DashboardDeps{Backend: be, Audit: log, Now: func() time.Time { return time.Date(2025, 10, 6, 20, 0, 0, 0, time.UTC) }}

	e := dashboardEntry()
	e.UserID = "someone-else"
	if err := ExecuteAddHour(context.Background(), AddHourInput{ActorID: "u1", Entry: e}, deps); err != nil {
		t.Fatalf("ExecuteAddHour: %v", err)
	}
	if len(be.added) != 1 {
		t.Fatalf("added = %v", be.added)
	}
	got := be.added[0]
	if got.UserID != "" || got.Room != "SALA B" || got.Activity != "Pilates" {
		t.Errorf("sent %+v; owner must come from the token and text must be trimmed", got)
	}
	if len(log.events) != 1 {
		t.Fatalf("audit = %+v", log.events)
	}
	ev := log.events[0]
	if ev.Category != audit.CategoryDashboard || ev.Action != audit.ActionHourAdded || ev.ActorID != "u1" || ev.ResourceID != "u1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Details()["hours"] != "1.5" {
		t.Errorf("hours detail = %q", ev.Details()["hours"])
	}
}

func TestExecuteAddHour_Rejected(t *testing.T) {
	tests := []struct {
		name string
		mut  func(e *hours.NewEntry)
		err  error
		want error
	}{
		{"blank activity", func(e *hours.NewEntry) { e.Activity = " " }, nil, kiosk.ErrActivityRequired},
		{"off grid", func(e *hours.NewEntry) { e.End = "19:10" }, nil, kiosk.ErrNotGridTime},
		{"backend", func(e *hours.NewEntry) {}, errors.New("Periodo bloccato"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := &mockDashboardBackend{err: tt.err}
			log := &mockAuditLog{}
			e := dashboardEntry()
			tt.mut(&e)
			err := ExecuteAddHour(context.Background(), AddHourInput{ActorID: "u1", Entry: e}, DashboardDeps{Backend: be, Audit: log})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Errorf("err = %v, want %v", err, tt.want)
				}
				if len(be.added) != 0 {
					t.Error("invalid entry reached the backend")
				}
			}
			if len(log.events) != 0 {
				t.Error("failed actions must not be audited")
			}
		})
	}
}

func TestExecuteAddHourForUser(t *testing.T) {
	be := &mockAdminBackend{}
	log := &mockAuditLog{}
	deps := adminDeps(be, log)

	if err := ExecuteAddHourForUser(context.Background(), AddHourForUserInput{ActorID: "adm", Entry: dashboardEntry()}, deps); !errors.Is(err, hours.ErrNoInstructor) {
		t.Errorf("no instructor err = %v", err)
	}
	e := dashboardEntry()
	e.UserID = " u7 "
	if err := ExecuteAddHourForUser(context.Background(), AddHourForUserInput{ActorID: "adm", Entry: e}, deps); err != nil {
		t.Fatalf("ExecuteAddHourForUser: %v", err)
	}
	if len(be.calls) != 1 || be.calls[0] != "add_for:u7" {
		t.Errorf("calls = %v", be.calls)
	}
	if len(log.events) != 1 {
		t.Fatalf("audit = %+v", log.events)
	}
	ev := log.events[0]
	if ev.Category != audit.CategoryAdmin || ev.ActorID != "adm" || ev.ResourceID != "u7" || ev.Details()["status"] != "approved" {
		t.Errorf("event = %+v", ev)
	}
}
