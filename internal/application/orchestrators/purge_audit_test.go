package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"restart/internal/domain/audit"
)

// mockPurger implements AuditPurger for testing.
type mockPurger struct {
	cutoff  time.Time
	deleted int64
	err     error
	saved   []audit.Event
}

// DeleteBefore records the cutoff.
// POST: returns the configured count
func (m *mockPurger) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	return m.deleted, m.err
}

func (m *mockPurger) Save(_ context.Context, ev audit.Event) error {
	m.saved = append(m.saved, ev)
	return nil
}

func TestExecutePurgeAudit(t *testing.T) {
	now := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		retention time.Duration
		deleted   int64
		err       error
		wantN     int64
		wantErr   bool
		wantSaved int
	}{
		{name: "removes old events", retention: 24 * time.Hour, deleted: 3, wantN: 3, wantSaved: 1},
		{name: "nothing to remove", retention: 24 * time.Hour, wantSaved: 0},
		{name: "disabled", retention: 0, deleted: 5, wantSaved: 0},
		{name: "store error", retention: time.Hour, err: errors.New("locked"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockPurger{deleted: tt.deleted, err: tt.err}
			n, err := ExecutePurgeAudit(context.Background(), tt.retention, PurgeAuditDeps{
				Store: store,
				Now:   func() time.Time { return now },
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if n != tt.wantN {
				t.Errorf("n = %d, want %d", n, tt.wantN)
			}
			if len(store.saved) != tt.wantSaved {
				t.Errorf("saved %d events, want %d", len(store.saved), tt.wantSaved)
			}
			if tt.retention > 0 && !tt.wantErr && !store.cutoff.Equal(now.Add(-tt.retention)) {
				t.Errorf("cutoff = %v", store.cutoff)
			}
		})
	}
}

func TestExecutePurgeAudit_RecordsSystemEvent(t *testing.T) {
	store := &mockPurger{deleted: 2}
	if _, err := ExecutePurgeAudit(context.Background(), time.Hour, PurgeAuditDeps{Store: store}); err != nil {
		t.Fatalf("purge: %v", err)
	}
	ev := store.saved[0]
	if ev.Category != audit.CategorySystem || ev.Action != audit.ActionAuditPurged {
		t.Errorf("event = %s/%s", ev.Category, ev.Action)
	}
	if ev.Details()["count"] != "2" {
		t.Errorf("details = %v", ev.Details())
	}
}
