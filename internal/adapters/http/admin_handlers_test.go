package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"restart/internal/domain/audit"
	"restart/internal/domain/hours"
)

func TestAdmin_Authorization(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		admin    bool
		adminErr error
		want     int
	}{
		{name: "no token", want: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "not an admin", token: "valid", admin: false, want: http.StatusForbidden},
		{name: "check fails", token: "valid", adminErr: errors.New("backend down"), want: http.StatusBadGateway},
		{name: "admin", token: "valid", admin: true, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.backend.admin = tt.admin
			env.backend.adminErr = tt.adminErr
			tok := tt.token
			if tok == "valid" {
				tok = adminToken(t, "boss")
			}
			rr := env.do(t, request{method: http.MethodGet, path: "/api/admin/instructors", token: tok})
			if rr.Code != tt.want {
				t.Errorf("got %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestAdmin_ForwardsCallerToken(t *testing.T) {
	env := newTestEnv(t)
	tok := adminToken(t, "boss")
	rr := env.do(t, request{method: http.MethodGet, path: "/api/admin/hours?only_pending=true", token: tok})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(env.backend.tokens) == 0 {
		t.Fatal("backend was not called")
	}
	for _, got := range env.backend.tokens {
		if got != tok {
			t.Errorf("backend saw token %q, want the caller's", got)
		}
	}
}

func TestAdmin_Decisions(t *testing.T) {
	env := newTestEnv(t)
	tok := adminToken(t, "boss")

	rr := env.do(t, request{method: http.MethodPost, path: "/api/admin/hours/h1/approve", token: tok})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("approve: got %d (%s)", rr.Code, rr.Body.String())
	}
	rr = env.do(t, request{method: http.MethodPost, path: "/api/admin/hours/h2/reject", body: map[string]string{"reason": "doppione"}, token: tok})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reject: got %d (%s)", rr.Code, rr.Body.String())
	}
	rr = env.do(t, request{method: http.MethodPost, path: "/api/admin/hours/approve", body: map[string]any{"ids": []string{"h3", " h3 ", "", "h4"}}, token: tok})
	if rr.Code != http.StatusOK {
		t.Fatalf("bulk: got %d (%s)", rr.Code, rr.Body.String())
	}
	var bulk struct {
		Updated int `json:"updated"`
	}
	json.Unmarshal(rr.Body.Bytes(), &bulk)
	if bulk.Updated != 2 {
		t.Errorf("updated = %d, want 2 after dedupe", bulk.Updated)
	}

	want := []string{"h1", "h3", "h4"}
	if strings.Join(env.backend.approved, ",") != strings.Join(want, ",") {
		t.Errorf("approved = %v, want %v", env.backend.approved, want)
	}
	if len(env.backend.rejected) != 1 || env.backend.rejected[0] != "h2" {
		t.Errorf("rejected = %v", env.backend.rejected)
	}

	events, err := env.audit.List(t.Context(), auditFilter(audit.CategoryAdmin), 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(events) < 3 {
		t.Fatalf("audit events = %d, want at least 3", len(events))
	}
	for _, ev := range events {
		if ev.ActorID != "boss" {
			t.Errorf("event %s actor = %q, want boss", ev.Action, ev.ActorID)
		}
	}
}

func TestAdmin_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		wantKey string
	}{
		{name: "empty bulk", method: http.MethodPost, path: "/api/admin/hours/reject", body: map[string]any{"ids": []string{}}, wantKey: "admin.no_selection"},
		{name: "bad month", method: http.MethodPost, path: "/api/admin/periods/close", body: map[string]int{"year": 2025, "month": 13}, wantKey: "error.invalid_value"},
		{name: "short pin", method: http.MethodPost, path: "/api/admin/instructors/u1/pin", body: map[string]string{"pin": "12"}, wantKey: "admin.pin_format"},
		{name: "unlock backwards", method: http.MethodPost, path: "/api/admin/periods/unlock", body: map[string]string{"start": "2025-10-10", "end": "2025-10-01"}, wantKey: "admin.unlock_backwards"},
		{name: "bad status", method: http.MethodGet, path: "/api/admin/hours?status=maybe", wantKey: "error.invalid_value"},
		{name: "report backwards", method: http.MethodGet, path: "/api/admin/report?from=2025-10-31&to=2025-10-01", wantKey: "admin.unlock_backwards"},
		{name: "bad format", method: http.MethodGet, path: "/api/admin/report?format=pdf", wantKey: "error.invalid_value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(t, request{method: tt.method, path: tt.path, body: tt.body, token: adminToken(t, "boss")})
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("got %d, want 400 (%s)", rr.Code, rr.Body.String())
			}
			var body errorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Key != tt.wantKey || body.Message == "" {
				t.Errorf("error = %+v, want key %s with a message", body, tt.wantKey)
			}
		})
	}
}

func TestAdmin_DeleteMissing(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, request{method: http.MethodDelete, path: "/api/admin/hours/missing", token: adminToken(t, "boss")})
	if rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rr.Code)
	}
}

func TestAdmin_ReportCSV(t *testing.T) {
	env := newTestEnv(t)
	room := "SALA A"
	env.backend.report = []hours.ReportRow{
		{Instructor: "Rossi", Room: &room, TotalHours: 2},
		{Instructor: "Rossi", TotalHours: 1.5},
		{Instructor: "Bianchi", TotalHours: 3},
	}

	rr := env.do(t, request{method: http.MethodGet, path: "/api/admin/report?from=2025-10-01&to=2025-10-31&format=csv", token: adminToken(t, "boss")})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d (%s)", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "report_2025-10-01_2025-10-31.csv") {
		t.Errorf("content disposition = %q", cd)
	}
	want := "istruttore,sala,totale_ore\n\"Bianchi\",\"\",\"3\"\n\"Rossi\",\"\",\"3.5\""
	if got := rr.Body.String(); got != want {
		t.Errorf("body =\n%s\nwant\n%s", got, want)
	}

	events, err := env.audit.List(t.Context(), auditFilter(audit.CategoryAdmin), 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionExport {
		t.Fatalf("events = %+v, want one export", events)
	}
	if d := events[0].Details(); d["format"] != "csv" || d["rows"] != "2" {
		t.Errorf("export details = %v", d)
	}
}

func TestAdmin_ReportXLSX(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, request{method: http.MethodGet, path: "/api/admin/report?period=year&format=xlsx", token: adminToken(t, "boss")})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d (%s)", rr.Code, rr.Body.String())
	}
	// xlsx is a zip archive
	if !strings.HasPrefix(rr.Body.String(), "PK") {
		t.Error("body is not an xlsx archive")
	}
}

func TestAdmin_CloseMonthAndUnlock(t *testing.T) {
	env := newTestEnv(t)
	tok := adminToken(t, "boss")
	env.backend.report = []hours.ReportRow{{Instructor: "Rossi", TotalHours: 4}}

	rr := env.do(t, request{method: http.MethodPost, path: "/api/admin/periods/close", body: map[string]int{"year": 2025, "month": 10}, token: tok})
	if rr.Code != http.StatusOK {
		t.Fatalf("close: got %d (%s)", rr.Code, rr.Body.String())
	}
	var res struct {
		Label      string  `json:"label"`
		TotalHours float64 `json:"total_hours"`
		Emailed    bool    `json:"emailed"`
	}
	json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Label != "ottobre 2025" || res.TotalHours != 4 || !res.Emailed {
		t.Errorf("close result = %+v", res)
	}
	if sent := env.mail.Sent(); len(sent) != 1 || sent[0].To[0] != "office@example.com" || sent[0].From != "noreply@example.com" {
		t.Errorf("sent = %+v", sent)
	}
	if len(env.backend.closed) != 1 || env.backend.closed[0].Month != 10 {
		t.Errorf("closed = %+v", env.backend.closed)
	}

	rr = env.do(t, request{method: http.MethodPost, path: "/api/admin/periods/unlock", body: map[string]string{"start": " 2025-10-01 ", "end": "2025-10-31"}, token: tok})
	if rr.Code != http.StatusOK {
		t.Fatalf("unlock: got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(env.backend.unlocked) != 1 || env.backend.unlocked[0].Start != "2025-10-01" {
		t.Errorf("unlocked = %+v", env.backend.unlocked)
	}
}

func TestAdmin_SetPinStoresHash(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, request{method: http.MethodPost, path: "/api/admin/instructors/u1/pin", body: map[string]string{"pin": "482913"}, token: adminToken(t, "boss")})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d (%s)", rr.Code, rr.Body.String())
	}
	hash := env.backend.pinHashes["u1"]
	if hash == "" || strings.Contains(hash, "482913") {
		t.Errorf("stored %q, want a hash of the PIN", hash)
	}
}

func TestAdmin_DevicesAndAudit(t *testing.T) {
	env := newTestEnv(t)
	tok := adminToken(t, "boss")
	c := loginKiosk(t, env)

	rr := env.do(t, request{method: http.MethodPatch, path: "/api/admin/devices/" + c.Value, body: map[string]string{"label": "Reception"}, token: tok})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("rename: got %d (%s)", rr.Code, rr.Body.String())
	}
	rr = env.do(t, request{method: http.MethodPatch, path: "/api/admin/devices/unknown", body: map[string]string{"label": "x"}, token: tok})
	if rr.Code != http.StatusNotFound {
		t.Errorf("rename unknown: got %d, want 404", rr.Code)
	}

	rr = env.do(t, request{method: http.MethodGet, path: "/api/admin/devices", token: tok})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Reception") {
		t.Errorf("devices: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, request{method: http.MethodGet, path: "/api/admin/audit?category=kiosk&device=" + c.Value, token: tok})
	if rr.Code != http.StatusOK {
		t.Fatalf("audit: got %d (%s)", rr.Code, rr.Body.String())
	}
	var log struct {
		Events []audit.Event `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &log); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(log.Events) == 0 {
		t.Fatal("expected kiosk events for the device")
	}
	for _, ev := range log.Events {
		if ev.Category != audit.CategoryKiosk || ev.DeviceID != c.Value {
			t.Errorf("unexpected event %+v", ev)
		}
	}

	for _, q := range []string{"since=yesterday", "category=billing", "action=explode"} {
		rr = env.do(t, request{method: http.MethodGet, path: "/api/admin/audit?" + q, token: tok})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", q, rr.Code)
		}
	}
}

func TestAdmin_Perf(t *testing.T) {
	env := newTestEnv(t)
	tok := adminToken(t, "boss")
	env.do(t, request{method: http.MethodGet, path: "/api/health"})

	rr := env.do(t, request{method: http.MethodGet, path: "/api/admin/perf?window=1h", token: tok})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d (%s)", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "GET /api/health") {
		t.Errorf("perf snapshot should group by route: %s", rr.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	loginKiosk(t, env)

	rr := env.do(t, request{method: http.MethodGet, path: "/api/health"})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"devices":1`) {
		t.Errorf("health: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, request{method: http.MethodGet, path: "/metrics"})
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "restart_http_requests_total") {
		t.Error("metrics should expose request counters")
	}
}

func TestAdmin_HoursPaging(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 30; i++ {
		env.backend.hourList = append(env.backend.hourList, hours.Entry{
			ID: string(rune('a' + i%26)), Start: "10:00", End: "11:00", Status: hours.StatusPending,
		})
	}
	rr := env.do(t, request{method: http.MethodGet, path: "/api/admin/hours?page=2&per_page=25", token: adminToken(t, "boss")})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d (%s)", rr.Code, rr.Body.String())
	}
	var res struct {
		Entries      []hours.Entry `json:"entries"`
		PendingCount int           `json:"pending_count"`
		Page         struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"page"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Entries) != 5 || res.PendingCount != 30 || res.Page.Total != 30 || res.Page.TotalPages != 2 {
		t.Errorf("entries=%d pending=%d page=%+v", len(res.Entries), res.PendingCount, res.Page)
	}
}

func TestAdmin_AddHourForInstructor(t *testing.T) {
	env := newTestEnv(t)
	tok := adminToken(t, "boss")

	body := entryBody()
	rr := env.do(t, request{method: http.MethodPost, path: "/api/admin/hours", body: body, token: tok})
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "hours.no_instructor") {
		t.Fatalf("without instructor: got %d (%s)", rr.Code, rr.Body.String())
	}

	body["user_id"] = "u2"
	rr = env.do(t, request{method: http.MethodPost, path: "/api/admin/hours", body: body, token: tok})
	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(env.backend.addedFor) != 1 || env.backend.addedFor[0].UserID != "u2" {
		t.Errorf("added = %+v", env.backend.addedFor)
	}
	events, err := env.audit.List(t.Context(), auditFilter(audit.CategoryAdmin), 10)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionHourAdded || events[0].ResourceID != "u2" || events[0].ActorID != "boss" {
		t.Errorf("audit = %+v", events)
	}
}

func TestAdmin_InstructorLifecycle(t *testing.T) {
	env := newTestEnv(t)
	tok := adminToken(t, "boss")

	rr := env.do(t, request{method: http.MethodPost, path: "/api/admin/instructors", token: tok, body: map[string]string{
		"full_name": "Sara Verdi", "email": "Sara@Example.com", "password": "segreta1", "pin": "2468",
	}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d (%s)", rr.Code, rr.Body.String())
	}
	var created struct {
		ID      string `json:"id"`
		Warning string `json:"warning"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID != "new-user" || created.Warning != "" {
		t.Errorf("created = %+v", created)
	}
	if len(env.backend.created) != 1 || env.backend.created[0].Email != "sara@example.com" {
		t.Errorf("backend got %+v", env.backend.created)
	}
	if env.backend.pinHashes["new-user"] == "" {
		t.Error("the PIN was not stored for the new account")
	}

	rr = env.do(t, request{method: http.MethodPost, path: "/api/admin/instructors/new-user/password", body: map[string]string{"password": "cambiata"}, token: tok})
	if rr.Code != http.StatusOK || len(env.backend.passwordFor) != 1 {
		t.Fatalf("password: got %d (%s)", rr.Code, rr.Body.String())
	}

	rr = env.do(t, request{method: http.MethodDelete, path: "/api/admin/instructors/new-user", token: tok})
	if rr.Code != http.StatusOK || len(env.backend.removed) != 1 {
		t.Fatalf("delete: got %d (%s)", rr.Code, rr.Body.String())
	}
	rr = env.do(t, request{method: http.MethodDelete, path: "/api/admin/instructors/missing", token: tok})
	if rr.Code != http.StatusNotFound {
		t.Errorf("delete missing: got %d, want 404", rr.Code)
	}

	events, err := env.audit.List(t.Context(), auditFilter(audit.CategoryAdmin), 10)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	seen := map[audit.Action]bool{}
	for _, ev := range events {
		seen[ev.Action] = true
		if strings.Contains(ev.Metadata, "segreta1") || strings.Contains(ev.Metadata, "cambiata") {
			t.Errorf("password leaked into %+v", ev)
		}
	}
	for _, a := range []audit.Action{audit.ActionInstructorCreated, audit.ActionSetPin, audit.ActionSetPassword, audit.ActionInstructorDeleted} {
		if !seen[a] {
			t.Errorf("no %s event in %+v", a, events)
		}
	}
}

func TestAdmin_InstructorValidation(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		wantKey string
	}{
		{name: "bad email", method: http.MethodPost, path: "/api/admin/instructors", body: map[string]string{"full_name": "Sara", "email": "sara", "password": "segreta1"}, wantKey: "admin.instructor_invalid"},
		{name: "short password", method: http.MethodPost, path: "/api/admin/instructors", body: map[string]string{"full_name": "Sara", "email": "sara@example.com", "password": "123"}, wantKey: "admin.instructor_invalid"},
		{name: "bad pin", method: http.MethodPost, path: "/api/admin/instructors", body: map[string]string{"full_name": "Sara", "email": "sara@example.com", "password": "segreta1", "pin": "1"}, wantKey: "admin.pin_format"},
		{name: "reset short password", method: http.MethodPost, path: "/api/admin/instructors/u1/password", body: map[string]string{"password": "abc"}, wantKey: "admin.instructor_invalid"},
		{name: "delete self", method: http.MethodDelete, path: "/api/admin/instructors/boss", wantKey: "admin.delete_self"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(t, request{method: tt.method, path: tt.path, body: tt.body, token: adminToken(t, "boss")})
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("got %d, want 400 (%s)", rr.Code, rr.Body.String())
			}
			var body errorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Key != tt.wantKey || body.Message == "" {
				t.Errorf("error = %+v, want key %s with a message", body, tt.wantKey)
			}
			if len(env.backend.created)+len(env.backend.removed)+len(env.backend.passwordFor) != 0 {
				t.Error("backend was changed by an invalid request")
			}
		})
	}
}
