package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "modernc.org/sqlite"

	"restart/internal/adapters/backend"
	"restart/internal/adapters/email"
	"restart/internal/adapters/http/middleware"
	"restart/internal/adapters/http/perf"
	"restart/internal/adapters/i18n"
	kioskrt "restart/internal/adapters/kiosk"
	"restart/internal/adapters/metrics"
	"restart/internal/adapters/storage"
	auditStore "restart/internal/adapters/storage/audit"
	deviceStore "restart/internal/adapters/storage/device"
	"restart/internal/adapters/ws"
	"restart/internal/config"
	"restart/internal/domain/audit"
	"restart/internal/domain/hours"
	"restart/internal/domain/kiosk"
)

const testJWTSecret = "web-test-secret-with-enough-bytes!!"

// mockBackend implements backend.Client in memory.
type mockBackend struct {
	mu sync.Mutex

	identities  []kiosk.Identity
	listErr     error
	rosterLoads int
	pins        map[string]string
	prefs       kiosk.RecentPreferences
	addErr      error
	entries     []backend.KioskEntry

	admin     bool
	adminErr  error
	hourList  []hours.Entry
	report    []hours.ReportRow
	locked    []hours.LockedPeriod
	approved  []string
	rejected  []string
	deleted   []string
	closed    []hours.MonthClose
	unlocked  []hours.Unlock
	pinHashes map[string]string
	tokens    []string

	dashErr     error
	added       []hours.NewEntry
	addedFor    []hours.NewEntry
	dayList     []hours.Entry
	dayAsked    [2]string
	created     []hours.NewInstructor
	removed     []string
	passwordFor []string
}

var _ backend.Client = (*mockBackend)(nil)

func newMockBackend() *mockBackend {
	room := "SALA B"
	return &mockBackend{
		identities: []kiosk.Identity{
			{ID: "u1", DisplayName: "Giulia Rossi", HasPin: true, Role: "istruttore"},
			{ID: "u2", DisplayName: "Marco Bianchi", HasPin: true, Role: "istruttore"},
			{ID: "adm", DisplayName: "Admin", HasPin: true, Role: "admin"},
		},
		pins:      map[string]string{"u1": "1234", "u2": "9999"},
		prefs:     kiosk.RecentPreferences{LastRoom: &room, RecentActivities: []string{"Pilates", "Yoga"}},
		admin:     true,
		pinHashes: map[string]string{},
	}
}

func (m *mockBackend) seen(ctx context.Context) {
	tok, _ := backend.AccessToken(ctx)
	m.mu.Lock()
	m.tokens = append(m.tokens, tok)
	m.mu.Unlock()
}

// ListKioskIdentities implements backend.Kiosk for testing.
func (m *mockBackend) ListKioskIdentities(ctx context.Context) ([]kiosk.Identity, error) {
	m.mu.Lock()
	m.rosterLoads++
	m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.identities, nil
}

func (m *mockBackend) loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rosterLoads
}

// VerifyPin implements backend.Kiosk for testing.
func (m *mockBackend) VerifyPin(ctx context.Context, identityID, pin string) (bool, error) {
	return m.pins[identityID] == pin, nil
}

// RecentPrefs implements backend.Kiosk for testing.
func (m *mockBackend) RecentPrefs(ctx context.Context, identityID string) (kiosk.RecentPreferences, error) {
	return m.prefs, nil
}

// AddKioskEntry implements backend.Kiosk for testing.
// POST: the entry is kept unless addErr is set
func (m *mockBackend) AddKioskEntry(ctx context.Context, e backend.KioskEntry) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

// IsAdmin implements backend.Admin for testing.
func (m *mockBackend) IsAdmin(ctx context.Context) (bool, error) {
	m.seen(ctx)
	return m.admin, m.adminErr
}

func (m *mockBackend) ListInstructors(ctx context.Context) ([]hours.Instructor, error) {
	m.seen(ctx)
	return []hours.Instructor{{ID: "u1", FullName: "Giulia Rossi"}}, nil
}

func (m *mockBackend) ListHours(ctx context.Context, f hours.ListFilter) ([]hours.Entry, error) {
	m.seen(ctx)
	return m.hourList, nil
}

func (m *mockBackend) ApproveHour(ctx context.Context, id string) error {
	m.seen(ctx)
	m.approved = append(m.approved, id)
	return nil
}

func (m *mockBackend) RejectHour(ctx context.Context, id string, reason *string) error {
	m.seen(ctx)
	m.rejected = append(m.rejected, id)
	return nil
}

func (m *mockBackend) ApproveMany(ctx context.Context, ids []string) error {
	m.seen(ctx)
	m.approved = append(m.approved, ids...)
	return nil
}

func (m *mockBackend) RejectMany(ctx context.Context, ids []string, reason *string) error {
	m.seen(ctx)
	m.rejected = append(m.rejected, ids...)
	return nil
}

func (m *mockBackend) DeleteHour(ctx context.Context, id string) error {
	m.seen(ctx)
	if id == "missing" {
		return backend.ErrNotFound
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockBackend) ReportRange(ctx context.Context, start, end, userID string) ([]hours.ReportRow, error) {
	m.seen(ctx)
	return m.report, nil
}

func (m *mockBackend) CloseMonth(ctx context.Context, mc hours.MonthClose) error {
	m.seen(ctx)
	m.closed = append(m.closed, mc)
	return nil
}

func (m *mockBackend) UnlockPeriod(ctx context.Context, u hours.Unlock) error {
	m.seen(ctx)
	m.unlocked = append(m.unlocked, u)
	return nil
}

func (m *mockBackend) ListLockedPeriods(ctx context.Context) ([]hours.LockedPeriod, error) {
	m.seen(ctx)
	return m.locked, nil
}

func (m *mockBackend) SetPinHash(ctx context.Context, identityID, hash string) error {
	m.seen(ctx)
	m.pinHashes[identityID] = hash
	return nil
}

func (m *mockBackend) AddHour(ctx context.Context, e hours.NewEntry) error {
	m.seen(ctx)
	if m.dashErr != nil {
		return m.dashErr
	}
	m.added = append(m.added, e)
	return nil
}

func (m *mockBackend) ListDayHours(ctx context.Context, userID, day string) ([]hours.Entry, error) {
	m.seen(ctx)
	m.dayAsked = [2]string{userID, day}
	return m.dayList, nil
}

func (m *mockBackend) AddHourForUser(ctx context.Context, e hours.NewEntry) error {
	m.seen(ctx)
	if m.dashErr != nil {
		return m.dashErr
	}
	m.addedFor = append(m.addedFor, e)
	return nil
}

func (m *mockBackend) CreateInstructor(ctx context.Context, n hours.NewInstructor) (string, error) {
	m.seen(ctx)
	if m.dashErr != nil {
		return "", m.dashErr
	}
	m.created = append(m.created, n)
	return "new-user", nil
}

func (m *mockBackend) DeleteInstructor(ctx context.Context, id string) error {
	m.seen(ctx)
	if id == "missing" {
		return backend.ErrNotFound
	}
	m.removed = append(m.removed, id)
	return nil
}

func (m *mockBackend) SetPassword(ctx context.Context, id, password string) error {
	m.seen(ctx)
	m.passwordFor = append(m.passwordFor, id)
	return nil
}

// testEnv is a fully wired mux over in-memory dependencies.
type testEnv struct {
	handler http.Handler
	backend *mockBackend
	kiosks  *kioskrt.Registry
	audit   *auditStore.SQLiteStore
	devices *deviceStore.SQLiteStore
	mail    *email.NoopSender
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvLimited(t, 1000, 1000)
}

// newTestEnvLimited wires the mux with the given per-client and per-address budgets.
func newTestEnvLimited(t *testing.T, perSecond, perMinute int) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	catalog, err := i18n.Default()
	if err != nil {
		t.Fatalf("i18n: %v", err)
	}

	be := newMockBackend()
	audits := auditStore.NewSQLiteStore(db)
	devices := deviceStore.NewSQLiteStore(db)
	m := metrics.New()
	hub := ws.NewHub(nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	registry := kioskrt.NewRegistry(kioskrt.Options{
		IdleSeconds:  60,
		TickInterval: time.Hour,
		Publisher:    hub,
		Recorder:     kioskrt.NewRecorder(audits, devices, m),
		Sessions:     m,
		Connections:  hub,
	})
	hub.SetActivityHandler(registry)
	t.Cleanup(func() {
		registry.Close()
		cancel()
	})

	cfg := &config.Config{}
	cfg.Server.CSRFKey = bytes.Repeat([]byte{7}, 32)
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Email.Recipients = []string{"office@example.com"}
	cfg.Kiosk.Banner = "**Benvenuti** in palestra"

	mail := email.NewNoopSender()
	SetEmailSender(mail, "noreply@example.com", "")
	RateLimitPerSecond = perSecond
	AddressLimitPerMinute = perMinute

	h := NewMux(&Services{
		Backend:     be,
		Kiosks:      registry,
		Sockets:     ws.NewHandler(hub, nil),
		AuditStore:  audits,
		DeviceStore: devices,
		Catalog:     catalog,
		Metrics:     m,
		Config:      cfg,
	}, perf.NewCollector(100))

	return &testEnv{handler: h, backend: be, kiosks: registry, audit: audits, devices: devices, mail: mail}
}

// request describes one call against the test mux.
type request struct {
	method string
	path   string
	body   any
	cookie *http.Cookie
	token  string
}

func (e *testEnv) do(t *testing.T, rq request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if rq.body != nil {
		b, err := json.Marshal(rq.body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(rq.method, rq.path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "it-IT,it;q=0.9")
	if rq.cookie != nil {
		req.AddCookie(rq.cookie)
	}
	if rq.token != "" {
		req.Header.Set("Authorization", "Bearer "+rq.token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// deviceCookie returns the kiosk cookie issued by a response.
func deviceCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == deviceCookieName {
			return c
		}
	}
	t.Fatal("no kiosk device cookie issued")
	return nil
}

func decodeState(t *testing.T, rr *httptest.ResponseRecorder) kioskState {
	t.Helper()
	var st kioskState
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, rr.Body.String())
	}
	return st
}

func adminToken(t *testing.T, subject string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func auditFilter(c audit.Category) auditStore.Filter {
	return auditStore.Filter{Category: &c}
}
