package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"restart/internal/adapters/http/perf"
	"restart/internal/domain/hours"
	"restart/internal/domain/kiosk"
)

// DefaultTimeout bounds a single backend call when none is configured.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// ErrNoAccessToken is returned by admin calls made without a caller token.
var ErrNoAccessToken = errors.New("not authenticated: no access token")

// CallObserver receives the outcome of every backend call.
type CallObserver func(call string, status int, d time.Duration)

// Config configures a PostgRESTClient.
type Config struct {
	URL        string
	AnonKey    string
	ServiceKey string
	Timeout    time.Duration
	HTTPClient *http.Client
	Collector  *perf.Collector
	Observe    CallObserver
}

// PostgRESTClient implements Client over the PostgREST HTTP API. Account
// provisioning goes to the auth admin API of the same project.
type PostgRESTClient struct {
	base       string
	authBase   string
	anonKey    string
	serviceKey string
	timeout    time.Duration
	http       *http.Client
	collector  *perf.Collector
	observe    CallObserver
}

var _ Client = (*PostgRESTClient)(nil)

// NewPostgRESTClient creates a client for the project at cfg.URL.
// PRE: cfg.URL and cfg.AnonKey are non-empty
// POST: returns a ready client; nil HTTPClient means a default one
func NewPostgRESTClient(cfg Config) *PostgRESTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &PostgRESTClient{
		base:       strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		authBase:   strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		timeout:    timeout,
		http:       hc,
		collector:  cfg.Collector,
		observe:    cfg.Observe,
	}
}

// authMode selects the bearer token sent with a call.
type authMode int

const (
	authAnon    authMode = iota // public kiosk functions
	authCaller                  // the administrator's own token from ctx
	authService                 // privileged writes the caller cannot make
)

type call struct {
	method string
	path   string
	label  string
	query  url.Values
	body   any
	auth   authMode
	prefer string
	// accounts targets the auth admin API instead of PostgREST.
	accounts bool
}

// do executes one call and decodes a 2xx JSON body into out when out is non-nil.
func (c *PostgRESTClient) do(ctx context.Context, cl call, out any) error {
	bearer, err := c.bearer(ctx, cl.auth)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", cl.label, err)
		}
		body = bytes.NewReader(data)
	}

	target := c.base + cl.path
	if cl.accounts {
		target = c.authBase + cl.path
	}
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return fmt.Errorf("%s: %w", cl.label, err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.prefer != "" {
		req.Header.Set("Prefer", cl.prefer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(cl.label, http.StatusBadGateway, start)
		return fmt.Errorf("%s: %w", cl.label, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.record(cl.label, resp.StatusCode, start)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", cl.label, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := decodeRemoteError(resp.StatusCode, data)
		slog.Warn("backend_error", "call", cl.label, "status", resp.StatusCode, "code", remote.Code, "message", remote.Message)
		return fmt.Errorf("%s: %w", cl.label, remote)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode: %w", cl.label, err)
	}
	return nil
}

func (c *PostgRESTClient) bearer(ctx context.Context, mode authMode) (string, error) {
	switch mode {
	case authCaller:
		tok, ok := AccessToken(ctx)
		if !ok {
			return "", ErrNoAccessToken
		}
		return tok, nil
	case authService:
		if c.serviceKey == "" {
			return "", errors.New("backend: service key not configured")
		}
		return c.serviceKey, nil
	default:
		return c.anonKey, nil
	}
}

func (c *PostgRESTClient) record(label string, status int, start time.Time) {
	d := time.Since(start)
	if c.collector != nil {
		c.collector.Record(perf.Entry{
			Kind:       perf.KindCall,
			Path:       label,
			StatusCode: status,
			DurationMs: float64(d.Microseconds()) / 1000.0,
			Timestamp:  start,
		})
	}
	if c.observe != nil {
		c.observe(label, status, d)
	}
}

// rpc invokes a stored function.
func (c *PostgRESTClient) rpc(ctx context.Context, fn string, args any, auth authMode, out any) error {
	if args == nil {
		args = struct{}{}
	}
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/rpc/" + fn,
		label:  fn,
		body:   args,
		auth:   auth,
	}, out)
}

// --- Kiosk ---

type identityRow struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	HasPin   bool   `json:"has_pin"`
	Role     string `json:"role"`
}

// ListKioskIdentities returns the public roster.
// POST: admins are still present; the terminal filters them
func (c *PostgRESTClient) ListKioskIdentities(ctx context.Context) ([]kiosk.Identity, error) {
	var rows []identityRow
	if err := c.rpc(ctx, "list_istruttori_public", nil, authAnon, &rows); err != nil {
		return nil, err
	}
	out := make([]kiosk.Identity, 0, len(rows))
	for _, r := range rows {
		out = append(out, kiosk.Identity{ID: r.ID, DisplayName: r.FullName, HasPin: r.HasPin, Role: r.Role})
	}
	return out, nil
}

// VerifyPin checks a PIN against the stored hash.
func (c *PostgRESTClient) VerifyPin(ctx context.Context, identityID, pin string) (bool, error) {
	var ok *bool
	args := map[string]any{"p_user": identityID, "p_pin": pin}
	if err := c.rpc(ctx, "verify_pin", args, authAnon, &ok); err != nil {
		return false, err
	}
	return ok != nil && *ok, nil
}

// RecentPrefs returns the identity's last room and recent activities.
// POST: a null result yields empty preferences
func (c *PostgRESTClient) RecentPrefs(ctx context.Context, identityID string) (kiosk.RecentPreferences, error) {
	var wire *struct {
		LastRoom         *string  `json:"last_sala"`
		RecentActivities []string `json:"recent_corsi"`
	}
	if err := c.rpc(ctx, "recent_prefs", map[string]any{"p_user": identityID}, authAnon, &wire); err != nil {
		return kiosk.RecentPreferences{}, err
	}
	if wire == nil {
		return kiosk.RecentPreferences{}, nil
	}
	return kiosk.RecentPreferences{LastRoom: wire.LastRoom, RecentActivities: wire.RecentActivities}, nil
}

// AddKioskEntry submits an entry, re-authorized by the PIN server-side.
func (c *PostgRESTClient) AddKioskEntry(ctx context.Context, e KioskEntry) error {
	args := map[string]any{
		"p_user":         e.IdentityID,
		"p_pin":          e.Pin,
		"p_giorno":       e.Entry.Day,
		"p_ora_start":    e.Entry.Start,
		"p_ora_end":      e.Entry.End,
		"p_sala":         e.Entry.Room,
		"p_corso":        e.Entry.Activity,
		"p_sostituzione": e.Entry.Substitution,
		"p_note":         e.Entry.NoteOrNil(),
	}
	return c.rpc(ctx, "add_ora_kiosk", args, authAnon, nil)
}

// --- Dashboard ---

// hourArgs are the add_ora arguments shared by both dashboard entry points.
func hourArgs(e hours.NewEntry) map[string]any {
	return map[string]any{
		"p_giorno":       e.Day,
		"p_ora_start":    e.Start,
		"p_ora_end":      e.End,
		"p_sala":         e.Room,
		"p_corso":        e.Activity,
		"p_sostituzione": e.Substitution,
		"p_note":         e.NoteOrNil(),
	}
}

// AddHour logs an entry for the caller; it waits for approval.
func (c *PostgRESTClient) AddHour(ctx context.Context, e hours.NewEntry) error {
	return c.rpc(ctx, "add_ora", hourArgs(e), authCaller, nil)
}

// ListDayHours returns the entries of one instructor on one day.
// POST: ordered by start; times are HH:MM
func (c *PostgRESTClient) ListDayHours(ctx context.Context, userID, day string) ([]hours.Entry, error) {
	q := url.Values{}
	q.Set("select", hourColumns)
	q.Set("giorno", "eq."+day)
	q.Set("user_id", "eq."+userID)
	q.Set("order", "ora_start.asc")

	var entries []hours.Entry
	if err := c.do(ctx, call{method: http.MethodGet, path: "/ore", label: "select_ore_day", query: q, auth: authCaller}, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Start = clock(entries[i].Start)
		entries[i].End = clock(entries[i].End)
	}
	return entries, nil
}

// --- Admin ---

// IsAdmin reports whether the caller holds the admin role.
func (c *PostgRESTClient) IsAdmin(ctx context.Context) (bool, error) {
	var ok *bool
	if err := c.rpc(ctx, "is_admin", nil, authCaller, &ok); err != nil {
		return false, err
	}
	return ok != nil && *ok, nil
}

// ListInstructors returns every instructor with their email.
func (c *PostgRESTClient) ListInstructors(ctx context.Context) ([]hours.Instructor, error) {
	var out []hours.Instructor
	if err := c.rpc(ctx, "list_istruttori", nil, authCaller, &out); err != nil {
		return nil, err
	}
	return out, nil
}

const hourColumns = "id,user_id,giorno,ora_start,ora_end,sala,corso,sostituzione,note,status,reject_reason"

// ListHours reads entries matching f and attaches instructor names.
// PRE: f is valid
// POST: entries ordered by day desc then start asc; times are HH:MM
func (c *PostgRESTClient) ListHours(ctx context.Context, f hours.ListFilter) ([]hours.Entry, error) {
	q := url.Values{}
	q.Set("select", hourColumns)
	q.Set("order", "giorno.desc,ora_start.asc")
	if f.From != "" {
		q.Add("giorno", "gte."+f.From)
	}
	if f.To != "" {
		q.Add("giorno", "lte."+f.To)
	}
	if f.UserID != "" {
		q.Set("user_id", "eq."+f.UserID)
	}
	if s := f.EffectiveStatus(); s != "" {
		q.Set("status", "eq."+string(s))
	}

	var entries []hours.Entry
	if err := c.do(ctx, call{method: http.MethodGet, path: "/ore", label: "select_ore", query: q, auth: authCaller}, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Start = clock(entries[i].Start)
		entries[i].End = clock(entries[i].End)
	}

	names, err := c.profileNames(ctx, entries)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if n, ok := names[entries[i].UserID]; ok && n != "" {
			entries[i].Instructor = n
		} else {
			entries[i].Instructor = shortID(entries[i].UserID)
		}
	}
	return entries, nil
}

func (c *PostgRESTClient) profileNames(ctx context.Context, entries []hours.Entry) (map[string]string, error) {
	seen := map[string]bool{}
	var quoted []string
	for _, e := range entries {
		if e.UserID == "" || seen[e.UserID] {
			continue
		}
		seen[e.UserID] = true
		quoted = append(quoted, `"`+e.UserID+`"`)
	}
	names := make(map[string]string, len(quoted))
	if len(quoted) == 0 {
		return names, nil
	}
	q := url.Values{}
	q.Set("select", "id,full_name")
	q.Set("id", "in.("+strings.Join(quoted, ",")+")")
	var rows []struct {
		ID       string  `json:"id"`
		FullName *string `json:"full_name"`
	}
	if err := c.do(ctx, call{method: http.MethodGet, path: "/profiles", label: "select_profiles", query: q, auth: authCaller}, &rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.FullName != nil {
			names[r.ID] = *r.FullName
		}
	}
	return names, nil
}

// ApproveHour approves one entry.
func (c *PostgRESTClient) ApproveHour(ctx context.Context, id string) error {
	return c.rpc(ctx, "approve_ora", map[string]any{"p_id": id}, authCaller, nil)
}

// RejectHour rejects one entry; a nil reason is stored as NULL.
func (c *PostgRESTClient) RejectHour(ctx context.Context, id string, reason *string) error {
	return c.rpc(ctx, "reject_ora", map[string]any{"p_id": id, "p_reason": reason}, authCaller, nil)
}

// ApproveMany approves several entries in one call.
func (c *PostgRESTClient) ApproveMany(ctx context.Context, ids []string) error {
	return c.rpc(ctx, "approve_many", map[string]any{"p_ids": ids}, authCaller, nil)
}

// RejectMany rejects several entries in one call.
func (c *PostgRESTClient) RejectMany(ctx context.Context, ids []string, reason *string) error {
	return c.rpc(ctx, "reject_many", map[string]any{"p_ids": ids, "p_reason": reason}, authCaller, nil)
}

// DeleteHour removes one entry.
func (c *PostgRESTClient) DeleteHour(ctx context.Context, id string) error {
	return c.rpc(ctx, "delete_ora", map[string]any{"p_id": id}, authCaller, nil)
}

// ReportRange returns hours per instructor and room between start and end.
// An empty userID reports every instructor.
func (c *PostgRESTClient) ReportRange(ctx context.Context, start, end, userID string) ([]hours.ReportRow, error) {
	var user *string
	if userID != "" {
		user = &userID
	}
	args := map[string]any{"p_start": start, "p_end": end, "p_user": user}
	var rows []hours.ReportRow
	if err := c.rpc(ctx, "report_range_filtered", args, authCaller, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CloseMonth locks a calendar month.
func (c *PostgRESTClient) CloseMonth(ctx context.Context, m hours.MonthClose) error {
	return c.rpc(ctx, "chiudi_mese", map[string]any{"p_year": m.Year, "p_month": m.Month}, authCaller, nil)
}

// UnlockPeriod reopens a span of days.
func (c *PostgRESTClient) UnlockPeriod(ctx context.Context, u hours.Unlock) error {
	return c.rpc(ctx, "unlock_period", map[string]any{"p_start": u.Start, "p_end": u.End}, authCaller, nil)
}

// ListLockedPeriods returns locked periods, newest first.
func (c *PostgRESTClient) ListLockedPeriods(ctx context.Context) ([]hours.LockedPeriod, error) {
	q := url.Values{}
	q.Set("select", "id,period_start,period_end,created_at")
	q.Set("order", "period_start.desc")
	var out []hours.LockedPeriod
	if err := c.do(ctx, call{method: http.MethodGet, path: "/periodi_blocco", label: "select_periodi_blocco", query: q, auth: authCaller}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetPinHash stores a bcrypt hash on the identity's profile.
// PRE: hash is a bcrypt hash
// POST: returns ErrNotFound when no profile matched
func (c *PostgRESTClient) SetPinHash(ctx context.Context, identityID, hash string) error {
	q := url.Values{}
	q.Set("id", "eq."+identityID)
	q.Set("select", "id")
	var updated []struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, call{
		method: http.MethodPatch,
		path:   "/profiles",
		label:  "update_profiles_pin",
		query:  q,
		body:   map[string]string{"pin_hash": hash},
		auth:   authService,
		prefer: "return=representation",
	}, &updated)
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return ErrNotFound
	}
	return nil
}

// AddHourForUser logs an already approved entry for e.UserID.
// PRE: e.UserID is non-empty
func (c *PostgRESTClient) AddHourForUser(ctx context.Context, e hours.NewEntry) error {
	args := hourArgs(e)
	args["p_user"] = e.UserID
	return c.rpc(ctx, "add_ora_for_user", args, authCaller, nil)
}

// CreateInstructor creates a confirmed account and its instructor profile,
// returning the new user id.
// POST: on a profile failure the account exists and the id is returned with the error
func (c *PostgRESTClient) CreateInstructor(ctx context.Context, n hours.NewInstructor) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/admin/users",
		label:  "auth_create_user",
		body: map[string]any{
			"email":         n.Email,
			"password":      n.Password,
			"email_confirm": true,
			"user_metadata": map[string]string{"full_name": n.FullName},
		},
		auth:     authService,
		accounts: true,
	}, &created)
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("auth_create_user: no user id in response")
	}

	q := url.Values{}
	q.Set("on_conflict", "id")
	err = c.do(ctx, call{
		method: http.MethodPost,
		path:   "/profiles",
		label:  "upsert_profiles",
		query:  q,
		body:   map[string]string{"id": created.ID, "full_name": n.FullName, "ruolo": "istruttore"},
		auth:   authService,
		prefer: "resolution=merge-duplicates",
	}, nil)
	if err != nil {
		return created.ID, fmt.Errorf("profile for %s: %w", shortID(created.ID), err)
	}
	return created.ID, nil
}

// DeleteInstructor removes the instructor's entries, profile and account,
// in that order.
func (c *PostgRESTClient) DeleteInstructor(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("user_id", "eq."+id)
	if err := c.do(ctx, call{method: http.MethodDelete, path: "/ore", label: "delete_ore_user", query: q, auth: authService}, nil); err != nil {
		return err
	}
	q = url.Values{}
	q.Set("id", "eq."+id)
	if err := c.do(ctx, call{method: http.MethodDelete, path: "/profiles", label: "delete_profiles", query: q, auth: authService}, nil); err != nil {
		return err
	}
	err := c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/admin/users/" + url.PathEscape(id),
		label:    "auth_delete_user",
		auth:     authService,
		accounts: true,
	}, nil)
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}

// SetPassword replaces an account's password.
func (c *PostgRESTClient) SetPassword(ctx context.Context, id, password string) error {
	err := c.do(ctx, call{
		method:   http.MethodPut,
		path:     "/admin/users/" + url.PathEscape(id),
		label:    "auth_update_user",
		body:     map[string]string{"password": password},
		auth:     authService,
		accounts: true,
	}, nil)
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}

// clock trims a Postgres time ("10:00:00") to HH:MM.
func clock(t string) string {
	if len(t) >= 5 && t[2] == ':' {
		return t[:5]
	}
	return t
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
