package web

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	kioskrt "restart/internal/adapters/kiosk"
	"restart/internal/application/orchestrators"
	"restart/internal/domain/dates"
	"restart/internal/domain/humanerror"
	"restart/internal/domain/kiosk"
)

// deviceCookieName identifies the kiosk terminal a browser drives.
const deviceCookieName = "restart_kiosk_device"

// errUnknownDevice answers kiosk calls from browsers that never loaded the page
// or whose device was evicted.
var errUnknownDevice = errors.New("unknown kiosk device")

// deviceCookieMaxAge is the longest lifetime browsers accept (400 days).
const deviceCookieMaxAge = 400 * 24 * 60 * 60

//go:embed templates/kiosk.html
var kioskPageSource string

var kioskPage = template.Must(template.New("kiosk").Parse(kioskPageSource))

// deviceIDFromCookie returns the device id carried by the request, if valid.
func deviceIDFromCookie(r *http.Request) string {
	c, err := r.Cookie(deviceCookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// registerDevice resolves the device of a page load, issuing a cookie to new
// browsers and creating the terminal on first use. Only page loads register
// devices.
// POST: the returned device has attempted a roster load at least once
func registerDevice(w http.ResponseWriter, r *http.Request) *kioskrt.Device {
	id := deviceIDFromCookie(r)
	if id == "" {
		id = generateID()
		http.SetCookie(w, &http.Cookie{
			Name:     deviceCookieName,
			Value:    id,
			HttpOnly: true,
			Secure:   services.Config.Production(),
			SameSite: http.SameSiteLaxMode,
			Path:     "/",
			MaxAge:   deviceCookieMaxAge,
		})
		slog.Info("kiosk_event", "event", "device_issued", "device_id", id)
	}
	dev, created := services.Kiosks.Device(id)
	if created && services.DeviceStore != nil {
		if err := services.DeviceStore.Touch(r.Context(), id, r.UserAgent(), timeNow()); err != nil {
			slog.Warn("kiosk_event", "event", "device_touch_failed", "device_id", id, "error", err)
		}
	}
	bootKiosk(r.Context(), dev, false)
	return dev
}

// kioskDevice resolves the registered device of an API call. Without one it
// answers 409 and the page reloads to register again.
func kioskDevice(w http.ResponseWriter, r *http.Request) (*kioskrt.Device, bool) {
	id := deviceIDFromCookie(r)
	if id != "" {
		if dev, ok := services.Kiosks.Lookup(id); ok {
			return dev, true
		}
	}
	w.Header().Set("X-Kiosk-Device", "unknown")
	writeError(w, r, http.StatusConflict, errUnknownDevice, "")
	return nil, false
}

func bootKiosk(ctx context.Context, dev *kioskrt.Device, force bool) error {
	err := orchestrators.ExecuteBootKiosk(ctx, orchestrators.BootKioskInput{Force: force}, orchestrators.BootKioskDeps{
		Terminal: dev,
		Backend:  services.Backend,
	})
	if err != nil {
		slog.Warn("kiosk_event", "event", "roster_unavailable", "device_id", dev.ID(), "error", err)
	}
	return err
}

// notificationView is a toast with its localized text.
type notificationView struct {
	Kind kiosk.NotificationKind `json:"kind"`
	Key  string                 `json:"key"`
	Text string                 `json:"text"`
}

// kioskState is the rendered kiosk snapshot returned by every kiosk call.
type kioskState struct {
	kiosk.Snapshot
	Error         string             `json:"error,omitempty"`
	DayLabel      string             `json:"day_label,omitempty"`
	PinErrorText  string             `json:"pin_error_text,omitempty"`
	FormErrorText string             `json:"form_error_text,omitempty"`
	Messages      []notificationView `json:"messages"`
	Rooms         []string           `json:"rooms"`
	StartOptions  []string           `json:"start_options"`
}

// renderKioskState localizes a device snapshot and drains its toasts.
func renderKioskState(r *http.Request, dev *kioskrt.Device) kioskState {
	loc := localizer(r)
	snap := dev.Snapshot()
	st := kioskState{
		Snapshot: snap,
		Messages: make([]notificationView, 0, len(snap.Notifications)),
		Rooms:    kiosk.Rooms,
	}
	if snap.PinErrorKey != "" {
		st.PinErrorText = loc.T(snap.PinErrorKey)
	}
	if snap.FormErrorKey != "" {
		st.FormErrorText = loc.T(snap.FormErrorKey)
	}
	if snap.Draft != nil {
		st.DayLabel = dates.HumanIT(snap.Draft.Day)
		st.StartOptions = kiosk.TimeOptions()
	}
	for _, n := range snap.Notifications {
		st.Messages = append(st.Messages, notificationView{Kind: n.Kind, Key: n.Key, Text: loc.T(n.Key)})
	}
	return st
}

// kioskStatus maps a kiosk operation error to an HTTP status.
func kioskStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case orchestrators.IsKioskConflict(err):
		return http.StatusConflict
	case errors.Is(err, kiosk.ErrUnknownIdentity):
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}

// respondKiosk writes the device state with the status of err.
func respondKiosk(w http.ResponseWriter, r *http.Request, dev *kioskrt.Device, err error) {
	st := renderKioskState(r, dev)
	if err != nil {
		st.Error = err.Error()
	}
	writeJSON(w, kioskStatus(err), st)
}

// handleKioskPage serves the kiosk screen (GET /kiosk).
func handleKioskPage(w http.ResponseWriter, r *http.Request) {
	dev := registerDevice(w, r)
	loc := localizer(r)

	var banner bytes.Buffer
	if src := strings.TrimSpace(services.Config.Kiosk.Banner); src != "" {
		if err := mdRenderer.Convert([]byte(src), &banner); err != nil {
			slog.Warn("banner_render_failed", "error", err)
			banner.Reset()
		}
	}

	labels := make(map[string]string)
	for _, key := range services.Catalog.Keys(loc.Lang()) {
		if strings.HasPrefix(key, "ui.") {
			labels[strings.TrimPrefix(key, "ui.")] = loc.T(key)
		}
	}

	data := map[string]any{
		"Lang":     loc.Lang(),
		"Title":    loc.T("ui.title"),
		"Banner":   template.HTML(banner.String()),
		"Labels":   labels,
		"DeviceID": dev.ID(),
	}
	var buf bytes.Buffer
	if err := kioskPage.Execute(&buf, data); err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	buf.WriteTo(w)
}

// handleKioskState handles GET /api/kiosk/state
func handleKioskState(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	respondKiosk(w, r, dev, nil)
}

// handleKioskIdentities handles GET /api/kiosk/identities?q=
func handleKioskIdentities(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	var ids []kiosk.Identity
	dev.Do(func(t *kiosk.Terminal) error {
		ids = t.Filter(r.URL.Query().Get("q"))
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]any{"identities": ids})
}

// handleKioskReboot handles POST /api/kiosk/reboot
// POST: the roster is reloaded; a failed load leaves an empty roster and a toast
func handleKioskReboot(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	bootKiosk(r.Context(), dev, true)
	respondKiosk(w, r, dev, nil)
}

// handleKioskSelect handles POST /api/kiosk/select
func handleKioskSelect(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	var req struct {
		IdentityID string `json:"identity_id"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := orchestrators.ExecuteSelectIdentity(r.Context(), orchestrators.SelectIdentityInput{IdentityID: strings.TrimSpace(req.IdentityID)},
		orchestrators.SelectIdentityDeps{Terminal: dev})
	respondKiosk(w, r, dev, err)
}

func verifyPinDeps(dev *kioskrt.Device) orchestrators.VerifyPinDeps {
	return orchestrators.VerifyPinDeps{Terminal: dev, Backend: services.Backend, Now: timeNow}
}

// handleKioskKey handles POST /api/kiosk/pin/key
func handleKioskKey(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	_, err := orchestrators.ExecutePressKey(r.Context(), req.Key, verifyPinDeps(dev))
	respondKiosk(w, r, dev, err)
}

// handleKioskVerify handles POST /api/kiosk/pin/verify
func handleKioskVerify(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	_, err := orchestrators.ExecuteVerifyPin(r.Context(), verifyPinDeps(dev))
	respondKiosk(w, r, dev, err)
}

// handleKioskActivity handles POST /api/kiosk/activity, the fallback for
// pages without a websocket.
func handleKioskActivity(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	var req struct {
		Kind string `json:"kind"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	kind := kiosk.ActivityKind(req.Kind)
	if !kind.Valid() {
		http.Error(w, "unknown activity kind", http.StatusBadRequest)
		return
	}
	reset := dev.Touch(kind)
	writeJSON(w, http.StatusOK, map[string]any{"reset": reset})
}

// draftRequest carries a partial draft edit; absent fields are left alone.
type draftRequest struct {
	Day            *string `json:"day"`
	DayDelta       *int    `json:"day_delta"`
	Room           *string `json:"room"`
	Start          *string `json:"start"`
	End            *string `json:"end"`
	Activity       *string `json:"activity"`
	RecentActivity *string `json:"recent_activity"`
	Substitution   *bool   `json:"substitution"`
	Note           *string `json:"note"`
}

// handleKioskDraft handles PATCH /api/kiosk/draft
func handleKioskDraft(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := orchestrators.ExecuteUpdateDraft(r.Context(), orchestrators.UpdateDraftInput{
		Day:            req.Day,
		DayDelta:       req.DayDelta,
		Room:           req.Room,
		Start:          req.Start,
		End:            req.End,
		Activity:       req.Activity,
		RecentActivity: req.RecentActivity,
		Substitution:   req.Substitution,
		Note:           req.Note,
	}, orchestrators.UpdateDraftDeps{Terminal: dev})
	if err != nil && !orchestrators.IsKioskConflict(err) {
		st := renderKioskState(r, dev)
		st.Error = err.Error()
		st.FormErrorText = localizer(r).T(humanerror.KeyInvalidValue)
		writeJSON(w, http.StatusUnprocessableEntity, st)
		return
	}
	respondKiosk(w, r, dev, err)
}

// handleKioskSubmit handles POST /api/kiosk/submit
// POST: 200 when accepted; 422 with the translated reason when the draft or
// the backend refused it; 409 while a submission is in flight
func handleKioskSubmit(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	res, err := orchestrators.ExecuteSubmitEntry(r.Context(), orchestrators.SubmitEntryDeps{
		Terminal: dev,
		Backend:  services.Backend,
	})
	if err == nil && !res.Accepted {
		// FormErrorText carries the translated reason.
		writeJSON(w, http.StatusUnprocessableEntity, renderKioskState(r, dev))
		return
	}
	respondKiosk(w, r, dev, err)
}

// handleKioskLogout handles POST /api/kiosk/logout
func handleKioskLogout(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	dev.Logout(r.Context())
	respondKiosk(w, r, dev, nil)
}

// handleKioskSocket handles GET /ws/kiosk. The page must belong to a registered device.
func handleKioskSocket(w http.ResponseWriter, r *http.Request) {
	dev, ok := kioskDevice(w, r)
	if !ok {
		return
	}
	services.Sockets.ServeDevice(w, r, dev.ID(), renderKioskState(r, dev))
}
