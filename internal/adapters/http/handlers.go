package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"restart/internal/adapters/backend"
	"restart/internal/adapters/http/middleware"
	"restart/internal/adapters/i18n"
	"restart/internal/domain/humanerror"
)

// timeNow is a variable for testability.
var timeNow = time.Now

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode_failed", "error", err)
	}
}

// errorBody is the JSON shape of every handled error.
type errorBody struct {
	Error   string `json:"error"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeError responds with a message key and its localized text.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error, key string) {
	body := errorBody{Error: err.Error(), Key: key}
	if key != "" {
		body.Message = localizer(r).T(key)
	}
	writeJSON(w, status, body)
}

// backendError maps a failed backend call to a response. Remote rejections
// are translated for the user; transport failures are hidden.
func backendError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, backend.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, errors.New("not found"), "")
		return
	}
	var remote *backend.RemoteError
	if !errors.As(err, &remote) {
		slog.Error("backend_unavailable", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadGateway, errors.New("backend unavailable"), humanerror.KeyUnknown)
		return
	}
	status := http.StatusUnprocessableEntity
	switch remote.Status {
	case http.StatusUnauthorized:
		status = http.StatusUnauthorized
	case http.StatusForbidden:
		status = http.StatusForbidden
	case http.StatusConflict:
		status = http.StatusConflict
	}
	slog.Warn("backend_rejected", "path", r.URL.Path, "status", remote.Status, "code", remote.Code)
	writeError(w, r, status, errors.New(remote.Message), humanerror.Translate(err))
}

// localizer picks the catalog language from Accept-Language.
func localizer(r *http.Request) *i18n.Localizer {
	return services.Catalog.Localizer(i18n.DetectLanguage(r.Header.Get("Accept-Language")))
}

// actorID returns the verified caller for audit entries.
func actorID(r *http.Request) string {
	if p, ok := middleware.GetPrincipal(r.Context()); ok {
		return p.UserID
	}
	return ""
}
