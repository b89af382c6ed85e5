package web

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"restart/internal/application/projections"
	"restart/internal/domain/audit"
)

// maxDeviceLabel bounds an operator-facing device label.
const maxDeviceLabel = 80

// handleAdminAudit handles GET /api/admin/audit?category&action&device&since&limit
// PRE: caller is a verified admin
// POST: returns the newest events first together with the known devices
func handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := projections.GetAuditLogQuery{
		Category: q.Get("category"),
		Action:   q.Get("action"),
		DeviceID: q.Get("device"),
	}
	if s := q.Get("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			http.Error(w, "since must be a positive duration such as 24h", http.StatusBadRequest)
			return
		}
		query.Since = d
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		query.Limit = n
	}

	res, err := projections.QueryGetAuditLog(r.Context(), query, projections.GetAuditLogDeps{
		Store:   services.AuditStore,
		Devices: services.DeviceStore,
		Now:     timeNow,
	})
	if errors.Is(err, audit.ErrUnknownCategory) || errors.Is(err, audit.ErrUnknownAction) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAdminDevices handles GET /api/admin/devices
func handleAdminDevices(w http.ResponseWriter, r *http.Request) {
	list, err := services.DeviceStore.List(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	type deviceView struct {
		ID          string    `json:"id"`
		Label       string    `json:"label"`
		UserAgent   string    `json:"user_agent"`
		LastSeenAt  time.Time `json:"last_seen_at"`
		Connections int       `json:"connections"`
	}
	out := make([]deviceView, 0, len(list))
	for _, d := range list {
		v := deviceView{ID: d.ID, Label: d.Label, UserAgent: d.UserAgent, LastSeenAt: d.LastSeenAt}
		if services.Sockets != nil {
			v.Connections = services.Sockets.Connections(d.ID)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// handleAdminRenameDevice handles PATCH /api/admin/devices/{id}
func handleAdminRenameDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	label := strings.TrimSpace(req.Label)
	if len(label) > maxDeviceLabel {
		http.Error(w, "label too long", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	if err := services.DeviceStore.Rename(r.Context(), id, label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
		internalError(w, err)
		return
	}
	if services.AuditStore != nil {
		ev := audit.NewEvent(timeNow(), audit.CategoryAdmin, audit.ActionDeviceRenamed).
			WithActor(actorID(r)).
			WithDevice(id).
			WithDescription(label)
		if err := services.AuditStore.Save(r.Context(), ev); err != nil {
			internalError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminPerf handles GET /api/admin/perf?window=15m
func handleAdminPerf(w http.ResponseWriter, r *http.Request) {
	if perfCollector == nil {
		http.Error(w, "perf collection disabled", http.StatusNotFound)
		return
	}
	window := 15 * time.Minute
	if s := r.URL.Query().Get("window"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			http.Error(w, "window must be a positive duration", http.StatusBadRequest)
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, perfCollector.Snapshot(timeNow().Add(-window), 10))
}

// handleHealth handles GET /api/health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": services.Kiosks.Len(),
	})
}
