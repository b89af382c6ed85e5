package web

import (
	"errors"
	"net/http"

	"restart/internal/application/orchestrators"
	"restart/internal/application/projections"
	"restart/internal/domain/hours"
	"restart/internal/domain/kiosk"
)

// entryValidation maps hour-entry form errors to message keys. The keys are
// the ones the kiosk form shows for the same mistakes.
func entryValidation(err error) (string, bool) {
	switch {
	case errors.Is(err, kiosk.ErrActivityRequired):
		return "kiosk.activity_required", true
	case errors.Is(err, kiosk.ErrEndBeforeStart):
		return "kiosk.end_before_start", true
	case errors.Is(err, kiosk.ErrNotGridTime):
		return "error.granularity", true
	case errors.Is(err, hours.ErrNoInstructor):
		return "hours.no_instructor", true
	case errors.Is(err, hours.ErrActivityTooLong), errors.Is(err, hours.ErrNoteTooLong):
		return "error.too_long", true
	case errors.Is(err, kiosk.ErrUnknownRoom), errors.Is(err, projections.ErrNoUser):
		return "error.invalid_value", true
	}
	return "", false
}

// dashboardError writes form errors as 400 and everything else as a backend error.
func dashboardError(w http.ResponseWriter, r *http.Request, err error) {
	if key, ok := entryValidation(err); ok {
		writeError(w, r, http.StatusBadRequest, err, key)
		return
	}
	adminError(w, r, err)
}

// handleAddHour handles POST /api/hours
// POST: the entry belongs to the token's owner and waits for approval
func handleAddHour(w http.ResponseWriter, r *http.Request) {
	var req hours.NewEntry
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := orchestrators.ExecuteAddHour(r.Context(), orchestrators.AddHourInput{
		ActorID: actorID(r),
		Entry:   req,
	}, orchestrators.DashboardDeps{Backend: services.Backend, Audit: services.AuditStore, Now: timeNow})
	if err != nil {
		dashboardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": localizer(r).T("hours.added")})
}

// handleMyHours handles GET /api/hours/mine?day=
func handleMyHours(w http.ResponseWriter, r *http.Request) {
	res, err := projections.QueryGetDayHours(r.Context(), projections.GetDayHoursQuery{
		UserID: actorID(r),
		Day:    r.URL.Query().Get("day"),
	}, projections.GetDayHoursDeps{Backend: services.Backend, Now: timeNow})
	if err != nil {
		dashboardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
