package web

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"restart/internal/adapters/export"
	"restart/internal/application/listutil"
	"restart/internal/application/orchestrators"
	"restart/internal/application/projections"
	"restart/internal/domain/audit"
	"restart/internal/domain/dates"
	exportDomain "restart/internal/domain/export"
	"restart/internal/domain/hours"
	"restart/internal/domain/kiosk"
)

func adminDeps() orchestrators.AdminDeps {
	return orchestrators.AdminDeps{Backend: services.Backend, Audit: services.AuditStore, Now: timeNow}
}

func hourListDeps() projections.GetHourListDeps {
	return projections.GetHourListDeps{Backend: services.Backend}
}

// adminValidation reports errors the caller can fix, as opposed to backend failures.
func adminValidation(err error) (string, bool) {
	if key, ok := entryValidation(err); ok {
		return key, true
	}
	switch {
	case errors.Is(err, hours.ErrInstructorName),
		errors.Is(err, hours.ErrInstructorEmail),
		errors.Is(err, hours.ErrPasswordTooShort):
		return "admin.instructor_invalid", true
	case errors.Is(err, orchestrators.ErrDeleteSelf):
		return "admin.delete_self", true
	case errors.Is(err, hours.ErrNoIDs):
		return "admin.no_selection", true
	case errors.Is(err, hours.ErrRangeBackwards), errors.Is(err, dates.ErrRangeBackwards):
		return "admin.unlock_backwards", true
	case errors.Is(err, kiosk.ErrPinFormat):
		return "admin.pin_format", true
	case errors.Is(err, hours.ErrEmptyID),
		errors.Is(err, hours.ErrReasonTooLong),
		errors.Is(err, hours.ErrInvalidStatus),
		errors.Is(err, hours.ErrInvalidMonth),
		errors.Is(err, hours.ErrInvalidYear),
		errors.Is(err, dates.ErrInvalidDay),
		errors.Is(err, projections.ErrUnknownPeriod),
		errors.Is(err, exportDomain.ErrUnknownFormat):
		return "error.invalid_value", true
	}
	return "", false
}

// adminError writes validation errors as 400 and everything else as a backend error.
func adminError(w http.ResponseWriter, r *http.Request, err error) {
	if key, ok := adminValidation(err); ok {
		writeError(w, r, http.StatusBadRequest, err, key)
		return
	}
	backendError(w, r, err)
}

// handleAdminInstructors handles GET /api/admin/instructors
func handleAdminInstructors(w http.ResponseWriter, r *http.Request) {
	list, err := projections.QueryGetInstructors(r.Context(), hourListDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instructors": list})
}

// handleAdminHours handles GET /api/admin/hours?from&to&user&status&only_pending&sort&dir&page&per_page
// Without page parameters every matching entry is returned.
func handleAdminHours(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	onlyPending, _ := strconv.ParseBool(q.Get("only_pending"))
	filter := hours.ListFilter{
		From:        q.Get("from"),
		To:          q.Get("to"),
		UserID:      q.Get("user"),
		Status:      hours.Status(q.Get("status")),
		OnlyPending: onlyPending,
	}
	query := projections.GetHourListQuery{
		Filter: filter,
		Sort:   listutil.ParseSortParams(q, projections.HourSortColumns),
	}
	if q.Has("page") || q.Has("per_page") {
		query.Page = listutil.ParsePageParams(q)
	}
	res, err := projections.QueryGetHourList(r.Context(), query, hourListDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAdminDecideHour handles POST /api/admin/hours/{id}/approve and /reject
func handleAdminDecideHour(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reason string `json:"reason"`
		}
		if r.ContentLength != 0 {
			if err := strictDecode(w, r, &req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}
		err := orchestrators.ExecuteDecideHour(r.Context(), orchestrators.DecideHourInput{
			ActorID: actorID(r),
			ID:      r.PathValue("id"),
			Approve: approve,
			Reason:  req.Reason,
		}, adminDeps())
		if err != nil {
			adminError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleAdminBulkDecide handles POST /api/admin/hours/approve and /reject
func handleAdminBulkDecide(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req hours.BulkDecision
		if err := strictDecode(w, r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		n, err := orchestrators.ExecuteBulkDecide(r.Context(), orchestrators.BulkDecideInput{
			ActorID:  actorID(r),
			Decision: req,
			Approve:  approve,
		}, adminDeps())
		if err != nil {
			adminError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": n})
	}
}

// handleAdminDeleteHour handles DELETE /api/admin/hours/{id}
func handleAdminDeleteHour(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteHour(r.Context(), orchestrators.DeleteHourInput{
		ActorID: actorID(r),
		ID:      r.PathValue("id"),
	}, adminDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminReport handles GET /api/admin/report?from&to&period&user&format
func handleAdminReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := exportDomain.ParseFormat(q.Get("format"))
	if err != nil {
		adminError(w, r, err)
		return
	}
	res, err := projections.QueryGetReport(r.Context(), projections.GetReportQuery{
		From:   q.Get("from"),
		To:     q.Get("to"),
		Period: q.Get("period"),
		UserID: q.Get("user"),
	}, projections.GetReportDeps{Backend: services.Backend, Now: timeNow})
	if err != nil {
		adminError(w, r, err)
		return
	}

	if format == exportDomain.FormatJSON {
		writeJSON(w, http.StatusOK, res)
		return
	}

	table := exportDomain.ReportTable(res.Rows)
	var buf bytes.Buffer
	switch format {
	case exportDomain.FormatCSV:
		err = export.WriteCSV(&buf, table)
	case exportDomain.FormatXLSX:
		err = export.WriteXLSX(&buf, table)
	}
	if err != nil {
		internalError(w, err)
		return
	}
	filename := exportDomain.Filename(res.Range.Start, res.Range.End, format)
	if services.AuditStore != nil {
		ev := audit.NewEvent(timeNow(), audit.CategoryAdmin, audit.ActionExport).
			WithActor(actorID(r)).
			WithResource("report", filename).
			WithDetail("format", format).
			WithDetail("rows", strconv.Itoa(len(res.Rows)))
		if err := services.AuditStore.Save(r.Context(), ev); err != nil {
			slog.Warn("admin_event", "event", "export_audit_failed", "error", err)
		}
	}
	w.Header().Set("Content-Type", exportDomain.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

// handleAdminPeriods handles GET /api/admin/periods
func handleAdminPeriods(w http.ResponseWriter, r *http.Request) {
	list, err := projections.QueryGetLockedPeriods(r.Context(), hourListDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": list})
}

// handleAdminCloseMonth handles POST /api/admin/periods/close
// POST: the month is locked; the summary email is best effort
func handleAdminCloseMonth(w http.ResponseWriter, r *http.Request) {
	var req hours.MonthClose
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		adminError(w, r, err)
		return
	}
	loc := localizer(r)
	res, err := orchestrators.ExecuteCloseMonth(r.Context(), orchestrators.CloseMonthInput{
		ActorID:    actorID(r),
		Month:      req,
		Recipients: services.Config.Email.Recipients,
		Subject:    loc.TWithParams("admin.report_subject", map[string]string{"month": req.Label()}),
	}, orchestrators.CloseMonthDeps{
		AdminDeps: adminDeps(),
		Email:     emailSender,
		From:      emailFromAddress,
		ReplyTo:   emailReplyTo,
	})
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     loc.T("admin.month_closed"),
		"label":       res.Label,
		"rows":        res.Rows,
		"total_hours": res.TotalHours,
		"emailed":     res.Emailed,
	})
}

// handleAdminUnlock handles POST /api/admin/periods/unlock
func handleAdminUnlock(w http.ResponseWriter, r *http.Request) {
	var req hours.Unlock
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := orchestrators.ExecuteUnlockPeriod(r.Context(), orchestrators.UnlockPeriodInput{
		ActorID: actorID(r),
		Period:  hours.Unlock{Start: strings.TrimSpace(req.Start), End: strings.TrimSpace(req.End)},
	}, adminDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": localizer(r).T("admin.period_unlocked")})
}

// handleAdminSetPin handles POST /api/admin/instructors/{id}/pin
func handleAdminSetPin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pin string `json:"pin"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := orchestrators.ExecuteSetPin(r.Context(), orchestrators.SetPinInput{
		ActorID:    actorID(r),
		IdentityID: r.PathValue("id"),
		Pin:        req.Pin,
	}, adminDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": localizer(r).T("admin.pin_saved")})
}

// handleAdminAddHour handles POST /api/admin/hours
// POST: the entry is stored approved for the named instructor
func handleAdminAddHour(w http.ResponseWriter, r *http.Request) {
	var req hours.NewEntry
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := orchestrators.ExecuteAddHourForUser(r.Context(), orchestrators.AddHourForUserInput{
		ActorID: actorID(r),
		Entry:   req,
	}, adminDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": localizer(r).T("hours.added_approved")})
}

// handleAdminCreateInstructor handles POST /api/admin/instructors
// A PIN that could not be stored leaves the account in place and is reported as a warning.
func handleAdminCreateInstructor(w http.ResponseWriter, r *http.Request) {
	var req hours.NewInstructor
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := orchestrators.ExecuteCreateInstructor(r.Context(), orchestrators.CreateInstructorInput{
		ActorID:    actorID(r),
		Instructor: req,
	}, adminDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	loc := localizer(r)
	body := map[string]any{"id": res.ID, "message": loc.T("admin.instructor_created")}
	if res.PinErr != nil {
		body["warning"] = loc.T("admin.instructor_pin_warning")
	}
	writeJSON(w, http.StatusCreated, body)
}

// handleAdminDeleteInstructor handles DELETE /api/admin/instructors/{id}
func handleAdminDeleteInstructor(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteInstructor(r.Context(), orchestrators.DeleteInstructorInput{
		ActorID: actorID(r),
		ID:      r.PathValue("id"),
	}, adminDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": localizer(r).T("admin.instructor_deleted")})
}

// handleAdminSetPassword handles POST /api/admin/instructors/{id}/password
func handleAdminSetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := orchestrators.ExecuteSetPassword(r.Context(), orchestrators.SetPasswordInput{
		ActorID:  actorID(r),
		ID:       r.PathValue("id"),
		Password: req.Password,
	}, adminDeps())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": localizer(r).T("admin.password_saved")})
}
