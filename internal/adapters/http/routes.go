package web

import (
	"net/http"

	"restart/internal/adapters/http/middleware"
)

// route registers h under pattern and labels timed requests with the pattern.
func route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.SetRoute(r.Context(), pattern)
		h(w, r)
	}))
}

// registerRoutes wires kiosk, dashboard, admin and operational endpoints.
// PRE: services is set
func registerRoutes(mux *http.ServeMux) {
	// Kiosk: no login, the device cookie selects the terminal.
	route(mux, "GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/kiosk", http.StatusSeeOther)
	})
	route(mux, "GET /kiosk", handleKioskPage)
	route(mux, "GET /api/kiosk/state", handleKioskState)
	route(mux, "GET /api/kiosk/identities", handleKioskIdentities)
	route(mux, "POST /api/kiosk/reboot", handleKioskReboot)
	route(mux, "POST /api/kiosk/select", handleKioskSelect)
	route(mux, "POST /api/kiosk/pin/key", handleKioskKey)
	route(mux, "POST /api/kiosk/pin/verify", handleKioskVerify)
	route(mux, "POST /api/kiosk/activity", handleKioskActivity)
	route(mux, "PATCH /api/kiosk/draft", handleKioskDraft)
	route(mux, "POST /api/kiosk/submit", handleKioskSubmit)
	route(mux, "POST /api/kiosk/logout", handleKioskLogout)
	route(mux, "GET /ws/kiosk", handleKioskSocket)

	// Dashboard: any signed-in instructor, rows scoped by the backend to the token.
	route(mux, "POST /api/hours", middleware.RequireAuth(http.HandlerFunc(handleAddHour)).ServeHTTP)
	route(mux, "GET /api/hours/mine", middleware.RequireAuth(http.HandlerFunc(handleMyHours)).ServeHTTP)

	// Admin: bearer token verified locally, admin rights confirmed by the backend.
	admin := middleware.RequireAdmin(services.Backend)
	adminRoute := func(pattern string, h http.HandlerFunc) {
		route(mux, pattern, admin(h).ServeHTTP)
	}
	adminRoute("GET /api/admin/instructors", handleAdminInstructors)
	adminRoute("POST /api/admin/instructors", handleAdminCreateInstructor)
	adminRoute("DELETE /api/admin/instructors/{id}", handleAdminDeleteInstructor)
	adminRoute("POST /api/admin/instructors/{id}/pin", handleAdminSetPin)
	adminRoute("POST /api/admin/instructors/{id}/password", handleAdminSetPassword)
	adminRoute("GET /api/admin/hours", handleAdminHours)
	adminRoute("POST /api/admin/hours", handleAdminAddHour)
	adminRoute("POST /api/admin/hours/approve", handleAdminBulkDecide(true))
	adminRoute("POST /api/admin/hours/reject", handleAdminBulkDecide(false))
	adminRoute("POST /api/admin/hours/{id}/approve", handleAdminDecideHour(true))
	adminRoute("POST /api/admin/hours/{id}/reject", handleAdminDecideHour(false))
	adminRoute("DELETE /api/admin/hours/{id}", handleAdminDeleteHour)
	adminRoute("GET /api/admin/report", handleAdminReport)
	adminRoute("GET /api/admin/periods", handleAdminPeriods)
	adminRoute("POST /api/admin/periods/close", handleAdminCloseMonth)
	adminRoute("POST /api/admin/periods/unlock", handleAdminUnlock)
	adminRoute("GET /api/admin/audit", handleAdminAudit)
	adminRoute("GET /api/admin/devices", handleAdminDevices)
	adminRoute("PATCH /api/admin/devices/{id}", handleAdminRenameDevice)
	adminRoute("GET /api/admin/perf", handleAdminPerf)

	// Operations
	route(mux, "GET /api/health", handleHealth)
	if services.Metrics != nil {
		route(mux, "GET /metrics", services.Metrics.Handler().ServeHTTP)
	}
}
