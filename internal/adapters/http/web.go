package web

import (
	"net/http"
	"net/url"
	"time"

	"restart/internal/adapters/backend"
	"restart/internal/adapters/email"
	"restart/internal/adapters/http/middleware"
	"restart/internal/adapters/http/perf"
	"restart/internal/adapters/i18n"
	kioskrt "restart/internal/adapters/kiosk"
	"restart/internal/adapters/metrics"
	auditStore "restart/internal/adapters/storage/audit"
	deviceStore "restart/internal/adapters/storage/device"
	"restart/internal/adapters/ws"
	"restart/internal/config"
)

// Services holds every dependency of the HTTP handlers.
type Services struct {
	Backend     backend.Client
	Kiosks      *kioskrt.Registry
	Sockets     *ws.Handler
	AuditStore  auditStore.Store
	DeviceStore deviceStore.Store
	Catalog     *i18n.Catalog
	Metrics     *metrics.Metrics
	Config      *config.Config
}

// Global services instance (set by NewMux)
var services *Services

// RateLimitPerSecond controls the per-client rate limit. Tests can increase this.
var RateLimitPerSecond = 20

// AddressLimitPerMinute bounds PIN checks and kiosk calls without a known
// device per remote address, however many cookies the caller presents.
var AddressLimitPerMinute = 30

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// Global email sender instance (set by SetEmailSender)
var emailSender email.Sender

// Email configuration
var emailFromAddress string
var emailReplyTo string

// SetEmailSender sets the global email sender for the application.
func SetEmailSender(sender email.Sender, from, replyTo string) {
	emailSender = sender
	emailFromAddress = from
	emailReplyTo = replyTo
}

// NewMux wires HTTP handlers for the app.
// PRE: s.Config, s.Backend, s.Kiosks and s.Catalog are set
func NewMux(s *Services, collector *perf.Collector) http.Handler {
	services = s
	perfCollector = collector
	cfg := s.Config

	mux := http.NewServeMux()
	registerRoutes(mux)

	// Per-client budget, registered kiosks keyed by device cookie (OWASP A04)
	limiter := middleware.NewRateLimiter(RateLimitPerSecond, time.Second)
	addressLimiter := middleware.NewRateLimiter(AddressLimitPerMinute, time.Minute)
	addressScope := middleware.AddressScope(deviceCookieName, s.Kiosks.Known,
		[]string{"/api/kiosk/pin/verify"}, []string{"/kiosk", "/api/kiosk/", "/ws/kiosk"})

	// Apply middleware: Timing -> CORS -> AddressLimit -> RateLimit -> Auth -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(cfg.Server.CSRFKey, middleware.CSRFOptions{
			Secure:         cfg.Production(),
			TrustedOrigins: originHosts(cfg.Kiosk.AllowedOrigins),
		}),
		middleware.Auth([]byte(cfg.Auth.JWTSecret)),
		middleware.RateLimit(limiter, middleware.ClientKey(deviceCookieName, s.Kiosks.Known)),
		middleware.RateLimitWhen(addressLimiter, middleware.AddressKey, addressScope),
		middleware.CORS(cfg.Kiosk.AllowedOrigins),
		middleware.Timing(collector, s.Metrics.ObserveRequest, cfg.Server.SlowRequest),
	)
}

// originHosts turns configured origins into the host:port form gorilla/csrf expects.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

// checkSocketOrigin accepts same-host upgrades and the configured kiosk origins.
func checkSocketOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// SocketOriginChecker exposes the websocket origin policy for main's wiring.
func SocketOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	return checkSocketOrigin(cfg.Kiosk.AllowedOrigins)
}
