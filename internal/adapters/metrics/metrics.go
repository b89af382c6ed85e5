// Package metrics exposes Prometheus instruments for the kiosk server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "restart"

// Metrics groups every instrument. A nil *Metrics is a valid no-op sink.
type Metrics struct {
	registry       *prometheus.Registry
	kioskEvents    *prometheus.CounterVec
	activeSessions prometheus.Gauge
	wsClients      prometheus.Gauge
	backendCalls   *prometheus.HistogramVec
	queries        *prometheus.HistogramVec
	requests       *prometheus.CounterVec
}

// New registers every instrument on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		kioskEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kiosk",
			Name:      "events_total",
			Help:      "Kiosk session events by kind.",
		}, []string{"event"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kiosk",
			Name:      "active_sessions",
			Help:      "Kiosk terminals with an armed idle countdown.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kiosk",
			Name:      "websocket_clients",
			Help:      "Connected kiosk websocket clients.",
		}),
		backendCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Backend call latency by call and status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call", "status"}),
		queries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Local SQLite statement latency.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
		}, []string{"query"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
	}
	reg.MustRegister(
		m.kioskEvents, m.activeSessions, m.wsClients, m.backendCalls, m.queries, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// KioskEvent counts one kiosk session event.
func (m *Metrics) KioskEvent(event string) {
	if m == nil {
		return
	}
	m.kioskEvents.WithLabelValues(event).Inc()
}

// SessionOpened and SessionClosed track armed terminals.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

// ClientConnected and ClientDisconnected track websocket clients.
func (m *Metrics) ClientConnected() {
	if m != nil {
		m.wsClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.wsClients.Dec()
	}
}

// ObserveCall records one backend call; it matches backend.CallObserver.
func (m *Metrics) ObserveCall(call string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(call, statusClass(status)).Observe(d.Seconds())
}

// ObserveQuery records one SQLite statement; it matches storage.QueryObserver.
func (m *Metrics) ObserveQuery(label string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveRequest counts one HTTP request by route pattern.
func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, statusClass(status)).Inc()
}

// statusClass collapses a status code to "2xx", "4xx" and so on.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
