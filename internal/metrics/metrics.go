package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carepulse/internal/application"
)

// LifecycleMetrics exposes counters for appointment transitions and notification delivery.
type LifecycleMetrics struct {
	createdTotal      *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec
}

var _ application.Metrics = (*LifecycleMetrics)(nil)

func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	m := &LifecycleMetrics{
		createdTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carepulse",
			Subsystem: "appointments",
			Name:      "created_total",
			Help:      "Appointment create requests by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carepulse",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment schedule and cancel requests by outcome",
		}, []string{"mode", "outcome"}),
		notificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carepulse",
			Subsystem: "notifications",
			Name:      "attempts_total",
			Help:      "SMS delivery attempts by path and outcome",
		}, []string{"path", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.createdTotal, m.transitionsTotal, m.notificationTotal)
	return m
}

func (m *LifecycleMetrics) AppointmentCreated(outcome string) {
	if m == nil {
		return
	}
	m.createdTotal.WithLabelValues(outcome).Inc()
}

func (m *LifecycleMetrics) AppointmentTransitioned(mode application.UpdateMode, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(mode), outcome).Inc()
}

func (m *LifecycleMetrics) NotificationAttempted(path, outcome string) {
	if m == nil {
		return
	}
	m.notificationTotal.WithLabelValues(path, outcome).Inc()
}

// HTTPMetrics records request counts and latency per route pattern.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carepulse",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carepulse",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP request handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

// Middleware observes every request passing through a chi router.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the metrics registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
