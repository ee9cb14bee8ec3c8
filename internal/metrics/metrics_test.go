package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carepulse/internal/application"
)

func TestLifecycleMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetrics(reg)

	m.AppointmentCreated("created")
	m.AppointmentCreated("replayed")
	m.AppointmentTransitioned(application.ModeCancel, "ok")
	m.NotificationAttempted("inline", "queued")
	m.NotificationAttempted("inline", "queued")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.createdTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("cancel", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notificationTotal.WithLabelValues("inline", "queued")))
}

func TestLifecycleMetricsNilSafe(t *testing.T) {
	var m *LifecycleMetrics
	m.AppointmentCreated("created")
	m.AppointmentTransitioned(application.ModeSchedule, "ok")
	m.NotificationAttempted("outbox", "delivered")
}

func TestHTTPMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/appointments/{appointmentID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/appointments/a-1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/appointments/a-2", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/appointments/{appointmentID}", "404")))
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetrics(reg)
	m.AppointmentCreated("created")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `carepulse_appointments_created_total{outcome="created"} 1`))
}
