package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.InterceptorRequests == nil {
		t.Error("InterceptorRequests is nil")
	}
	if m.InterceptorDuration == nil {
		t.Error("InterceptorDuration is nil")
	}
	if m.InterceptorStops == nil {
		t.Error("InterceptorStops is nil")
	}
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.InterceptorRequests.WithLabelValues("before", "ok").Inc()
	m.InterceptorRequests.WithLabelValues("before", "ok").Inc()
	m.InterceptorStops.WithLabelValues("auth", "401").Inc()

	if got := testutil.ToFloat64(m.InterceptorRequests.WithLabelValues("before", "ok")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.InterceptorStops.WithLabelValues("auth", "401")); got != 1 {
		t.Errorf("stops = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.InterceptorDuration.WithLabelValues("before").Observe(0.01)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "webapi_interceptor_duration_seconds_count") {
		t.Errorf("histogram missing from exposition:\n%s", rec.Body.String())
	}
}
