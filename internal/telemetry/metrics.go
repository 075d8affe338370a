package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the interception pipeline's Prometheus metrics.
type Metrics struct {
	InterceptorRequests *prometheus.CounterVec
	InterceptorDuration *prometheus.HistogramVec
	InterceptorStops    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers the metrics with reg. When reg is also a
// Gatherer (as *prometheus.Registry is), Handler serves from it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		InterceptorRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webapi_interceptor_requests_total",
			Help: "Requests observed by an interceptor, by outcome.",
		}, []string{"interceptor", "outcome"}),

		InterceptorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webapi_interceptor_duration_seconds",
			Help:    "Time spent inside the stages wrapped by an interceptor.",
			Buckets: prometheus.DefBuckets,
		}, []string{"interceptor"}),

		InterceptorStops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webapi_interceptor_stops_total",
			Help: "Requests short-circuited by an interceptor.",
		}, []string{"interceptor", "status"}),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}

	return m
}

// Handler exposes the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
