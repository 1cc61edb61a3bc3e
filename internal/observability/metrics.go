// Package observability holds the service's prometheus instruments and the
// OpenTelemetry tracer setup.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upstreamDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds every prometheus instrument the service records.
type Metrics struct {
	CallbacksTotal       *prometheus.CounterVec
	WorkflowTransitions  *prometheus.CounterVec
	WorkflowCompletions  *prometheus.CounterVec
	WorkflowActive       prometheus.Gauge
	UpstreamCallsTotal   *prometheus.CounterVec
	UpstreamCallDuration *prometheus.HistogramVec
	HTTPRequestsTotal    *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carebear_callbacks_total",
			Help: "Interaction callbacks received, by classified kind.",
		}, []string{"kind"}),
		WorkflowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carebear_workflow_transitions_total",
			Help: "Workflow state transitions, by destination state.",
		}, []string{"to"}),
		WorkflowCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carebear_workflow_completions_total",
			Help: "Workflows that reached a terminal state.",
		}, []string{"final_state"}),
		WorkflowActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carebear_workflow_active",
			Help: "Workflows currently held in the correlation store.",
		}),
		UpstreamCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carebear_upstream_calls_total",
			Help: "Calls to the chat platform and the issue store.",
		}, []string{"operation", "status"}),
		UpstreamCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carebear_upstream_call_duration_seconds",
			Help:    "Duration of calls to the chat platform and the issue store.",
			Buckets: upstreamDurationBuckets,
		}, []string{"operation"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carebear_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.CallbacksTotal,
		m.WorkflowTransitions,
		m.WorkflowCompletions,
		m.WorkflowActive,
		m.UpstreamCallsTotal,
		m.UpstreamCallDuration,
		m.HTTPRequestsTotal,
	)
	return m
}

// ObserveUpstream records the outcome of one upstream call started at start.
func (m *Metrics) ObserveUpstream(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.UpstreamCallsTotal.WithLabelValues(operation, status).Inc()
	m.UpstreamCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Middleware counts every request by its registered route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil && status < http.StatusBadRequest {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			return err
		}
	}
}

// Handler serves the prometheus scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
