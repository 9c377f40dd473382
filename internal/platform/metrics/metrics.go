// Package metrics exposes the engine's Prometheus instruments.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing, so services can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
	AuditEntries   *prometheus.CounterVec
	AuditDegraded  prometheus.Counter
	Transitions    *prometheus.CounterVec
	Assignments    *prometheus.CounterVec
	TempMRNIssued  *prometheus.CounterVec
	IdempotentHits *prometheus.CounterVec
	Registrations  *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class",
		}, []string{"method", "route", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		AuditEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Audit entries written, by entity type and action",
		}, []string{"entity_type", "action"}),
		AuditDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_degraded_total",
			Help:      "Committed mutations whose audit entries could not be written",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encounter_transitions_total",
			Help:      "Applied encounter status transitions",
		}, []string{"from", "to"}),
		Assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Bed and staff assignment operations by outcome",
		}, []string{"kind", "outcome"}),
		TempMRNIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_mrn_issued_total",
			Help:      "Temporary MRNs allocated, by gender prefix",
		}, []string{"prefix"}),
		IdempotentHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_hits_total",
			Help:      "Requests answered from the idempotency store",
		}, []string{"result"}),
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Encounter registrations by patient kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAudit(entityType, action string) {
	if m == nil {
		return
	}
	m.AuditEntries.WithLabelValues(entityType, action).Inc()
}

func (m *Metrics) ObserveAuditDegraded() {
	if m == nil {
		return
	}
	m.AuditDegraded.Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveAssignment(kind, outcome string) {
	if m == nil {
		return
	}
	m.Assignments.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveTempMRN(prefix string) {
	if m == nil {
		return
	}
	m.TempMRNIssued.WithLabelValues(prefix).Inc()
}

func (m *Metrics) ObserveIdempotency(result string) {
	if m == nil {
		return
	}
	m.IdempotentHits.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRegistration(kind string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(kind).Inc()
}

// Middleware records request counts and latency by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = 500
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status/100)+"xx").Inc()
			m.HTTPLatency.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
