package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for one service binary.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	dependencyDuration *prometheus.HistogramVec
	enrollmentEvents   *prometheus.CounterVec
	gradeWrites        *prometheus.CounterVec
	degradedEnrichment *prometheus.CounterVec
	reconciliations    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	dependencyDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dependency_request_duration_seconds",
		Help:    "Duration of read-through calls to collaborating services",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	}, []string{"dependency", "operation", "outcome"})

	enrollmentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Ledger state transitions by resulting status",
	}, []string{"operation", "status"})

	gradeWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_writes_total",
		Help: "Grade writes by kind",
	}, []string{"kind"})

	degradedEnrichment := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_degraded_total",
		Help: "Rows returned with placeholder or missing enrichment",
	}, []string{"field"})

	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_entries_total",
		Help: "Writes that failed after their authorization checks passed",
	}, []string{"operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dependencyDuration, enrollmentEvents, gradeWrites, degradedEnrichment, reconciliations, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		dependencyDuration: dependencyDuration,
		enrollmentEvents:   enrollmentEvents,
		gradeWrites:        gradeWrites,
		degradedEnrichment: degradedEnrichment,
		reconciliations:    reconciliations,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveDependency records one read-through call.
func (m *MetricsService) ObserveDependency(dependency, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dependencyDuration.WithLabelValues(dependency, operation, outcome).Observe(duration.Seconds())
}

// RecordEnrollmentTransition counts a ledger write.
func (m *MetricsService) RecordEnrollmentTransition(operation, status string) {
	if m == nil {
		return
	}
	m.enrollmentEvents.WithLabelValues(operation, status).Inc()
}

// RecordGradeWrite counts grade creations, updates and deletions.
func (m *MetricsService) RecordGradeWrite(kind string) {
	if m == nil {
		return
	}
	m.gradeWrites.WithLabelValues(kind).Inc()
}

// RecordDegraded counts rows served with degraded enrichment.
func (m *MetricsService) RecordDegraded(field string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.degradedEnrichment.WithLabelValues(field).Add(float64(n))
}

// RecordReconciliation counts write-after-authorization failures.
func (m *MetricsService) RecordReconciliation(operation string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(operation).Inc()
}
