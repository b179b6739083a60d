package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// MetricsService owns the Prometheus registry for the admission API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheWrite      prometheus.Histogram
	transitions     *prometheus.CounterVec
	refunds         *prometheus.CounterVec
	blobBytes       prometheus.Counter
	blobOps         *prometheus.CounterVec
	reconcileRuns   *prometheus.CounterVec
	reconcileIssues *prometheus.CounterVec
	reconcileTime   prometheus.Histogram
	orphansFound    prometheus.Gauge
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_transitions_total",
			Help: "Admission workflow transitions by target status and outcome",
		}, []string{"to", "outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_refunds_total",
			Help: "Refund instructions by final outcome",
		}, []string{"outcome"}),
		blobBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blob_bytes_written_total",
			Help: "Bytes written to the blob store",
		}),
		blobOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blob_operations_total",
			Help: "Blob store operations by kind and outcome",
		}, []string{"op", "outcome"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_reconcile_runs_total",
			Help: "Reconciliation passes by result",
		}, []string{"result"}),
		reconcileIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_reconcile_issues_total",
			Help: "Issues found by reconciliation passes",
		}, []string{"kind"}),
		reconcileTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "asset_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		orphansFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asset_orphan_candidates",
			Help: "Orphan blobs reported by the last reconciliation pass",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLookups, m.cacheWrite, m.transitions, m.refunds,
		m.blobBytes, m.blobOps, m.reconcileRuns, m.reconcileIssues, m.reconcileTime, m.orphansFound, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// Registry returns the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransition counts an admission status change attempt.
func (m *MetricsService) RecordTransition(to models.AdmissionStatus, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to), outcome).Inc()
}

// RecordRefund counts a refund outcome.
func (m *MetricsService) RecordRefund(status models.RefundStatus) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(string(status)).Inc()
}

// RecordBlobOp counts a blob store operation.
func (m *MetricsService) RecordBlobOp(op string, err error, bytes int64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.blobOps.WithLabelValues(op, outcome).Inc()
	if err == nil && op == "put" && bytes > 0 {
		m.blobBytes.Add(float64(bytes))
	}
}

// RecordReconcile records the outcome of a reconciliation pass.
func (m *MetricsService) RecordReconcile(report *models.ReconciliationReport, skipped bool, err error) {
	if m == nil {
		return
	}
	switch {
	case skipped:
		m.reconcileRuns.WithLabelValues("skipped").Inc()
		return
	case err != nil:
		m.reconcileRuns.WithLabelValues("error").Inc()
		return
	}
	m.reconcileRuns.WithLabelValues("ok").Inc()
	if report == nil {
		return
	}
	m.reconcileTime.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	m.reconcileIssues.WithLabelValues("missing_reference").Add(float64(len(report.MissingReferences)))
	m.reconcileIssues.WithLabelValues("link_repaired").Add(float64(report.LinksRepaired))
	m.reconcileIssues.WithLabelValues("link_pruned").Add(float64(report.LinksPruned))
	m.reconcileIssues.WithLabelValues("failure").Add(float64(len(report.Failures)))
	m.orphansFound.Set(float64(len(report.Orphans)))
}
