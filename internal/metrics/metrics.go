// Package metrics exposes lifecycle and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dvsmart-go/internal/dvs"
)

const namespace = "dvsmart"

// Prometheus implements dvs.Metrics. All collectors are registered on the
// registry passed to New, so tests can use a private registry.
type Prometheus struct {
	registry prometheus.Gatherer

	phaseTotal     *prometheus.CounterVec
	reorgDuration  prometheus.Histogram
	jobsTotal      *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	filesPerSecond prometheus.Gauge
	filesByStatus  *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ dvs.Metrics = (*Prometheus)(nil)

// New creates the collectors and registers them on reg.
// It panics if a collector is already registered on reg.
func New(reg *prometheus.Registry) *Prometheus {
	m := &Prometheus{
		registry: reg,
		phaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Per-file lifecycle outcomes by phase.",
		}, []string{"phase", "outcome"}),
		reorgDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reorganize_duration_seconds",
			Help:      "Time to transfer one file to its destination.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished job executions by final status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of finished job executions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
		filesPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_job_files_per_second",
			Help:      "Throughput of the most recently finished job execution.",
		}),
		filesByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files",
			Help:      "File records by reorganization status.",
		}, []string{"reorg_status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.phaseTotal, m.reorgDuration,
		m.jobsTotal, m.jobDuration, m.filesPerSecond, m.filesByStatus,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// NewWithDefaults creates a registry carrying the Go runtime and process
// collectors and registers the lifecycle collectors on it.
func NewWithDefaults() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

func (m *Prometheus) ObservePhase(phase dvs.Phase, outcome string) {
	m.phaseTotal.WithLabelValues(string(phase), outcome).Inc()
}

func (m *Prometheus) ObserveReorgDuration(d time.Duration) {
	m.reorgDuration.Observe(d.Seconds())
}

func (m *Prometheus) ObserveJob(status dvs.JobStatus, d time.Duration, filesPerSecond float64) {
	m.jobsTotal.WithLabelValues(string(status)).Inc()
	m.jobDuration.Observe(d.Seconds())
	m.filesPerSecond.Set(filesPerSecond)
}

// SetFileCounts replaces the per-status file gauges.
func (m *Prometheus) SetFileCounts(counts map[dvs.ReorgStatus]int64) {
	m.filesByStatus.Reset()
	for status, n := range counts {
		m.filesByStatus.WithLabelValues(status.String()).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. Routes are labelled by
// their chi pattern so path parameters do not explode label cardinality.
func (m *Prometheus) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
