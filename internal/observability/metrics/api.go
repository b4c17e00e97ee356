// Package metrics holds the prometheus registries for the api and worker
// processes. Each process owns its registry; nothing registers globally.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal       *prometheus.CounterVec
	deniedTotal      *prometheus.CounterVec
	degradedTotal    *prometheus.CounterVec
	retrievedChunks  *prometheus.HistogramVec
	citationCoverage *prometheus.HistogramVec
	queryDuration    *prometheus.HistogramVec
	auditQueueDepth  prometheus.Gauge
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrv",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrv",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hrv",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrv",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total answered queries by access scope and retrieval mode.",
		},
		[]string{"service", "scope", "mode"},
	)
	deniedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrv",
			Subsystem: "query",
			Name:      "denied_total",
			Help:      "Total denied authorization attempts by requested scope.",
		},
		[]string{"service", "scope"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrv",
			Subsystem: "query",
			Name:      "degraded_total",
			Help:      "Total queries answered with the citation-only fallback.",
		},
		[]string{"service", "scope"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrv",
			Subsystem: "query",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "scope"},
	)
	citationCoverage := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrv",
			Subsystem: "query",
			Name:      "citation_coverage",
			Help:      "Distribution of answer confidence (fraction of cited claims).",
			Buckets:   []float64{0, 0.25, 0.5, 0.75, 0.9, 1},
		},
		[]string{"service", "scope"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrv",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "scope"},
	)
	auditQueueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hrv",
			Subsystem: "audit",
			Name:      "queue_depth",
			Help:      "Entries waiting in the local audit spill queue.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		deniedTotal,
		degradedTotal,
		retrievedChunks,
		citationCoverage,
		queryDuration,
		auditQueueDepth,
	)

	return &APIMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		queryTotal:       queryTotal,
		deniedTotal:      deniedTotal,
		degradedTotal:    degradedTotal,
		retrievedChunks:  retrievedChunks,
		citationCoverage: citationCoverage,
		queryDuration:    queryDuration,
		auditQueueDepth:  auditQueueDepth,
	}
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *APIMetrics) RecordQuery(service, scope, mode string, retrieved int, confidence float64, degraded bool, duration time.Duration) {
	if scope == "" {
		scope = "unknown"
	}
	if mode == "" {
		mode = "unknown"
	}
	m.queryTotal.WithLabelValues(service, scope, mode).Inc()
	m.retrievedChunks.WithLabelValues(service, scope).Observe(float64(retrieved))
	m.citationCoverage.WithLabelValues(service, scope).Observe(confidence)
	m.queryDuration.WithLabelValues(service, scope).Observe(duration.Seconds())
	if degraded {
		m.degradedTotal.WithLabelValues(service, scope).Inc()
	}
}

func (m *APIMetrics) RecordDenied(service, scope string) {
	if scope == "" {
		scope = "unknown"
	}
	m.deniedTotal.WithLabelValues(service, scope).Inc()
}

func (m *APIMetrics) SetAuditQueueDepth(depth int) {
	m.auditQueueDepth.Set(float64(depth))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}
