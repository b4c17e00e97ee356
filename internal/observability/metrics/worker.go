package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the ingestion worker. The service name is
// baked in as a const label so call sites only report outcomes.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	queueLag  prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	processed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hrv",
			Subsystem:   "worker",
			Name:        "documents_processed_total",
			Help:        "Documents taken off the ingestion queue, by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "hrv",
			Subsystem:   "worker",
			Name:        "document_process_duration_seconds",
			Help:        "Extract+chunk+embed+index duration per document.",
			Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "hrv",
			Subsystem:   "worker",
			Name:        "documents_in_flight",
			Help:        "Documents currently being processed.",
			ConstLabels: constLabels,
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "hrv",
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between document upload and processing start.",
			Buckets:     []float64{0.5, 1, 2, 5, 15, 30, 60, 300, 900},
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(processed, duration, inFlight, queueLag)

	return &WorkerMetrics{
		registry:  registry,
		processed: processed,
		duration:  duration,
		inFlight:  inFlight,
		queueLag:  queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.inFlight.Dec()

	outcome := "processed"
	if err != nil {
		outcome = "failed"
	}
	m.processed.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}
