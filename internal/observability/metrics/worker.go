package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	indexTotal    *prometheus.CounterVec
	indexDuration *prometheus.HistogramVec
	indexInFlight prometheus.Gauge
	chunksIndexed *prometheus.HistogramVec
	queueLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	indexTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchhub",
			Subsystem: "worker",
			Name:      "document_index_total",
			Help:      "Total indexed documents by status.",
		},
		[]string{"service", "status"},
	)
	indexDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchhub",
			Subsystem: "worker",
			Name:      "document_index_duration_seconds",
			Help:      "Document indexing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	indexInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "searchhub",
			Subsystem: "worker",
			Name:      "document_index_in_flight",
			Help:      "Number of in-flight document indexing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chunksIndexed := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchhub",
			Subsystem: "worker",
			Name:      "chunks_indexed",
			Help:      "Distribution of chunks produced per indexed document.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchhub",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document upload and indexing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(indexTotal, indexDuration, indexInFlight, chunksIndexed, queueLag)

	return &WorkerMetrics{
		registry:      registry,
		indexTotal:    indexTotal,
		indexDuration: indexDuration,
		indexInFlight: indexInFlight,
		chunksIndexed: chunksIndexed,
		queueLag:      queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.indexInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.indexInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.indexTotal.WithLabelValues(service, status).Inc()
	m.indexDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveChunksIndexed(service string, count int) {
	if count <= 0 {
		return
	}
	m.chunksIndexed.WithLabelValues(service).Observe(float64(count))
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
