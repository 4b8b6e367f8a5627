package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchTotal     *prometheus.CounterVec
	searchDuration  *prometheus.HistogramVec
	searchResults   *prometheus.HistogramVec
	degradedTotal   *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	breakerOpenings *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchhub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchhub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "searchhub",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchhub",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total completed search requests by mode.",
		},
		[]string{"service", "mode"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchhub",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search execution duration in seconds by mode.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchhub",
			Subsystem: "search",
			Name:      "results_returned",
			Help:      "Distribution of result items per search page.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
		[]string{"service"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchhub",
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Total searches served lexical-only because the semantic backend was unavailable.",
		},
		[]string{"service"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "searchhub",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per backend (0=closed, 1=open, 2=half-open).",
		},
		[]string{"service", "backend"},
	)
	breakerOpenings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchhub",
			Subsystem: "breaker",
			Name:      "openings_total",
			Help:      "Total circuit breaker transitions into the open state.",
		},
		[]string{"service", "backend"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchTotal,
		searchDuration,
		searchResults,
		degradedTotal,
		breakerState,
		breakerOpenings,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		searchTotal:     searchTotal,
		searchDuration:  searchDuration,
		searchResults:   searchResults,
		degradedTotal:   degradedTotal,
		breakerState:    breakerState,
		breakerOpenings: breakerOpenings,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
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

// RecordSearch counts a completed search. Mode is "hybrid" for fused
// responses and "lexical_only" for degraded or deep-page fallbacks.
func (m *HTTPServerMetrics) RecordSearch(service string, degraded bool, resultCount int, duration time.Duration) {
	mode := "hybrid"
	if degraded {
		mode = "lexical_only"
		m.degradedTotal.WithLabelValues(service).Inc()
	}
	m.searchTotal.WithLabelValues(service, mode).Inc()
	m.searchDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
	m.searchResults.WithLabelValues(service).Observe(float64(resultCount))
}

func (m *HTTPServerMetrics) SetBreakerState(service, backend string, state float64) {
	m.breakerState.WithLabelValues(service, backend).Set(state)
}

func (m *HTTPServerMetrics) RecordBreakerOpened(service, backend string) {
	m.breakerOpenings.WithLabelValues(service, backend).Inc()
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

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
