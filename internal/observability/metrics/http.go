package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docreader"

type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	analysisTotal        *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	providerFailures     *prometheus.CounterVec
	llmTokensTotal       *prometheus.CounterVec
	breakerTransitions   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Analysis requests by content kind, document type and outcome.",
		},
		[]string{"service", "content_kind", "document_type", "outcome"},
	)
	providerCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "AI provider call duration in seconds, retries included.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "operation"},
	)
	providerFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "failures_total",
			Help:      "AI provider calls that ended in error.",
		},
		[]string{"service", "operation"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Token usage reported by the provider, by direction.",
		},
		[]string{"service", "direction", "model"},
	)
	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		},
		[]string{"service", "operation", "from", "to"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		analysisTotal,
		providerCallDuration,
		providerFailures,
		llmTokensTotal,
		breakerTransitions,
	)

	return &HTTPServerMetrics{
		service:              service,
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		analysisTotal:        analysisTotal,
		providerCallDuration: providerCallDuration,
		providerFailures:     providerFailures,
		llmTokensTotal:       llmTokensTotal,
		breakerTransitions:   breakerTransitions,
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

// normalizePath folds the underscore alias onto the canonical route and
// buckets unknown paths to keep label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/pedidos_exame/"):
		return "/api/pedidos-exame/" + strings.TrimPrefix(path, "/api/pedidos_exame/")
	case strings.HasPrefix(path, "/api/pedidos-exame/"), path == "/health", path == "/metrics", path == "/openapi.json":
		return path
	default:
		return "other"
	}
}

func (m *HTTPServerMetrics) ObserveAnalysis(kind domain.ContentKind, docType domain.DocumentType, outcome string) {
	if kind == "" {
		kind = "unknown"
	}
	if docType == "" {
		docType = domain.DocumentTypeUndefined
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.analysisTotal.WithLabelValues(m.service, string(kind), string(docType), outcome).Inc()
}

func (m *HTTPServerMetrics) ObserveProviderCall(operation string, duration time.Duration, err error) {
	m.providerCallDuration.WithLabelValues(m.service, operation).Observe(duration.Seconds())
	if err != nil {
		m.providerFailures.WithLabelValues(m.service, operation).Inc()
	}
}

func (m *HTTPServerMetrics) ObserveTokenUsage(model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, "out", model).Add(float64(completionTokens))
	}
}

// ObserveBreakerTransition matches resilience.StateChangeFunc.
func (m *HTTPServerMetrics) ObserveBreakerTransition(operation, from, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, from, to).Inc()
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
