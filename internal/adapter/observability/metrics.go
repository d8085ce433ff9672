package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// PostsIngestedTotal counts posts successfully persisted by the worker pool.
	PostsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_ingested_total",
			Help: "Total number of posts persisted, by source",
		},
		[]string{"source"},
	)
	// PostsPoisonedTotal counts messages discarded as poison.
	PostsPoisonedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_poisoned_total",
			Help: "Total number of stream entries discarded as poison",
		},
		[]string{"reason"},
	)
	// PostsRetriedTotal counts messages left unacked for redelivery.
	PostsRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_retried_total",
			Help: "Total number of stream entries left unacked for redelivery",
		},
		[]string{"stage"},
	)
	// SentimentLabelsTotal counts analyses produced by label.
	SentimentLabelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_labels_total",
			Help: "Total number of analyses produced, by sentiment label",
		},
		[]string{"label"},
	)
	// ClassifierDuration records classifier call latency by implementation and capability.
	ClassifierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_call_duration_seconds",
			Help:    "Classifier call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
		[]string{"impl", "capability"},
	)
	// ClassifierFailuresTotal counts classifier call failures by implementation.
	ClassifierFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_failures_total",
			Help: "Total classifier call failures, by implementation",
		},
		[]string{"impl"},
	)
	// CircuitBreakerStatus tracks circuit breaker state (0=closed, 1=open, 2=half-open).
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_status",
			Help: "Circuit breaker status (0=closed, 1=open, 2=half-open)",
		},
		[]string{"model"},
	)

	// CacheHitsTotal and CacheMissesTotal track aggregator cache effectiveness.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_cache_hits_total",
			Help: "Total aggregator cache hits, by operation",
		},
		[]string{"operation"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_cache_misses_total",
			Help: "Total aggregator cache misses, by operation",
		},
		[]string{"operation"},
	)

	// PushSubscribersGauge tracks currently connected push gateway subscribers.
	PushSubscribersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_subscribers",
			Help: "Number of currently connected push gateway subscribers",
		},
	)
	// PushFramesSentTotal counts frames sent by the push gateway, by frame type.
	PushFramesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_frames_sent_total",
			Help: "Total frames sent to push gateway subscribers, by type",
		},
		[]string{"type"},
	)

	// AlertsFiredTotal counts alerts persisted by the alert monitor.
	AlertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Total alerts fired, by alert type",
		},
		[]string{"alert_type"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(PostsIngestedTotal)
	prometheus.MustRegister(PostsPoisonedTotal)
	prometheus.MustRegister(PostsRetriedTotal)
	prometheus.MustRegister(SentimentLabelsTotal)
	prometheus.MustRegister(ClassifierDuration)
	prometheus.MustRegister(ClassifierFailuresTotal)
	prometheus.MustRegister(CircuitBreakerStatus)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(PushSubscribersGauge)
	prometheus.MustRegister(PushFramesSentTotal)
	prometheus.MustRegister(AlertsFiredTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// RecordCircuitBreakerStatus records circuit breaker state for a model.
func RecordCircuitBreakerStatus(model string, status int) {
	CircuitBreakerStatus.WithLabelValues(model).Set(float64(status))
}
