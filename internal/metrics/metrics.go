// Package metrics provides Prometheus instrumentation for fraudscore.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudscore",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts scored transactions by decision.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "decisions_total",
			Help:      "Total scored transactions by decision.",
		},
		[]string{"decision"},
	)

	// ScoringErrorsTotal counts engine failures by stage.
	ScoringErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "scoring_errors_total",
			Help:      "Total scoring failures by pipeline stage.",
		},
		[]string{"stage"},
	)

	// FraudProbability observes the unrounded fraud probability.
	FraudProbability = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraudscore",
		Name:      "fraud_probability",
		Help:      "Distribution of fraud probabilities.",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
	})

	// AuditDroppedTotal counts decision records dropped because the recorder queue was full.
	AuditDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudscore",
		Name:      "audit_dropped_total",
		Help:      "Total decision records dropped by the recorder.",
	})

	// AuditErrorsTotal counts failed audit sink appends.
	AuditErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudscore",
		Name:      "audit_errors_total",
		Help:      "Total decision records the audit sink failed to append.",
	})

	// AuditQueueDepth tracks records waiting in the recorder queue.
	AuditQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudscore",
		Name:      "audit_queue_depth",
		Help:      "Number of decision records waiting to be appended.",
	})

	// ScoreCacheTotal counts score cache lookups by result (hit, miss).
	ScoreCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "score_cache_total",
			Help:      "Total score cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		ScoringErrorsTotal,
		FraudProbability,
		AuditDroppedTotal,
		AuditErrorsTotal,
		AuditQueueDepth,
		ScoreCacheTotal,
	)
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		// Route pattern, not the raw path, keeps label cardinality bounded.
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(status)).Inc()
	})
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// ObserveDecision records one scored transaction.
func ObserveDecision(decision string, probability float64) {
	DecisionsTotal.WithLabelValues(decision).Inc()
	FraudProbability.Observe(probability)
}

// ObserveScoringError records one engine failure.
func ObserveScoringError(stage string) {
	ScoringErrorsTotal.WithLabelValues(stage).Inc()
}
