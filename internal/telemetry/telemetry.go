// Package telemetry exposes Prometheus metrics for the discovery service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_runs_total",
			Help: "Total number of discovery runs reaching a terminal state, labeled by status.",
		},
		[]string{"status"},
	)

	sourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_source_fetches_total",
			Help: "Total number of per-source fetch outcomes, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	postingsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_postings_found_total",
			Help: "Total number of raw postings returned by connectors, labeled by source.",
		},
		[]string{"source"},
	)

	postingsNewTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_postings_new_total",
			Help: "Total number of postings that survived deduplication, labeled by source.",
		},
		[]string{"source"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "discovery_active_workers",
			Help: "Number of pool workers currently processing a source.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations, labeled by source.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveRun records a run reaching a terminal status.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveSourceFetch records the outcome of one source's processing
// (succeeded, failed, skipped).
func ObserveSourceFetch(source, outcome string) {
	sourceFetchesTotal.WithLabelValues(source, outcome).Inc()
}

// ObservePostings records found/new posting counts for a source.
func ObservePostings(source string, found, fresh int) {
	if found > 0 {
		postingsFoundTotal.WithLabelValues(source).Add(float64(found))
	}
	if fresh > 0 {
		postingsNewTotal.WithLabelValues(source).Add(float64(fresh))
	}
}

// IncActiveWorkers increments the active worker count.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active worker count.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(source string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
