// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
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

	portalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_portal_requests_total",
			Help: "Result portal requests, labeled by classified outcome.",
		},
		[]string{"outcome"},
	)

	portalRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_portal_request_duration_seconds",
			Help:    "Latency of result portal requests, labeled by outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	portalRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_portal_retries_total",
			Help: "Retries issued after transient portal failures.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the outbound request limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	artifactSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_artifact_saves_total",
			Help: "Artifact save attempts, labeled by branch and result (created, existing, error).",
		},
		[]string{"branch", "result"},
	)
)

// Artifact save results.
const (
	SaveCreated  = "created"
	SaveExisting = "existing"
	SaveError    = "error"
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePortalRequest records one portal round trip.
func ObservePortalRequest(outcome string, duration time.Duration) {
	portalRequestsTotal.WithLabelValues(outcome).Inc()
	portalRequestDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObservePortalRetry counts a retry of a transient failure.
func ObservePortalRetry() {
	portalRetriesTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a limiter wait.
func ObserveRateLimitDelay(duration time.Duration) {
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveArtifactSave records the result of persisting one artifact.
func ObserveArtifactSave(branch, result string) {
	if branch == "" {
		branch = "unknown"
	}
	artifactSavesTotal.WithLabelValues(branch, result).Inc()
}
