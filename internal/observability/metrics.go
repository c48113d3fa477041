package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	apiRequestsTotal    *prometheus.CounterVec
	apiLatencySeconds   *prometheus.HistogramVec
	apiErrorsTotal      *prometheus.CounterVec
	gradingCommitsTotal prometheus.Counter
	sessionSavesTotal   *prometheus.CounterVec
	decryptFailures     prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the grading API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rubrix_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rubrix_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rubrix_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingCommitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rubrix_grading_commits_total",
			Help: "Total number of committed grading units.",
		})

		sessionSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rubrix_session_saves_total",
			Help: "Total number of persisted session snapshots by storage mode.",
		}, []string{"mode"})

		decryptFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rubrix_decrypt_failures_total",
			Help: "Total number of records skipped because they could not be decrypted.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			gradingCommitsTotal,
			sessionSavesTotal,
			decryptFailures,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradingCommits exposes the committed-unit counter.
func GradingCommits() prometheus.Counter {
	RegisterMetrics()
	return gradingCommitsTotal
}

// SessionSaves exposes the session save counter for the given storage mode.
func SessionSaves(mode string) prometheus.Counter {
	RegisterMetrics()
	return sessionSavesTotal.WithLabelValues(mode)
}

// DecryptFailures exposes the skipped-record counter.
func DecryptFailures() prometheus.Counter {
	RegisterMetrics()
	return decryptFailures
}
