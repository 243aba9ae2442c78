package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_http_requests_total",
		Help: "HTTP requests by method, route pattern and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notes_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// NoteUpdates counts update workflow outcomes: ok, invalid, not_found, conflict, storage_error.
	NoteUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_updates_total",
		Help: "Note update workflow outcomes",
	}, []string{"result"})

	NoteUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notes_update_duration_seconds",
		Help:    "Note update workflow latency including blob writes",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notes_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter",
	})

	BlobOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_blob_operations_total",
		Help: "Blob store operations by backend, operation and result",
	}, []string{"backend", "op", "result"})

	BlobBytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_blob_bytes_written_total",
		Help: "Bytes written to the blob store",
	}, []string{"backend"})
)

// MetricsHandler serves the default prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ResultLabel converts an error into an ok/error label value.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
