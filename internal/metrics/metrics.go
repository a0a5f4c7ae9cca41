// Package metrics provides Prometheus metrics for the geometry service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the geometry service.
type Metrics struct {
	// Job metrics
	JobsProcessed *prometheus.CounterVec // result: "success" | "failure"
	JobsFailed    *prometheus.CounterVec // code: error code
	JobsMalformed prometheus.Counter

	// Download metrics
	DownloadRetries prometheus.Counter
	DownloadBytes   prometheus.Histogram

	// Timing metrics
	DownloadDuration prometheus.Histogram
	AnalyzeDuration  prometheus.Histogram
	JobDuration      prometheus.Histogram

	// Pipeline metrics
	InFlightJobs prometheus.Gauge
	QueueDepth   prometheus.Gauge

	// Error metrics
	PublishErrors prometheus.Counter
	StorageErrors prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "geometry_service"
	}

	m := &Metrics{
		JobsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_processed_total",
				Help:      "Total number of analysis jobs with a published outcome",
			},
			[]string{"result"},
		),
		JobsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_failed_total",
				Help:      "Total number of failed analysis jobs by error code",
			},
			[]string{"code"},
		),
		JobsMalformed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_malformed_total",
				Help:      "Total number of envelopes rejected before the pipeline ran",
			},
		),
		DownloadRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_retries_total",
				Help:      "Total number of download retry attempts",
			},
		),
		DownloadBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_bytes",
				Help:      "Downloaded file sizes in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
			},
		),
		DownloadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Time to materialize an uploaded file locally",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		AnalyzeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analyze_duration_seconds",
				Help:      "Time spent in geometry kernel computation",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		JobDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "End-to-end job latency from receipt to published outcome",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 11), // 50ms to ~100s
			},
		),
		InFlightJobs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_jobs",
				Help:      "Number of jobs currently being processed",
			},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "work_queue_depth",
				Help:      "Number of fetched messages waiting for a worker",
			},
		),
		PublishErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_errors_total",
				Help:      "Total number of outbound event publish failures",
			},
		),
		StorageErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of object storage errors",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, or nil if Init was not called.
func Get() *Metrics {
	return defaultMetrics
}

// Serve starts the metrics HTTP server on the given address.
// Blocks until the server exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
