// Package metrics provides Prometheus metrics for dataset indexing and I/O.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan metrics
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidio_scans_total",
			Help: "Total number of directory scans",
		},
		[]string{"status"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fidio_scan_duration_seconds",
			Help:    "Time taken to scan a directory tree",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	DatasetsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidio_datasets_indexed_total",
			Help: "Total number of datasets added to an index",
		},
		[]string{"vendor"},
	)

	OpenFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidio_open_failures_total",
			Help: "Total number of datasets that failed to open during a scan",
		},
		[]string{"vendor", "reason"},
	)

	// Vector I/O metrics
	VectorsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidio_vectors_read_total",
			Help: "Total number of vectors read from data files",
		},
		[]string{"vendor", "axis"},
	)

	BytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidio_bytes_read_total",
			Help: "Total bytes read from data files",
		},
		[]string{"vendor"},
	)

	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidio_bytes_written_total",
			Help: "Total bytes written to processed data files",
		},
		[]string{"vendor"},
	)

	// Remote metrics
	RemoteFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidio_remote_fetches_total",
			Help: "Total number of remote dataset fetches",
		},
		[]string{"status"},
	)

	RemoteBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fidio_remote_bytes_total",
			Help: "Total bytes fetched from remote storage",
		},
	)

	RemoteFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fidio_remote_fetch_duration_seconds",
			Help:    "Duration of remote dataset fetches",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordScan records the outcome of one directory scan.
func RecordScan(status string, datasets map[string]int, duration time.Duration) {
	ScansTotal.WithLabelValues(status).Inc()
	ScanDuration.Observe(duration.Seconds())
	for vendor, n := range datasets {
		DatasetsIndexed.WithLabelValues(vendor).Add(float64(n))
	}
}

// RecordOpenFailure records a dataset skipped during a scan.
func RecordOpenFailure(vendor, reason string) {
	OpenFailures.WithLabelValues(vendor, reason).Inc()
}

// RecordVectorRead records one vector read along the given axis.
func RecordVectorRead(vendor, axis string, bytes int) {
	VectorsRead.WithLabelValues(vendor, axis).Inc()
	BytesRead.WithLabelValues(vendor).Add(float64(bytes))
}

// RecordWrite records bytes written for a processed dataset.
func RecordWrite(vendor string, bytes int64) {
	BytesWritten.WithLabelValues(vendor).Add(float64(bytes))
}

// RecordFetch records a remote fetch.
func RecordFetch(status string, bytes int64, duration time.Duration) {
	RemoteFetches.WithLabelValues(status).Inc()
	RemoteBytes.Add(float64(bytes))
	RemoteFetchDuration.Observe(duration.Seconds())
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
