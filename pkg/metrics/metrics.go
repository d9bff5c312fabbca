// Package metrics provides Prometheus collectors for edsync. Collectors are
// registered on the default registry through promauto and exposed by
// `edsync run --metrics-addr`.
//
// # Basic Usage
//
//	metrics.PagesExtracted.WithLabelValues("/ed-fi/students").Inc()
//
//	timer := metrics.NewTimer("unit")
//	runUnit(ctx, unit)
//	metrics.UnitDuration.WithLabelValues(unit.Endpoint.Path).Observe(timer.Stop().Seconds())
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts source API requests.
	// Labels: method, status (HTTP code or "error")
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edsync_http_requests_total",
			Help: "Total number of source API requests",
		},
		[]string{"method", "status"},
	)

	// HTTPRequestDuration tracks source API latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edsync_http_request_duration_seconds",
			Help:    "Source API request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		},
		[]string{"method"},
	)

	// TokenRefreshes counts access token acquisitions after a rejection.
	TokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edsync_token_refreshes_total",
			Help: "Number of access token refreshes triggered by 401 responses",
		},
	)

	// Retries counts backoff retries of source requests.
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edsync_retries_total",
			Help: "Number of retried source requests",
		},
		[]string{"operation"},
	)

	// PagesExtracted counts fetched pages per endpoint.
	PagesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edsync_pages_extracted_total",
			Help: "Number of pages fetched from the source",
		},
		[]string{"endpoint"},
	)

	// RecordsExtracted counts records per endpoint and kind.
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edsync_records_extracted_total",
			Help: "Number of records extracted",
		},
		[]string{"endpoint", "kind"},
	)

	// PartitionsWritten counts partition objects per outcome.
	PartitionsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edsync_partitions_written_total",
			Help: "Number of partition objects written",
		},
		[]string{"kind", "status"},
	)

	// PartitionBytes counts encoded bytes handed to the object store.
	PartitionBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edsync_partition_bytes_total",
			Help: "Bytes written to the object store",
		},
	)

	// UnitsCompleted counts finished extraction units.
	// Labels: state (succeeded/failed)
	UnitsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edsync_units_completed_total",
			Help: "Number of finished extraction units",
		},
		[]string{"state"},
	)

	// UnitsInFlight tracks units holding a worker slot.
	UnitsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edsync_units_in_flight",
			Help: "Extraction units currently running",
		},
	)

	// UnitDuration tracks unit wall time in seconds.
	UnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edsync_unit_duration_seconds",
			Help:    "Extraction unit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms .. ~27m
		},
		[]string{"endpoint"},
	)

	// Runs counts finished runs.
	// Labels: mode (effective mode), status (success/failure/aborted)
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edsync_runs_total",
			Help: "Number of finished runs",
		},
		[]string{"mode", "status"},
	)

	// CommittedWatermark tracks the last committed change version.
	CommittedWatermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edsync_committed_change_version",
			Help: "Last committed change version per source key",
		},
		[]string{"source_key"},
	)

	// Throughput tracks records per second of the last run.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edsync_throughput_records_per_second",
			Help: "Records per second of the last run",
		},
		[]string{"source_key"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second over a window.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	sourceKey string
}

// NewThroughputTracker creates a tracker labelled with sourceKey.
func NewThroughputTracker(sourceKey string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		sourceKey: sourceKey,
	}
}

// Increment adds n to the record count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the current throughput, publishes it, resets the
// counter and returns the value.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.sourceKey).Set(throughput)

	return throughput
}
