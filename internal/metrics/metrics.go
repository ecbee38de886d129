// Package metrics provides Prometheus metrics for monitoring the page pool.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts HTTP API requests by endpoint and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawlpool_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"endpoint", "status"},
	)

	// RequestDuration tracks API request duration by endpoint.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawlpool_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
		},
		[]string{"endpoint"},
	)

	// JobsTotal counts finished jobs by kind and outcome.
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawlpool_jobs_total",
			Help: "Total jobs run against pooled pages",
		},
		[]string{"kind", "outcome"},
	)

	// JobDuration tracks time spent holding a page.
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawlpool_job_duration_seconds",
			Help:    "Time a job held its leased page",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"kind"},
	)

	// QueueWait tracks time between enqueue and dispatch.
	QueueWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawlpool_queue_wait_seconds",
			Help:    "Time requests spent queued before a page was leased",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	// PoolCapacity shows the configured page count.
	PoolCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawlpool_pool_capacity",
			Help: "Configured number of pages per session",
		},
	)

	// PoolAvailable shows idle pages.
	PoolAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawlpool_pool_available",
			Help: "Idle pages in the pool",
		},
	)

	// PoolProcessing shows leased pages.
	PoolProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawlpool_pool_processing",
			Help: "Pages currently leased to jobs",
		},
	)

	// QueueLength shows requests waiting for a page.
	QueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawlpool_queue_length",
			Help: "Requests waiting for a page",
		},
	)

	// SessionActive is 1 while a browser session is live.
	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawlpool_session_active",
			Help: "Whether a browser session is initialized",
		},
	)

	// SessionEvents counts session lifecycle transitions.
	SessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawlpool_session_events_total",
			Help: "Session lifecycle events",
		},
		[]string{"event"},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawlpool_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawlpool_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawlpool_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		JobsTotal,
		JobDuration,
		QueueWait,
		PoolCapacity,
		PoolAvailable,
		PoolProcessing,
		QueueLength,
		SessionActive,
		SessionEvents,
		MemoryUsageBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartRuntimeCollector periodically updates memory and goroutine gauges
// until stopCh is closed.
func StartRuntimeCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateRuntimeMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed API request.
func RecordRequest(endpoint, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordJob records a finished job.
func RecordJob(kind, outcome string, duration time.Duration) {
	JobsTotal.WithLabelValues(kind, outcome).Inc()
	JobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordQueueWait records how long a request waited for a page.
func RecordQueueWait(d time.Duration) {
	QueueWait.Observe(d.Seconds())
}

// RecordSessionEvent records a session lifecycle event such as
// "created", "create_failed", "idle_teardown" or "cleanup".
func RecordSessionEvent(event string) {
	SessionEvents.WithLabelValues(event).Inc()
}

// UpdatePoolMetrics publishes a pool snapshot.
func UpdatePoolMetrics(capacity, available, processing, queued int, initialized bool) {
	PoolCapacity.Set(float64(capacity))
	PoolAvailable.Set(float64(available))
	PoolProcessing.Set(float64(processing))
	QueueLength.Set(float64(queued))
	if initialized {
		SessionActive.Set(1)
	} else {
		SessionActive.Set(0)
	}
}
