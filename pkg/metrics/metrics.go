// Package metrics provides Prometheus collectors for crmtap and the
// per-stream record counter used by the sync loop.
//
// # Basic Usage
//
//	counter := metrics.NewRecordCounter("Account", time.Minute, logger)
//	defer counter.Close()
//	for rec := range records {
//	    counter.Increment()
//	}
//
// Collectors are registered with the default Prometheus registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsSynced counts records emitted per stream.
	//
	// Example:
	//	metrics.RecordsSynced.WithLabelValues("Account").Inc()
	RecordsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmtap_records_synced_total",
			Help: "Total number of records emitted",
		},
		[]string{"stream"},
	)

	// StreamDuration tracks how long each stream sync takes, in seconds.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmtap_stream_sync_duration_seconds",
			Help:    "Duration of a stream sync in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8), // 100ms .. ~27m
		},
		[]string{"stream", "status"},
	)

	// Throughput tracks records per second of the running stream.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crmtap_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"stream"},
	)

	// HTTPRequests counts remote API requests by method, host and outcome.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmtap_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "host", "status"},
	)

	// HTTPLatency tracks remote API request latency in seconds.
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "crmtap_http_request_duration_seconds",
			Help: "HTTP request latency in seconds",
			Buckets: []float64{
				0.01, // 10ms
				0.05,
				0.1,
				0.25,
				0.5,
				1,
				2.5,
				5,
				10,
				30, // bulk query pages
			},
		},
		[]string{"method", "host"},
	)

	// RateLimitWait tracks time spent waiting on the client-side rate limiter.
	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crmtap_rate_limit_wait_seconds",
			Help:    "Time requests waited for a rate limiter token",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	// APIUsage holds the last reported daily API usage.
	APIUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crmtap_api_usage",
			Help: "Daily API requests used and allowed, as last reported by the remote",
		},
		[]string{"kind"},
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

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Records since last reset
	lastReset time.Time // Time of last reset
	stream    string
	now       func() time.Time
}

// NewThroughputTracker creates a tracker reporting under stream.
func NewThroughputTracker(stream string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		stream:    stream,
		now:       time.Now,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns records per second since the last reset, updates the
// Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	elapsed := now.Sub(t.lastReset).Seconds()
	if elapsed <= 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = now

	Throughput.WithLabelValues(t.stream).Set(throughput)

	return throughput
}
