package clients

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ajitpratap0/crmtap/pkg/metrics"
)

// HTTPMetrics records request outcomes to Prometheus and keeps in-process
// totals for the end-of-run summary.
type HTTPMetrics struct {
	mu             sync.Mutex
	totalRequests  int64
	failedRequests int64
	totalLatency   time.Duration
	statusCounts   map[int]int64
}

// NewHTTPMetrics creates a new HTTP metrics tracker
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{statusCounts: make(map[int]int64)}
}

// RecordRequest records one round trip. resp is nil when err is set.
func (hm *HTTPMetrics) RecordRequest(method, host string, latency time.Duration, resp *http.Response, err error) {
	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	metrics.HTTPRequests.WithLabelValues(method, host, status).Inc()
	metrics.HTTPLatency.WithLabelValues(method, host).Observe(latency.Seconds())

	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.totalRequests++
	hm.totalLatency += latency
	if err != nil || resp == nil {
		hm.failedRequests++
		return
	}
	hm.statusCounts[resp.StatusCode]++
	if resp.StatusCode >= 400 {
		hm.failedRequests++
	}
}

// Stats returns a snapshot of the totals
func (hm *HTTPMetrics) Stats() HTTPStats {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	stats := HTTPStats{
		TotalRequests:  hm.totalRequests,
		FailedRequests: hm.failedRequests,
		StatusCounts:   make(map[int]int64, len(hm.statusCounts)),
	}
	for k, v := range hm.statusCounts {
		stats.StatusCounts[k] = v
	}
	if hm.totalRequests > 0 {
		stats.AverageLatency = hm.totalLatency / time.Duration(hm.totalRequests)
		stats.SuccessRate = float64(hm.totalRequests-hm.failedRequests) / float64(hm.totalRequests) * 100
	}
	return stats
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalRequests  int64             `json:"total_requests"`
	FailedRequests int64             `json:"failed_requests"`
	SuccessRate    float64           `json:"success_rate"`
	AverageLatency time.Duration     `json:"average_latency"`
	StatusCounts   map[int]int64     `json:"status_counts"`
	RateLimiter    *RateLimiterStats `json:"rate_limiter,omitempty"`
}
