package clients

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/crmtap/pkg/metrics"
)

// RateLimiter throttles outgoing requests.
type RateLimiter interface {
	// Allow takes a token without waiting and reports whether one was free.
	Allow() bool
	// Wait blocks until a token is free or ctx is done.
	Wait(ctx context.Context) error
	// GetStats returns rate limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats reports the limiter's configuration and activity.
type RateLimiterStats struct {
	Rate            float64       `json:"rate"`
	Burst           int           `json:"burst"`
	AllowedRequests int64         `json:"allowed_requests"`
	BlockedRequests int64         `json:"blocked_requests"`
	CurrentTokens   float64       `json:"current_tokens"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
}

// TokenBucketRateLimiter refills rate tokens per second up to burst; every
// request spends one. Time spent waiting is reported to
// metrics.RateLimitWait.
type TokenBucketRateLimiter struct {
	mu       sync.Mutex
	rate     float64
	burst    int
	tokens   float64
	lastTime time.Time
	now      func() time.Time

	allowed   int64
	blocked   int64
	totalWait time.Duration
}

// NewTokenBucketRateLimiter creates a full bucket.
func NewTokenBucketRateLimiter(rate float64, burst int) *TokenBucketRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketRateLimiter{
		rate:     rate,
		burst:    burst,
		tokens:   float64(burst),
		lastTime: time.Now(),
		now:      time.Now,
	}
}

// Allow takes a token if one is free.
func (tb *TokenBucketRateLimiter) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.take() {
		tb.allowed++
		return true
	}
	tb.blocked++
	return false
}

// Wait blocks until a token is free or ctx is done.
func (tb *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	start := tb.now()

	for {
		tb.mu.Lock()
		if tb.take() {
			waited := tb.now().Sub(start)
			tb.allowed++
			tb.totalWait += waited
			tb.mu.Unlock()
			metrics.RateLimitWait.Observe(waited.Seconds())
			return nil
		}
		// time until the bucket holds one whole token
		delay := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			tb.mu.Lock()
			tb.blocked++
			tb.mu.Unlock()
			return ctx.Err()
		}
	}
}

// take refills the bucket and spends a token when one is available. The
// caller holds mu.
func (tb *TokenBucketRateLimiter) take() bool {
	now := tb.now()
	tb.tokens += now.Sub(tb.lastTime).Seconds() * tb.rate
	if limit := float64(tb.burst); tb.tokens > limit {
		tb.tokens = limit
	}
	tb.lastTime = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// GetStats returns rate limiter statistics
func (tb *TokenBucketRateLimiter) GetStats() RateLimiterStats {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	stats := RateLimiterStats{
		Rate:            tb.rate,
		Burst:           tb.burst,
		AllowedRequests: tb.allowed,
		BlockedRequests: tb.blocked,
		CurrentTokens:   tb.tokens,
	}
	if tb.allowed > 0 {
		stats.AverageWaitTime = tb.totalWait / time.Duration(tb.allowed)
	}
	return stats
}
