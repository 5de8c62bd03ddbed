package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests per named bucket. Each bucket allows a number of
// requests per period with a burst of the same size.
type RateLimiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	requests int
	period   time.Duration
	metrics  *Metrics
}

// Metrics tracks statistics about rate limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64
	bucketCount     atomic.Int32
}

// New creates a RateLimiter whose buckets default to requests per period.
func New(requests int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*rate.Limiter),
		requests: requests,
		period:   period,
		metrics:  &Metrics{},
	}
}

func newLimiter(requests int, period time.Duration) *rate.Limiter {
	rps := float64(requests) / period.Seconds()
	return rate.NewLimiter(rate.Limit(rps), requests)
}

// Wait blocks until the named bucket allows a request or the context is cancelled.
// Buckets are created on demand with the default limit.
func (r *RateLimiter) Wait(ctx context.Context, bucket string) error {
	r.metrics.totalRequests.Add(1)
	err := r.getBucket(bucket).Wait(ctx)
	if err != nil {
		r.metrics.deniedRequests.Add(1)
		return err
	}
	r.metrics.allowedRequests.Add(1)
	return nil
}

// Allow returns true if the named bucket permits a request immediately.
func (r *RateLimiter) Allow(bucket string) bool {
	r.metrics.totalRequests.Add(1)
	allowed := r.getBucket(bucket).Allow()
	if allowed {
		r.metrics.allowedRequests.Add(1)
	} else {
		r.metrics.deniedRequests.Add(1)
	}
	return allowed
}

func (r *RateLimiter) getBucket(bucket string) *rate.Limiter {
	r.mu.RLock()
	limiter, ok := r.buckets[bucket]
	r.mu.RUnlock()
	if ok {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok := r.buckets[bucket]; ok {
		return limiter
	}
	limiter = newLimiter(r.requests, r.period)
	r.buckets[bucket] = limiter
	r.metrics.bucketCount.Add(1)
	return limiter
}

// SetBucketLimit replaces the limit of a bucket with requests per period.
// The bucket is created if it does not exist.
func (r *RateLimiter) SetBucketLimit(bucket string, requests int, period time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buckets[bucket]; !ok {
		r.metrics.bucketCount.Add(1)
	}
	r.buckets[bucket] = newLimiter(requests, period)
}

// Metrics returns a snapshot of the current rate limiter statistics.
func (r *RateLimiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   r.metrics.totalRequests.Load(),
		AllowedRequests: r.metrics.allowedRequests.Load(),
		DeniedRequests:  r.metrics.deniedRequests.Load(),
		BucketCount:     r.metrics.bucketCount.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of rate limiter statistics.
type MetricsSnapshot struct {
	// TotalRequests is the total number of rate limit checks performed.
	TotalRequests int64
	// AllowedRequests is the number of requests that were allowed.
	AllowedRequests int64
	// DeniedRequests is the number of requests that were denied.
	DeniedRequests int64
	// BucketCount is the number of rate limit buckets in use.
	BucketCount int32
}
