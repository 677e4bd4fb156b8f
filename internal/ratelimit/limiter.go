// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound requests per host, beneath the
// downloader's adaptive in-flight slot mechanism. The wiki host and
// the media host get independent token buckets.
type RateLimiter interface {
	// Wait blocks until a request for the given URL can proceed.
	Wait(ctx context.Context, urlStr string) error

	// Allow reports whether a request for the given URL can proceed
	// immediately without blocking.
	Allow(urlStr string) bool
}

// HostLimiter provides per-host rate limiting using the token bucket
// algorithm.
type HostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	perHost  rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter with the specified per-host rate.
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10.0
	}
	if burst <= 0 {
		burst = 20
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		perHost:  rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Wait blocks until the request for the given URL may proceed.
func (hl *HostLimiter) Wait(ctx context.Context, urlStr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	host := extractHost(urlStr)
	if host == "" {
		// Invalid URL, let it proceed (will fail elsewhere).
		return nil
	}
	return hl.getLimiter(host).Wait(ctx)
}

// Allow checks if a request can proceed immediately without blocking.
func (hl *HostLimiter) Allow(urlStr string) bool {
	host := extractHost(urlStr)
	if host == "" {
		return true
	}
	return hl.getLimiter(host).Allow()
}

func (hl *HostLimiter) getLimiter(host string) *rate.Limiter {
	hl.mu.RLock()
	limiter, exists := hl.limiters[host]
	hl.mu.RUnlock()
	if exists {
		return limiter
	}

	hl.mu.Lock()
	defer hl.mu.Unlock()
	if limiter, exists := hl.limiters[host]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(hl.perHost, hl.burst)
	hl.limiters[host] = limiter
	return limiter
}

func extractHost(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}
