package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/kugelpos/transactional-core/infrastructure/httputil"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token-bucket limiter per key (tenant id, terminal
// id, or remote addr — whatever the caller supplies via keyFn), evicting
// idle entries lazily so the map does not grow without bound.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = time.Now()

	if len(l.limiters) > 10000 {
		l.evictLocked()
	}
	return entry.limiter.Allow()
}

func (l *RateLimiter) evictLocked() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for k, v := range l.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}

// Middleware rate-limits requests keyed by keyFn's return value, rejecting
// with 429 once the bucket for that key is exhausted.
func (l *RateLimiter) Middleware(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(keyFn(r)) {
				httputil.WriteError(w, http.StatusTooManyRequests, "rate-limit", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ByRemoteAddr is a keyFn using the request's RemoteAddr.
func ByRemoteAddr(r *http.Request) string { return r.RemoteAddr }

// ByTenant is a keyFn using the authenticated tenant id.
func ByTenant(r *http.Request) string { return TenantID(r) }
