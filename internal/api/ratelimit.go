package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

// RateLimiter applies a token bucket per client IP. Buckets of idle clients
// expire so memory stays bounded by recent traffic.
type RateLimiter struct {
	limiters *gocache.Cache
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

// NewRateLimiter creates a per-IP limiter. A non-positive rps disables limiting.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return newRateLimiter(requestsPerSecond, burst, limiterIdleTTL)
}

func newRateLimiter(requestsPerSecond float64, burst int, idle time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: gocache.New(idle, idle),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow reports whether a request from client may proceed.
func (l *RateLimiter) Allow(client string) bool {
	if l.rps <= 0 {
		return true
	}
	return l.getLimiter(client).Allow()
}

// Clients returns the number of tracked client buckets.
func (l *RateLimiter) Clients() int {
	return l.limiters.ItemCount()
}

func (l *RateLimiter) getLimiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters.Get(client)
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
	}
	// Re-set on every request to slide the idle expiry
	l.limiters.SetDefault(client, limiter)
	return limiter.(*rate.Limiter)
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
