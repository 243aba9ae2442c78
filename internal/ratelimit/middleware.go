package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/kuitang/epic-notes/internal/obs"
)

// DefaultRetryAfterSeconds is the default value for the Retry-After header
// when a rate limit is exceeded.
const DefaultRetryAfterSeconds = 1

// Middleware enforces limiter per key. Requests with an empty key pass through.
//
// Rejected requests get 429 Too Many Requests with Retry-After and
// X-RateLimit-Remaining headers.
func Middleware(limiter *RateLimiter, keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			rateLimiter := limiter.GetLimiter(key)
			if !rateLimiter.Allow() {
				obs.RateLimited.Inc()
				obs.From(r.Context()).Warn("rate_limited", "pkg", "ratelimit", "key", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("Too Many Requests"))
				return
			}

			remaining := int(rateLimiter.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}

// ByClientIP is the key function used for browser and API writes.
func ByClientIP(r *http.Request) string {
	if ip := obs.CorrelationFromContext(r.Context()).ClientIP; ip != "" {
		return ip
	}
	return obs.ClientIP(r)
}
