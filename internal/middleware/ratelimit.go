package middleware

import (
	"net/http"

	"github.com/astrachat/internal/ratelimit"
)

// ClientIP resolves the caller's address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if x := r.Header.Get("X-Real-Ip"); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		return x
	}
	return r.RemoteAddr
}

// RateLimit throttles an HTTP endpoint per client IP using the shared
// sliding-window limiter (pre-authentication call sites resolve identity by
// address). 429 on excess.
func RateLimit(limiter *ratelimit.Limiter, op string, max, windowSec int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(op, ratelimit.IP(ClientIP(r)), max, windowSec) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
