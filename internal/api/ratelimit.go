package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit rejects requests beyond the limiter's budget with 429.
// A nil limiter disables limiting.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewLimiter returns nil when either setting is not positive
func NewLimiter(perSecond, burst int) *rate.Limiter {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(perSecond)), burst)
}
