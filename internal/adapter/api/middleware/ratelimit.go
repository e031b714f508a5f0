package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/edgestack/logcenter/internal/adapter/metrics"
)

// RateLimit bounds total management API requests per minute. Rejections are
// structured JSON with a retry hint; the limiter is shared across clients.
func RateLimit(requestsPerMinute int, m *metrics.Metrics) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				if m != nil {
					m.RateLimitedTotal.Inc()
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      "rate limit exceeded",
					"code":       "rate_limited",
					"retryAfter": 60,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
