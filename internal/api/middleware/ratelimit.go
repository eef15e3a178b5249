package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/reviewrelay/internal/api/response"
	"github.com/kiranshivaraju/reviewrelay/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = 60 * time.Second
)

// RateLimit provides fixed-window rate limiting via the cache, per client.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin}
}

// Limit counts requests per ClientID. Cache failures let the request through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cache.RateLimitKey(ClientID(r))
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, rateWindow)
		if err != nil {
			if !errors.Is(err, cache.ErrDisabled) {
				slog.Warn("rate limit check failed, allowing request", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(rateWindow).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}
