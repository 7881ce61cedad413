package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/noosphera/internal/api/response"
	"github.com/kiranshivaraju/noosphera/internal/cache"
	"github.com/kiranshivaraju/noosphera/internal/metrics"
)

const (
	defaultRequestsPerMinute = 60
	rateLimitWindow          = time.Minute
)

// RateLimit provides fixed-window rate limiting per API key prefix via Redis.
type RateLimit struct {
	counter        cache.Counter
	requestsPerMin int
	now            func() time.Time
}

// NewRateLimit creates a new RateLimit middleware. A nil counter disables
// limiting.
func NewRateLimit(c cache.Counter, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{counter: c, requestsPerMin: requestsPerMin, now: time.Now}
}

// Limit applies rate limiting based on the key prefix set by auth middleware.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.counter == nil {
			next.ServeHTTP(w, r)
			return
		}
		prefix, ok := getKeyPrefix(r)
		if !ok {
			// No key prefix means auth middleware didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		count, err := rl.counter.IncrWithExpiry(r.Context(), cache.RateLimitKey(prefix, now, rateLimitWindow), rateLimitWindow)
		if err != nil {
			// On Redis error, allow the request (fail open)
			slog.Warn("rate limit counter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		reset := now.Truncate(rateLimitWindow).Add(rateLimitWindow)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			metrics.RateLimitRejectedTotal.Inc()
			retry := int(reset.Sub(now).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
