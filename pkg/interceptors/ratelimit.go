package interceptors

import (
	"net/http"
	"strconv"
	"time"

	"slicectl/pkg/logger"
	"slicectl/pkg/ratelimit"
)

// HTTPKeyExtractor derives a rate-limit bucket key from an HTTP request.
type HTTPKeyExtractor func(r *http.Request) string

// DefaultHTTPKeyExtractor buckets by client IP, preferring the
// X-Forwarded-For / X-Real-IP headers set by an upstream proxy.
func DefaultHTTPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit rejects requests over the configured limit with 429 and
// X-RateLimit-* headers describing the bucket's state. It fails open
// (lets the request through) if the limiter backend itself errors.
func RateLimit(limiter ratelimit.Limiter, keyFn HTTPKeyExtractor) Middleware {
	if keyFn == nil {
		keyFn = DefaultHTTPKeyExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Log.Warn("rate limit check failed", "error", err, "key", key)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				info, infoErr := limiter.GetInfo(r.Context(), key)
				if infoErr != nil {
					logger.Log.Warn("failed to get rate limit info", "error", infoErr, "key", key)
					info = &ratelimit.LimitInfo{ResetAt: time.Now().Add(time.Minute)}
				}

				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", info.ResetAt.Format(time.RFC3339))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"rate limit exceeded"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
