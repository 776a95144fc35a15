package interceptors

import (
	"net/http"

	"slicectl/pkg/audit"
	"slicectl/pkg/ratelimit"
	"slicectl/pkg/telemetry"
)

// ServerConfig configures the standard middleware stack applied to the
// control-plane API.
type ServerConfig struct {
	ServiceName   string
	EnableTracing bool
	EnableAudit   bool
	RateLimiter   ratelimit.Limiter
	AuditLogger   audit.Logger
	AuditExclude  map[string]bool
	KeyExtractor  HTTPKeyExtractor
}

// Default builds the standard middleware chain: recovery first (so nothing
// downstream can take the process down), then request ID, rate limiting, tracing,
// metrics, logging, and finally audit (so it sees the handler's outcome).
func Default(cfg *ServerConfig) Middleware {
	chain := []Middleware{Recovery(), RequestID()}

	if cfg.RateLimiter != nil {
		chain = append(chain, RateLimit(cfg.RateLimiter, cfg.KeyExtractor))
	}

	if cfg.EnableTracing {
		chain = append(chain, telemetry.HTTPMiddleware)
	}

	chain = append(chain, Metrics(), Logging())

	if cfg.EnableAudit && cfg.AuditLogger != nil {
		chain = append(chain, Audit(AuditConfig{
			ServiceName:   cfg.ServiceName,
			ExcludeRoutes: cfg.AuditExclude,
			Logger:        cfg.AuditLogger,
		}))
	}

	return Chain(chain...)
}

// WithRoutePattern stashes the matched route pattern (e.g.
// "/v1/tunnels/{tunnel_id}") in the request context so Metrics and Audit
// can label cardinality-bounded routes instead of raw paths.
func WithRoutePattern(pattern string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := contextWithRoute(r.Context(), pattern)
		h(w, r.WithContext(ctx))
	}
}
