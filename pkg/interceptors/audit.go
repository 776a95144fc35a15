package interceptors

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slicectl/pkg/audit"
	"slicectl/pkg/logger"
)

// AuditConfig configures the Audit middleware.
type AuditConfig struct {
	ServiceName   string
	ExcludeRoutes map[string]bool
	Logger        audit.Logger
}

// Audit records one audit.Entry per request, after the handler has run,
// classifying the action from the HTTP method and route.
func Audit(cfg AuditConfig) Middleware {
	if cfg.Logger == nil {
		cfg.Logger = audit.Get()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeLabel(r)
			if cfg.ExcludeRoutes != nil && cfg.ExcludeRoutes[route] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)

			builder := audit.NewEntry().
				Service(cfg.ServiceName).
				Method(r.Method + " " + route).
				Action(methodToAction(r.Method, route)).
				Client(clientIP(r), r.UserAgent()).
				RequestID(RequestIDFromContext(r.Context())).
				Duration(duration)

			if strings.Contains(route, "tunnels") {
				if tunnelID := r.PathValue("tunnel_id"); tunnelID != "" {
					builder.Resource("tunnel", tunnelID)
				}
			}

			if rec.status >= 400 {
				builder.Outcome(audit.OutcomeFailure).Error(strconv.Itoa(rec.status), http.StatusText(rec.status))
			} else {
				builder.Outcome(audit.OutcomeSuccess)
			}

			entry := builder.Build()
			go func() {
				if err := cfg.Logger.Log(context.Background(), entry); err != nil {
					logger.Log.Warn("failed to write audit log", "error", err)
				}
			}()
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.Split(xff, ",")[0]
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func methodToAction(method, route string) audit.Action {
	switch {
	case method == http.MethodPost && strings.Contains(route, "tunnels"):
		return audit.ActionAllocate
	case method == http.MethodDelete && strings.Contains(route, "tunnels"):
		return audit.ActionDeallocate
	case method == http.MethodGet:
		return audit.ActionRead
	default:
		return audit.ActionRead
	}
}
