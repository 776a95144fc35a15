// Package interceptors provides the HTTP middleware chain for the
// control-plane API: recovery, rate limiting, metrics, logging,
// and audit logging, composed around net/http handlers.
package interceptors

import "net/http"

// Middleware wraps an http.Handler to add cross-cutting behavior.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so that the first one listed runs outermost
// (sees the request first, the response last).
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		h := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}
