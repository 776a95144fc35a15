package interceptors

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"slicectl/pkg/metrics"
)

// Metrics records request counts, latency, and in-flight gauges for every
// request that passes through the control-plane API.
func Metrics() Middleware {
	m := metrics.Get()
	tracker := metrics.NewRequestTracker(m.HTTPRequestsInFlight)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeLabel(r)
			tracker.Start(route)
			defer tracker.End(route)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			m.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}

// routeLabel collapses path parameters (e.g. tunnel IDs) into a stable
// cardinality-bounded label for metrics.
func routeLabel(r *http.Request) string {
	if route, ok := r.Context().Value(routePatternKey{}).(string); ok && route != "" {
		return route
	}
	return r.URL.Path
}

// routePatternKey is used by handlers to stash the matched route pattern
// (e.g. "/v1/tunnels/{tunnel_id}") in the request context before the
// metrics middleware reads it back out.
type routePatternKey struct{}

func contextWithRoute(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routePatternKey{}, pattern)
}
