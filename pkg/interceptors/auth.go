package interceptors

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"slicectl/pkg/apperror"
	"slicectl/pkg/passhash"
)

type contextKey int

const claimsContextKey contextKey = iota

// Auth returns a Middleware validating a bearer token on every request
// against manager. When manager is nil the middleware is a no-op
// pass-through, matching the default local/dev profile where auth is
// disabled.
func Auth(manager *passhash.JWTManager) Middleware {
	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w)
				return
			}
			claims, err := manager.ValidateToken(token)
			if err != nil {
				writeAuthError(w)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter) {
	err := apperror.New(apperror.CodeInvalidInput, "missing or invalid bearer token")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": apperror.Code(err), "message": err.Error()},
	})
}

// ClaimsFromContext returns the validated JWT claims attached by Auth, if any.
func ClaimsFromContext(ctx context.Context) (*passhash.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey).(*passhash.Claims)
	return c, ok
}
