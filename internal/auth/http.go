// ABOUTME: HTTP middleware for sender authentication on API endpoints
// ABOUTME: Resolves identity via Identifier and adds AuthContext to the request context

package auth

import (
	"log/slog"
	"net/http"
)

// HTTPAuthMiddleware creates an HTTP middleware that rejects requests without
// a valid identity. It adds AuthContext to the request context using the same
// WithAuth/FromContext pattern as the gRPC interceptor.
func HTTPAuthMiddleware(id *Identifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := id.FromHTTP(r)
			if err != nil {
				if logger != nil {
					logger.Warn("auth failure", "reason", err.Error(), "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// OptionalAuthMiddleware attempts identification but allows anonymous requests.
func OptionalAuthMiddleware(id *Identifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := id.FromHTTP(r)
			if err != nil {
				next.ServeHTTP(w, r) // Continue as anonymous
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
