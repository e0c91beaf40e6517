package httpapi

import (
	"net/http"
	"strings"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/identity"
)

// withAuth validates bearer tokens and places the caller's address and roles
// on the request context. Read-only routes and operational endpoints stay
// public so probes and dashboards work without credentials.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearerToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := identity.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := identity.ContextWithCaller(r.Context(), claims.Address(), claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublic(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics", "/v1/info", "/v1/auth/token", "/v1/events", "/":
		return true
	}
	if r.Method == http.MethodGet {
		if r.URL.Path == "/v1/policy" || strings.HasPrefix(r.URL.Path, "/v1/auctions") {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
