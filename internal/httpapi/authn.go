package httpapi

import (
	"net/http"
	"strings"

	"gymgate.io/internal/auth"
)

// extractBearerToken pulls the credential from the Authorization header. The
// scheme comparison is case-insensitive; the token itself is returned as-is.
func extractBearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// withAuth verifies the access token and attaches the resulting identity and
// the raw token to the request context. Requests without a valid token are
// rejected here; role checks happen further down the chain.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		claims, err := a.issuer.VerifyAccessToken(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), auth.IdentityFromClaims(claims))
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="gymgate"`)
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: msg})
}

func forbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, errorBody{Error: msg})
}
