package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gymgate.io/internal/auth"
)

// RequireAuth passes only requests that already carry an authenticated
// identity. Used inside groups whose outer layer ran withAuth.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.IdentityFromContext(r.Context()); !ok {
			unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows callers holding at least one of the given roles.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			if !id.HasRole(roles...) {
				forbidden(w, "requires one of roles: "+joinRoles(roles))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnershipOrAdmin allows admins through unconditionally and everyone
// else only when the URL parameter equals their own account id.
func RequireOwnershipOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			if id.IsAdmin() || chi.URLParam(r, param) == id.AccountID {
				next.ServeHTTP(w, r)
				return
			}
			forbidden(w, "not the resource owner")
		})
	}
}

// RequireBranchAccess checks the caller's branch scope against the branch the
// request targets. The branch id is taken from the URL parameter first, then a
// JSON body field, then the query string; the first non-empty source wins.
// Admin roles bypass the check. A request naming no branch at all is refused
// for non-admins.
func RequireBranchAccess(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			if id.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			branchID := branchIDFromRequest(r, param)
			if !id.CanAccessBranch(branchID) {
				forbidden(w, "branch access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func branchIDFromRequest(r *http.Request, param string) string {
	if v := strings.TrimSpace(chi.URLParam(r, param)); v != "" {
		return v
	}
	if v := branchIDFromBody(r); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(param))
}

// branchIDFromBody peeks at a JSON body for a branch_id field and restores the
// body so the handler can still decode it.
func branchIDFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return ""
	}
	raw, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var probe struct {
		BranchID string `json:"branch_id"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	return strings.TrimSpace(probe.BranchID)
}

func joinRoles(roles []auth.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}
