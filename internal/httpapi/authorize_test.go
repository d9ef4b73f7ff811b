package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"gymgate.io/internal/auth"
)

func identityRequest(t *testing.T, method, target string, body io.Reader, id auth.Identity) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, target, body)
	return r.WithContext(auth.ContextWithIdentity(r.Context(), id))
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(auth.RoleManager, auth.RoleAdmin)(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(t, http.MethodGet, "/", nil, auth.Identity{
		AccountID: "acc-1", Roles: []auth.Role{auth.RoleManager},
	}))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("manager refused: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(t, http.MethodGet, "/", nil, auth.Identity{
		AccountID: "acc-2", Roles: []auth.Role{auth.RoleMember},
	}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member allowed: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "manager") {
		t.Fatalf("403 body should name the allowed roles: %s", rec.Body.String())
	}

	// Unauthenticated requests get 401, not 403.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous request = %d, want 401", rec.Code)
	}
}

func TestRequireOwnershipOrAdmin(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireOwnershipOrAdmin("accountID")).
		Get("/accounts/{accountID}", okHandler)

	cases := []struct {
		name string
		id   auth.Identity
		path string
		want int
	}{
		{"owner", auth.Identity{AccountID: "acc-1", Roles: []auth.Role{auth.RoleMember}}, "/accounts/acc-1", http.StatusNoContent},
		{"other member", auth.Identity{AccountID: "acc-2", Roles: []auth.Role{auth.RoleMember}}, "/accounts/acc-1", http.StatusForbidden},
		{"manager not owner", auth.Identity{AccountID: "acc-3", Roles: []auth.Role{auth.RoleManager}}, "/accounts/acc-1", http.StatusForbidden},
		{"admin", auth.Identity{AccountID: "acc-4", Roles: []auth.Role{auth.RoleAdmin}}, "/accounts/acc-1", http.StatusNoContent},
		{"super admin", auth.Identity{AccountID: "acc-5", Roles: []auth.Role{auth.RoleSuperAdmin}}, "/accounts/acc-1", http.StatusNoContent},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, identityRequest(t, http.MethodGet, tc.path, nil, tc.id))
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestRequireBranchAccessFromURLParam(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireBranchAccess("branchID")).
		Get("/branches/{branchID}/members", okHandler)

	trainer := auth.Identity{AccountID: "acc-1", Roles: []auth.Role{auth.RoleTrainer}, Branches: []string{"br-1"}}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, identityRequest(t, http.MethodGet, "/branches/br-1/members", nil, trainer))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("assigned branch refused: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, identityRequest(t, http.MethodGet, "/branches/br-2/members", nil, trainer))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign branch allowed: %d", rec.Code)
	}

	admin := auth.Identity{AccountID: "acc-2", Roles: []auth.Role{auth.RoleAdmin}}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, identityRequest(t, http.MethodGet, "/branches/br-2/members", nil, admin))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin refused: %d", rec.Code)
	}
}

func TestRequireBranchAccessFromBodyAndQuery(t *testing.T) {
	trainer := auth.Identity{AccountID: "acc-1", Roles: []auth.Role{auth.RoleTrainer}, Branches: []string{"br-1"}}

	// Body names the branch; the handler must still be able to read it.
	var seenBody string
	handler := RequireBranchAccess("branchID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seenBody = string(raw)
		w.WriteHeader(http.StatusNoContent)
	}))

	body := `{"branch_id":"br-1","note":"hello"}`
	r := identityRequest(t, http.MethodPost, "/classes", strings.NewReader(body), trainer)
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("body-scoped request refused: %d %s", rec.Code, rec.Body.String())
	}
	if seenBody != body {
		t.Fatalf("body not restored for handler: %q", seenBody)
	}

	// Foreign branch in the body.
	r = identityRequest(t, http.MethodPost, "/classes", strings.NewReader(`{"branch_id":"br-2"}`), trainer)
	r.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign branch in body allowed: %d", rec.Code)
	}

	// Query string fallback.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(t, http.MethodGet, "/classes?branchID=br-1", nil, trainer))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("query-scoped request refused: %d", rec.Code)
	}

	// No branch named anywhere: non-admins are refused.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, identityRequest(t, http.MethodGet, "/classes", nil, trainer))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("branchless request allowed for non-admin: %d", rec.Code)
	}
}

func TestRequireBranchAccessParamBeatsBody(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireBranchAccess("branchID")).
		Post("/branches/{branchID}/classes", okHandler)

	trainer := auth.Identity{AccountID: "acc-1", Roles: []auth.Role{auth.RoleTrainer}, Branches: []string{"br-1"}}

	// URL says br-2; a permitted branch in the body must not override it.
	req := identityRequest(t, http.MethodPost, "/branches/br-2/classes",
		strings.NewReader(`{"branch_id":"br-1"}`), trainer)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("URL param must take priority over body: %d", rec.Code)
	}

	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("403 body not JSON: %v", err)
	}
	if body.Error == "" {
		t.Fatal("403 body missing error message")
	}
}
