package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"gymgate.io/internal/auth"
	"gymgate.io/internal/auth/authtest"
)

type noMail struct{}

func (noMail) SendVerification(context.Context, string, string) error  { return nil }
func (noMail) SendPasswordReset(context.Context, string, string) error { return nil }
func (noMail) SendWelcome(context.Context, string, string) error       { return nil }

type noAudit struct{}

func (noAudit) Event(context.Context, string, map[string]any) {}

type apiEnv struct {
	store  *authtest.Store
	router http.Handler
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	store := authtest.NewStore()
	issuer, err := auth.NewTokenIssuer("test-access-secret", "test-refresh-secret")
	if err != nil {
		t.Fatal(err)
	}
	lg := zap.NewNop().Sugar()
	resolver := auth.NewResolver(store)
	rotation := auth.NewRotationService(store, issuer, resolver, noAudit{}, lg)
	service := auth.NewService(store, issuer, resolver, rotation, noMail{}, noAudit{}, lg)
	api := New(service, rotation, issuer, store, nil, lg,
		WithAuthRateLimit(100000, 10000))
	return &apiEnv{store: store, router: api.Router()}
}

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, r)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response body not JSON: %v (%s)", err, rec.Body.String())
	}
	return out
}

// signupAndLogin walks register, verify-email and login over HTTP.
func (env *apiEnv) signupAndLogin(t *testing.T, email string) (access, refresh string) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "Abcdef12", "full_name": "Test User",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}
	userID := decodeBody(t, rec)["user_id"].(string)

	token, ok := env.store.OneTimeTokenFor(userID, auth.PurposeEmailVerification)
	if !ok {
		t.Fatal("verification token not stored")
	}
	rec = env.do(t, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-email = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "Abcdef12",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "jane@example.com", "password": "Abcdef12", "full_name": "Jane Doe",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	if created["email"] != "jane@example.com" || created["user_id"] == "" {
		t.Fatalf("unexpected register body: %v", created)
	}

	// Login before verification is refused with account state, not credentials.
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "jane@example.com", "password": "Abcdef12",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unverified login = %d, want 403", rec.Code)
	}

	access, _ := env.signupAndLogin(t, "john@example.com")

	rec = env.do(t, http.MethodGet, "/api/auth/me", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/me = %d: %s", rec.Code, rec.Body.String())
	}
	me := decodeBody(t, rec)
	if me["email"] != "john@example.com" || me["primary_role"] != "member" {
		t.Fatalf("unexpected /me body: %v", me)
	}
}

func TestLoginEnumerationSafeOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	env.signupAndLogin(t, "jane@example.com")

	unknown := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ghost@example.com", "password": "Abcdef12",
	})
	wrong := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "jane@example.com", "password": "WrongPass1",
	})
	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("status mismatch: %d vs %d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("bodies must be identical: %s vs %s", unknown.Body.String(), wrong.Body.String())
	}
}

func TestRefreshRotationAndReuse(t *testing.T) {
	env := newAPIEnv(t)
	_, refresh := env.signupAndLogin(t, "jane@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d: %s", rec.Code, rec.Body.String())
	}
	rotated := decodeBody(t, rec)
	newRefresh := rotated["refresh_token"].(string)
	if newRefresh == refresh {
		t.Fatal("refresh must rotate the token")
	}

	// Replaying the consumed token is reuse: 401 and the family dies.
	rec = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh = %d, want 401", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": newRefresh})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("descendant refresh after reuse = %d, want 401", rec.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newAPIEnv(t)
	access, refresh := env.signupAndLogin(t, "jane@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/logout", access, map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout = %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/auth/sessions", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions = %d", rec.Code)
	}
	var sessions struct {
		Sessions []auth.Session `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions.Sessions) != 0 {
		t.Fatalf("expected no sessions after logout, got %d", len(sessions.Sessions))
	}
}

func TestChangePasswordOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	access, _ := env.signupAndLogin(t, "jane@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/change-password", access, map[string]string{
		"current_password": "WrongPass1", "new_password": "Newpass12",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password = %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/change-password", access, map[string]string{
		"current_password": "Abcdef12", "new_password": "weak",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password = %d, want 400", rec.Code)
	}
	var weak errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &weak); err != nil || len(weak.Violations) == 0 {
		t.Fatalf("400 body should list violations: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/auth/change-password", access, map[string]string{
		"current_password": "Abcdef12", "new_password": "Newpass12",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change password = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPasswordResetFlowOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	env.signupAndLogin(t, "jane@example.com")

	unknown := env.do(t, http.MethodPost, "/api/auth/request-password-reset", "", map[string]string{
		"email": "ghost@example.com",
	})
	known := env.do(t, http.MethodPost, "/api/auth/request-password-reset", "", map[string]string{
		"email": "jane@example.com",
	})
	if unknown.Code != http.StatusOK || known.Code != http.StatusOK {
		t.Fatalf("reset requests: %d vs %d, both must be 200", unknown.Code, known.Code)
	}
	if unknown.Body.String() != known.Body.String() {
		t.Fatal("reset request bodies must not reveal account existence")
	}

	account, err := env.store.Accounts().FindByEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatal(err)
	}
	token, ok := env.store.OneTimeTokenFor(account.ID, auth.PurposePasswordReset)
	if !ok {
		t.Fatal("reset token not stored")
	}

	rec := env.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"token": token, "new_password": "Newpass12",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset-password = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "jane@example.com", "password": "Newpass12",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login with reset password = %d", rec.Code)
	}
}

func TestAdminCreateAccountEscalationBlocked(t *testing.T) {
	env := newAPIEnv(t)
	access, _ := env.signupAndLogin(t, "member@example.com")

	// Members cannot reach the endpoint at all.
	rec := env.do(t, http.MethodPost, "/api/admin/accounts", access, map[string]string{
		"email": "x@example.com", "password": "Abcdef12", "full_name": "X", "role": "staff",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member on admin endpoint = %d, want 403", rec.Code)
	}

	manager := env.loginAs(t, "manager@example.com", auth.RoleManager)

	// Managers may create staff.
	rec = env.do(t, http.MethodPost, "/api/admin/accounts", manager, map[string]string{
		"email": "staff@example.com", "password": "Abcdef12", "full_name": "Staff", "role": "staff",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("manager creating staff = %d: %s", rec.Code, rec.Body.String())
	}

	// Managers may not create admins, and the refused request leaves no account.
	rec = env.do(t, http.MethodPost, "/api/admin/accounts", manager, map[string]string{
		"email": "boss@example.com", "password": "Abcdef12", "full_name": "Boss", "role": "admin",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("manager creating admin = %d, want 403", rec.Code)
	}
	if _, err := env.store.Accounts().FindByEmail(context.Background(), "boss@example.com"); err == nil {
		t.Fatal("escalation attempt created an account")
	}
}

// loginAs provisions a verified account with the given role directly in the
// store and logs it in over HTTP.
func (env *apiEnv) loginAs(t *testing.T, email string, role auth.Role) string {
	t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword("Abcdef12")
	if err != nil {
		t.Fatal(err)
	}
	account := &auth.Account{ID: "acc-" + email, Email: email, PasswordHash: hash, FullName: "Seeded"}
	if err := env.store.Accounts().Create(ctx, account); err != nil {
		t.Fatal(err)
	}
	if err := env.store.Accounts().MarkVerified(ctx, account.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.store.Roles().CreateAssignment(ctx, &auth.RoleAssignment{
		ID: "ra-" + email, AccountID: account.ID, Role: role,
	}); err != nil {
		t.Fatal(err)
	}
	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "Abcdef12",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s = %d: %s", role, rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)["access_token"].(string)
}

func TestBranchMembersScoping(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("Abcdef12")
	if err != nil {
		t.Fatal(err)
	}
	trainer := &auth.Account{ID: "acc-trainer", Email: "trainer@example.com", PasswordHash: hash, FullName: "Trainer"}
	if err := env.store.Accounts().Create(ctx, trainer); err != nil {
		t.Fatal(err)
	}
	if err := env.store.Accounts().MarkVerified(ctx, trainer.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.store.Roles().CreateAssignment(ctx, &auth.RoleAssignment{
		ID: "ra-trainer", AccountID: trainer.ID, Role: auth.RoleTrainer, BranchID: "br-1",
	}); err != nil {
		t.Fatal(err)
	}
	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "trainer@example.com", "password": "Abcdef12",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("trainer login = %d", rec.Code)
	}
	trainerToken := decodeBody(t, rec)["access_token"].(string)

	if rec := env.do(t, http.MethodGet, "/api/branches/br-1/members", trainerToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("own branch = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/api/branches/br-2/members", trainerToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign branch = %d, want 403", rec.Code)
	}

	adminToken := env.loginAs(t, "admin@example.com", auth.RoleAdmin)
	if rec := env.do(t, http.MethodGet, "/api/branches/br-2/members", adminToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin on any branch = %d", rec.Code)
	}
}

func TestGetAccountOwnershipScoped(t *testing.T) {
	env := newAPIEnv(t)
	access, _ := env.signupAndLogin(t, "jane@example.com")

	account, err := env.store.Accounts().FindByEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/accounts/"+account.ID, access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("own account = %d: %s", rec.Code, rec.Body.String())
	}

	otherToken := env.loginAs(t, "other@example.com", auth.RoleMember)
	if rec := env.do(t, http.MethodGet, "/api/accounts/"+account.ID, otherToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign account for member = %d, want 403", rec.Code)
	}

	adminToken := env.loginAs(t, "admin@example.com", auth.RoleAdmin)
	rec = env.do(t, http.MethodGet, "/api/accounts/"+account.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin reading any account = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["email"] != "jane@example.com" {
		t.Fatalf("unexpected profile: %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t)
	for _, path := range []string{"/api/auth/me", "/api/auth/sessions"} {
		if rec := env.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d, want 401", path, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodPost, "/api/auth/change-password", "", map[string]string{}); rec.Code != http.StatusUnauthorized {
		t.Errorf("change-password without token = %d, want 401", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	if rec := env.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("/healthz = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("/readyz = %d", rec.Code)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	env := newAPIEnv(t)
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body = %d, want 400", rec.Code)
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	env := newAPIEnv(t)
	body := map[string]string{"email": "dup@example.com", "password": "Abcdef12", "full_name": "Dup"}
	if rec := env.do(t, http.MethodPost, "/api/auth/register", "", body); rec.Code != http.StatusCreated {
		t.Fatalf("first register = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/auth/register", "", body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", rec.Code)
	}
}
