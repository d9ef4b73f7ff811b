package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gymgate.io/internal/auth"
	"gymgate.io/internal/obs"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id"`
	GymID    string `json:"gym_id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresAt    string            `json:"expires_at"`
	User         *auth.UserProfile `json:"user"`
}

// handleRegister is public self-registration. The granted role is forced to
// member regardless of what the body asks for; staff creation goes through the
// admin endpoint.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	account, err := a.service.Register(r.Context(), auth.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     auth.RoleMember,
		BranchID: req.BranchID,
		GymID:    req.GymID,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "registration successful, check your email to verify the account",
		"user_id": account.ID,
		"email":   account.Email,
	})
}

// handleAdminCreateAccount creates staff-side accounts. The caller's primary
// role bounds which roles may be granted.
func (a *API) handleAdminCreateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role, "")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	account, err := a.service.Register(r.Context(), auth.RegisterParams{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		Phone:     req.Phone,
		Role:      role,
		BranchID:  req.BranchID,
		GymID:     req.GymID,
		ActorRole: id.PrimaryRole(),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "account created",
		"user_id": account.ID,
		"email":   account.Email,
		"role":    role.String(),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	pair, profile, err := a.service.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		obs.LoginAttempts.WithLabelValues(loginResult(err)).Inc()
		a.writeError(w, r, err)
		return
	}
	obs.LoginAttempts.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		User:         profile,
	})
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountInactive):
		return "inactive"
	case errors.Is(err, auth.ErrEmailNotVerified):
		return "unverified"
	case errors.Is(err, auth.ErrNoRoleAssigned):
		return "no_role"
	default:
		return "error"
	}
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	pair, principal, err := a.rotation.Rotate(r.Context(), req.RefreshToken, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrTokenRevoked) {
			obs.ReuseDetections.Inc()
		}
		obs.TokenRotations.WithLabelValues("failure").Inc()
		a.writeError(w, r, err)
		return
	}
	obs.TokenRotations.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExpiresAt.UTC(),
		"user_id":       principal.Account.ID,
	})
}

// handleLogout revokes the presented refresh token. It succeeds even when the
// token is unknown, since the client's goal is a dead session either way.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) != "" {
		if err := a.rotation.Revoke(r.Context(), req.RefreshToken); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	account, err := a.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "email verified",
		"email":   account.Email,
	})
}

// handleRequestPasswordReset always answers 200 with the same body, so the
// endpoint cannot confirm whether an address is registered.
func (a *API) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if that email is registered, a reset link has been sent",
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.ChangePassword(r.Context(), id.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	profile, err := a.service.GetCurrentUser(r.Context(), id.AccountID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	sessions, err := a.rotation.ListActiveSessions(r.Context(), id.AccountID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []auth.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleGetAccount serves an account profile. Reachable only through
// RequireOwnershipOrAdmin, so non-admins can fetch just their own.
func (a *API) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	profile, err := a.service.GetCurrentUser(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleBranchMembers lists accounts holding a role at a branch. Reachable
// only through RequireBranchAccess.
func (a *API) handleBranchMembers(w http.ResponseWriter, r *http.Request) {
	branchID := chi.URLParam(r, "branchID")
	role := auth.RoleMember
	if q := strings.TrimSpace(r.URL.Query().Get("role")); q != "" {
		parsed, err := auth.ParseRole(q, "")
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		role = parsed
	}
	accounts, err := a.store.Accounts().ListByBranch(r.Context(), branchID, role)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []*auth.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"branch_id": branchID,
		"role":      role.String(),
		"members":   accounts,
	})
}
