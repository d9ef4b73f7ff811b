package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of resolved role variants. Legacy data that stored a
// generic "team" role with a separate sub-role is normalized through ParseRole
// exactly once; nothing downstream re-derives role strings.
type Role string

const (
	RoleMember     Role = "member"
	RoleTrainer    Role = "trainer"
	RoleStaff      Role = "staff"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole maps a stored role name, plus an optional legacy sub-role, to the
// closed enumeration. A bare "team" role takes its variant from the sub-role.
func ParseRole(name, teamRole string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "team" {
		name = strings.TrimSpace(strings.ToLower(teamRole))
	}
	switch Role(name) {
	case RoleMember, RoleTrainer, RoleStaff, RoleManager, RoleAdmin, RoleSuperAdmin:
		return Role(name), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, name)
}

func (r Role) String() string { return string(r) }

// IsAdmin reports whether the role bypasses ownership and branch scoping.
func (r Role) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperAdmin }

// Account is a unique identity. Accounts are created inactive and unverified;
// email verification activates them. They are never hard-deleted here.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	IsActive      bool      `json:"is_active"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RoleAssignment links an account to a role, optionally scoped to a branch
// and/or gym. The earliest assignment is the account's primary role.
type RoleAssignment struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Role      Role      `json:"role"`
	BranchID  string    `json:"branch_id,omitempty"`
	GymID     string    `json:"gym_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission is a named capability in resource.action shape.
type Permission struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Branch is the tenant-scoping entity limiting a non-admin user's data.
type Branch struct {
	ID      string `json:"id"`
	GymID   string `json:"gym_id"`
	Name    string `json:"name"`
	GymName string `json:"gym_name"`
}

// RefreshTokenRecord is a persisted refresh token. ParentToken links each
// rotation to the token it replaced, forming a traceable family lineage.
type RefreshTokenRecord struct {
	Token       string
	AccountID   string
	ExpiresAt   time.Time
	IsRevoked   bool
	RevokedAt   *time.Time
	ParentToken string
	IP          string
	UserAgent   string
	CreatedAt   time.Time
}

// Session is the client-visible projection of an active refresh token. The
// token value itself is deliberately absent.
type Session struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// TokenPurpose distinguishes single-use tokens keyed by account.
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// OneTimeToken is a single-use verification or reset token. Repeated requests
// upsert on (account, purpose); successful use deletes the row.
type OneTimeToken struct {
	AccountID string
	Purpose   TokenPurpose
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenPair holds a freshly issued access/refresh credential pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// UserProfile is the public user projection returned by login and /me.
type UserProfile struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	FullName      string   `json:"full_name"`
	Phone         string   `json:"phone,omitempty"`
	AvatarURL     string   `json:"avatar_url,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	PrimaryRole   string   `json:"primary_role"`
	Roles         []string `json:"roles"`
	Permissions   []string `json:"permissions"`
	BranchID      string   `json:"branch_id,omitempty"`
	BranchName    string   `json:"branch_name,omitempty"`
	GymID         string   `json:"gym_id,omitempty"`
	GymName       string   `json:"gym_name,omitempty"`
}
