package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Accounts() AccountStore
	Roles() RoleStore
	Branches() BranchStore
	RefreshTokens() RefreshTokenStore
	OneTimeTokens() OneTimeTokenStore
}

// AccountStore manages account rows.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// MarkVerified flips both email_verified and is_active in one statement.
	MarkVerified(ctx context.Context, accountID string) error
	UpdatePasswordHash(ctx context.Context, accountID, hash string) error
	ListByBranch(ctx context.Context, branchID string, role Role) ([]*Account, error)
}

// RoleStore manages role assignments and the role/permission catalog.
type RoleStore interface {
	CreateAssignment(ctx context.Context, a *RoleAssignment) error
	// Assignments returns rows ordered by created_at ascending; the first row
	// is the primary role.
	Assignments(ctx context.Context, accountID string) ([]RoleAssignment, error)
	PermissionsForRole(ctx context.Context, role Role) ([]Permission, error)
}

// BranchStore resolves branch/gym display data for user projections.
type BranchStore interface {
	Find(ctx context.Context, id string) (*Branch, error)
}

// RefreshTokenStore manages the refresh token lifecycle. Each row moves from
// active to exactly one terminal state: revoked, or expired by time.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec *RefreshTokenRecord) error
	// Claim atomically revokes the row matching token if and only if it is not
	// already revoked, and returns it. ErrNotFound means there was no live
	// row: either the token was never stored or it has already been used.
	Claim(ctx context.Context, token string) (*RefreshTokenRecord, error)
	// Revoke is idempotent; revoking an already-revoked token is a no-op.
	Revoke(ctx context.Context, token string) error
	RevokeAllForAccount(ctx context.Context, accountID string) (int64, error)
	// DeleteExpired removes rows past expiry, and revoked rows older than the
	// retention window. Returns the number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
	ListActive(ctx context.Context, accountID string, now time.Time) ([]Session, error)
}

// OneTimeTokenStore manages single-use verification and reset tokens.
type OneTimeTokenStore interface {
	// Upsert replaces any existing token for (account, purpose).
	Upsert(ctx context.Context, tok *OneTimeToken) error
	FindByToken(ctx context.Context, purpose TokenPurpose, token string) (*OneTimeToken, error)
	Delete(ctx context.Context, accountID string, purpose TokenPurpose) error
}
