package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// revokedRetention is how long revoked rows are kept for forensic tracing of
// a token family before cleanup removes them.
const revokedRetention = 30 * 24 * time.Hour

// AuditSink receives security-relevant events. Reuse detection triggers a
// mass revocation whose only other signal would be the error response, so it
// must be recorded out-of-band.
type AuditSink interface {
	Event(ctx context.Context, event string, fields map[string]any)
}

// RotationService owns the persisted refresh-token lifecycle: issuance
// bookkeeping, rotation with reuse detection, revocation and garbage
// collection.
type RotationService struct {
	store    Store
	issuer   *TokenIssuer
	resolver *Resolver
	audit    AuditSink
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewRotationService(store Store, issuer *TokenIssuer, resolver *Resolver, audit AuditSink, log *zap.SugaredLogger) *RotationService {
	return &RotationService{
		store:    store,
		issuer:   issuer,
		resolver: resolver,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

// StoreToken persists a freshly issued refresh token as the root of a new
// rotation family.
func (s *RotationService) StoreToken(ctx context.Context, token, accountID string, expiresAt time.Time, ip, userAgent string) error {
	return s.store.RefreshTokens().Create(ctx, &RefreshTokenRecord{
		Token:     token,
		AccountID: accountID,
		ExpiresAt: expiresAt,
		IP:        ip,
		UserAgent: userAgent,
	})
}

// Rotate exchanges a refresh token for a new access/refresh pair.
//
// The stored row is claimed with a conditional update, so of two concurrent
// rotations of the same token exactly one succeeds; the loser observes reuse
// semantics. Presenting a signature-valid token that has no live row is
// treated as theft: every active token for that account is revoked before the
// error is returned.
func (s *RotationService) Rotate(ctx context.Context, oldToken, ip, userAgent string) (TokenPair, Principal, error) {
	claims, err := s.issuer.VerifyRefreshToken(oldToken)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	tokens := s.store.RefreshTokens()
	rec, err := tokens.Claim(ctx, oldToken)
	if errors.Is(err, ErrNotFound) {
		revoked, revokeErr := tokens.RevokeAllForAccount(ctx, claims.Subject)
		if revokeErr != nil {
			s.log.Errorw("revoke-all after reuse detection failed", "account_id", claims.Subject, "error", revokeErr)
		}
		s.audit.Event(ctx, "auth.refresh.reuse_detected", map[string]any{
			"account_id":     claims.Subject,
			"ip":             ip,
			"tokens_revoked": revoked,
		})
		return TokenPair{}, Principal{}, ErrTokenRevoked
	}
	if err != nil {
		return TokenPair{}, Principal{}, fmt.Errorf("claim refresh token: %w", err)
	}
	if s.now().After(rec.ExpiresAt) {
		// The claim above already moved the row to its terminal state.
		return TokenPair{}, Principal{}, ErrTokenExpired
	}

	// Role assignment may have changed since the old token was minted; never
	// trust its embedded claims.
	principal, err := s.resolver.Principal(ctx, rec.AccountID)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	if !principal.Account.IsActive {
		return TokenPair{}, Principal{}, ErrAccountInactive
	}
	if len(principal.Assignments) == 0 {
		return TokenPair{}, Principal{}, ErrNoRoleAssigned
	}

	pair, err := s.issuer.IssuePair(principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	if err := tokens.Create(ctx, &RefreshTokenRecord{
		Token:       pair.RefreshToken,
		AccountID:   rec.AccountID,
		ExpiresAt:   pair.RefreshExpiresAt,
		ParentToken: oldToken,
		IP:          ip,
		UserAgent:   userAgent,
	}); err != nil {
		return TokenPair{}, Principal{}, fmt.Errorf("persist rotated token: %w", err)
	}
	return pair, principal, nil
}

// Revoke marks a single token revoked. Revoking an unknown or already-revoked
// token succeeds silently.
func (s *RotationService) Revoke(ctx context.Context, token string) error {
	return s.store.RefreshTokens().Revoke(ctx, token)
}

// RevokeAllForAccount terminates every active session for the account.
func (s *RotationService) RevokeAllForAccount(ctx context.Context, accountID string) (int64, error) {
	return s.store.RefreshTokens().RevokeAllForAccount(ctx, accountID)
}

// CleanupExpired deletes rows past expiry and revoked rows past the retention
// window. Driven by an external scheduler (cmd/cleanup); the service spawns
// no background work of its own.
func (s *RotationService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.RefreshTokens().DeleteExpired(ctx, s.now(), revokedRetention)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Infow("expired refresh tokens removed", "count", n)
	}
	return n, nil
}

// ListActiveSessions returns metadata for the account's live refresh tokens.
func (s *RotationService) ListActiveSessions(ctx context.Context, accountID string) ([]Session, error) {
	return s.store.RefreshTokens().ListActive(ctx, accountID, s.now())
}
