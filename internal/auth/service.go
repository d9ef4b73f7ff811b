package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gymgate.io/internal/ids"
)

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = time.Hour
)

// Mailer delivers account lifecycle mail. Delivery failures never block the
// operation that requested them; callers log and move on.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
	SendWelcome(ctx context.Context, email, fullName string) error
}

// Service orchestrates registration, login, email verification and password
// management over the credential hasher, token issuer and persisted accounts.
type Service struct {
	store    Store
	issuer   *TokenIssuer
	resolver *Resolver
	rotation *RotationService
	mailer   Mailer
	audit    AuditSink
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewService(store Store, issuer *TokenIssuer, resolver *Resolver, rotation *RotationService, mailer Mailer, audit AuditSink, log *zap.SugaredLogger) *Service {
	return &Service{
		store:    store,
		issuer:   issuer,
		resolver: resolver,
		rotation: rotation,
		mailer:   mailer,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

// CanGrantRole is the privilege-escalation guard: which roles a caller may
// hand out when creating an account. An empty actor role means
// unauthenticated self-registration.
func CanGrantRole(actor, target Role) bool {
	switch actor {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return target != RoleSuperAdmin
	case RoleManager:
		return target != RoleAdmin && target != RoleSuperAdmin
	case RoleStaff:
		return target == RoleMember || target == RoleTrainer
	case "":
		return target == RoleMember
	default:
		return false
	}
}

// RegisterParams carries a registration request. ActorRole is the resolved
// role of the authenticated caller, or empty for self-registration.
type RegisterParams struct {
	Email     string
	Password  string
	FullName  string
	Phone     string
	Role      Role
	BranchID  string
	GymID     string
	ActorRole Role
}

// Register creates an inactive, unverified account with one role assignment
// and issues a 24-hour email verification token. A mail delivery failure is
// logged but does not fail the registration.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*Account, error) {
	email := normalizeEmail(p.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	fullName := strings.TrimSpace(p.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	role := p.Role
	if role == "" {
		role = RoleMember
	}
	if _, err := ParseRole(role.String(), ""); err != nil {
		return nil, err
	}
	if !CanGrantRole(p.ActorRole, role) {
		return nil, fmt.Errorf("%w: %s may not grant %s", ErrForbiddenRole, actorName(p.ActorRole), role)
	}
	if violations := ValidatePasswordStrength(p.Password); len(violations) > 0 {
		return nil, &WeakPasswordError{Violations: violations}
	}

	if _, err := s.store.Accounts().FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, err
	}
	account := &Account{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Phone:        strings.TrimSpace(p.Phone),
	}
	if err := s.store.Accounts().Create(ctx, account); err != nil {
		return nil, err
	}
	if err := s.store.Roles().CreateAssignment(ctx, &RoleAssignment{
		ID:        ids.New(),
		AccountID: account.ID,
		Role:      role,
		BranchID:  strings.TrimSpace(p.BranchID),
		GymID:     strings.TrimSpace(p.GymID),
	}); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}

	if err := s.issueOneTimeToken(ctx, account, PurposeEmailVerification, verificationTokenTTL); err != nil {
		return nil, err
	}

	s.audit.Event(ctx, "auth.account.registered", map[string]any{
		"account_id": account.ID,
		"email":      account.Email,
		"role":       role.String(),
	})
	return account, nil
}

// Login authenticates credentials and issues a token pair. Unknown email and
// wrong password produce the identical error, so responses cannot be used to
// enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (TokenPair, *UserProfile, error) {
	email = normalizeEmail(email)
	account, err := s.store.Accounts().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, nil, err
	}
	if account.PasswordHash == "" || !VerifyPassword(password, account.PasswordHash) {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if !account.IsActive {
		return TokenPair{}, nil, ErrAccountInactive
	}
	if !account.EmailVerified {
		return TokenPair{}, nil, ErrEmailNotVerified
	}

	principal, err := s.resolver.Principal(ctx, account.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if len(principal.Assignments) == 0 {
		return TokenPair{}, nil, ErrNoRoleAssigned
	}

	pair, err := s.issuer.IssuePair(principal)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if err := s.rotation.StoreToken(ctx, pair.RefreshToken, account.ID, pair.RefreshExpiresAt, ip, userAgent); err != nil {
		return TokenPair{}, nil, fmt.Errorf("persist refresh token: %w", err)
	}

	profile, err := s.profile(ctx, principal)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.audit.Event(ctx, "auth.login", map[string]any{
		"account_id": account.ID,
		"ip":         ip,
	})
	return pair, profile, nil
}

// VerifyEmail consumes a verification token, activating the account. The
// welcome mail is best-effort.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	rec, err := s.findOneTimeToken(ctx, PurposeEmailVerification, token)
	if err != nil {
		return nil, err
	}
	if err := s.store.Accounts().MarkVerified(ctx, rec.AccountID); err != nil {
		return nil, err
	}
	if err := s.store.OneTimeTokens().Delete(ctx, rec.AccountID, PurposeEmailVerification); err != nil {
		s.log.Warnw("delete verification token failed", "account_id", rec.AccountID, "error", err)
	}
	account, err := s.store.Accounts().Find(ctx, rec.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.SendWelcome(ctx, account.Email, account.FullName); err != nil {
		s.log.Warnw("welcome mail failed", "email", account.Email, "error", err)
	}
	s.audit.Event(ctx, "auth.email.verified", map[string]any{"account_id": account.ID})
	return account, nil
}

// RequestPasswordReset issues a one-hour reset token when the account exists.
// It reports success either way, so the endpoint cannot be used to enumerate
// registered addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.store.Accounts().FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.issueOneTimeToken(ctx, account, PurposePasswordReset, resetTokenTTL)
}

// ResetPassword consumes a reset token and stores a new credential. Every
// live refresh token for the account is revoked, since a reset usually means
// the old credential is suspect.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if violations := ValidatePasswordStrength(newPassword); len(violations) > 0 {
		return &WeakPasswordError{Violations: violations}
	}
	rec, err := s.findOneTimeToken(ctx, PurposePasswordReset, token)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Accounts().UpdatePasswordHash(ctx, rec.AccountID, hash); err != nil {
		return err
	}
	if err := s.store.OneTimeTokens().Delete(ctx, rec.AccountID, PurposePasswordReset); err != nil {
		s.log.Warnw("delete reset token failed", "account_id", rec.AccountID, "error", err)
	}
	if _, err := s.rotation.RevokeAllForAccount(ctx, rec.AccountID); err != nil {
		s.log.Errorw("revoke sessions after reset failed", "account_id", rec.AccountID, "error", err)
	}
	s.audit.Event(ctx, "auth.password.reset", map[string]any{"account_id": rec.AccountID})
	return nil
}

// ChangePassword verifies the current credential before storing a new one.
func (s *Service) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return err
	}
	if !VerifyPassword(currentPassword, account.PasswordHash) {
		return ErrInvalidCredentials
	}
	if violations := ValidatePasswordStrength(newPassword); len(violations) > 0 {
		return &WeakPasswordError{Violations: violations}
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Accounts().UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return err
	}
	s.audit.Event(ctx, "auth.password.changed", map[string]any{"account_id": accountID})
	return nil
}

// GetCurrentUser projects the account and its primary assignment into the
// public user shape used by clients.
func (s *Service) GetCurrentUser(ctx context.Context, accountID string) (*UserProfile, error) {
	principal, err := s.resolver.Principal(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, principal)
}

func (s *Service) profile(ctx context.Context, p Principal) (*UserProfile, error) {
	profile := &UserProfile{
		ID:            p.Account.ID,
		Email:         p.Account.Email,
		FullName:      p.Account.FullName,
		Phone:         p.Account.Phone,
		AvatarURL:     p.Account.AvatarURL,
		EmailVerified: p.Account.EmailVerified,
		PrimaryRole:   p.PrimaryRole().String(),
		Roles:         p.RoleNames(),
		Permissions:   p.PermissionKeys(),
	}
	if len(p.Assignments) > 0 {
		primary := p.Assignments[0]
		profile.BranchID = primary.BranchID
		profile.GymID = primary.GymID
		if primary.BranchID != "" {
			branch, err := s.store.Branches().Find(ctx, primary.BranchID)
			if err == nil {
				profile.BranchName = branch.Name
				profile.GymName = branch.GymName
				if profile.GymID == "" {
					profile.GymID = branch.GymID
				}
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
	}
	return profile, nil
}

func (s *Service) issueOneTimeToken(ctx context.Context, account *Account, purpose TokenPurpose, ttl time.Duration) error {
	token, err := NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.store.OneTimeTokens().Upsert(ctx, &OneTimeToken{
		AccountID: account.ID,
		Purpose:   purpose,
		Token:     token,
		ExpiresAt: s.now().Add(ttl),
	}); err != nil {
		return fmt.Errorf("store %s token: %w", purpose, err)
	}

	var mailErr error
	switch purpose {
	case PurposeEmailVerification:
		mailErr = s.mailer.SendVerification(ctx, account.Email, token)
	case PurposePasswordReset:
		mailErr = s.mailer.SendPasswordReset(ctx, account.Email, token)
	}
	if mailErr != nil {
		s.log.Warnw("mail delivery failed", "purpose", purpose, "email", account.Email, "error", mailErr)
	}
	return nil
}

func (s *Service) findOneTimeToken(ctx context.Context, purpose TokenPurpose, token string) (*OneTimeToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	rec, err := s.store.OneTimeTokens().FindByToken(ctx, purpose, token)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if s.now().After(rec.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return rec, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func actorName(r Role) string {
	if r == "" {
		return "self-registration"
	}
	return r.String()
}
