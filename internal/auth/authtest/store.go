// Package authtest provides an in-memory auth.Store for unit tests.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gymgate.io/internal/auth"
)

// Store holds everything in process memory. Safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	accounts      map[string]*auth.Account
	assignments   []auth.RoleAssignment
	rolePerms     map[auth.Role][]auth.Permission
	branches      map[string]*auth.Branch
	refreshTokens map[string]*auth.RefreshTokenRecord
	oneTimeTokens map[string]*auth.OneTimeToken
}

func NewStore() *Store {
	return &Store{
		accounts:      make(map[string]*auth.Account),
		rolePerms:     make(map[auth.Role][]auth.Permission),
		branches:      make(map[string]*auth.Branch),
		refreshTokens: make(map[string]*auth.RefreshTokenRecord),
		oneTimeTokens: make(map[string]*auth.OneTimeToken),
	}
}

func (s *Store) Accounts() auth.AccountStore           { return (*accountStore)(s) }
func (s *Store) Roles() auth.RoleStore                 { return (*roleStore)(s) }
func (s *Store) Branches() auth.BranchStore            { return (*branchStore)(s) }
func (s *Store) RefreshTokens() auth.RefreshTokenStore { return (*refreshTokenStore)(s) }
func (s *Store) OneTimeTokens() auth.OneTimeTokenStore { return (*oneTimeTokenStore)(s) }

// GrantPermissions attaches permissions to a role for resolver tests.
func (s *Store) GrantPermissions(role auth.Role, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.rolePerms[role] = append(s.rolePerms[role], auth.Permission{ID: k, Key: k})
	}
}

// AddBranch registers a branch for profile projection tests.
func (s *Store) AddBranch(b auth.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[b.ID] = &b
}

// OneTimeTokenFor returns the stored token value for an account and purpose,
// letting tests complete verification flows without intercepting mail.
func (s *Store) OneTimeTokenFor(accountID string, purpose auth.TokenPurpose) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.oneTimeTokens[oneTimeKey(accountID, purpose)]
	if !ok {
		return "", false
	}
	return rec.Token, true
}

// RefreshRecord exposes a stored refresh token row for lineage assertions.
func (s *Store) RefreshRecord(token string) (auth.RefreshTokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refreshTokens[token]
	if !ok {
		return auth.RefreshTokenRecord{}, false
	}
	return *rec, true
}

type accountStore Store

func (s *accountStore) Create(_ context.Context, a *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == a.Email {
			return auth.ErrDuplicateEmail
		}
	}
	cp := *a
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.accounts[a.ID] = &cp
	return nil
}

func (s *accountStore) Find(_ context.Context, id string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *accountStore) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *accountStore) MarkVerified(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return auth.ErrNotFound
	}
	a.IsActive = true
	a.EmailVerified = true
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *accountStore) UpdatePasswordHash(_ context.Context, accountID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *accountStore) ListByBranch(_ context.Context, branchID string, role auth.Role) ([]*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.Account
	for _, assignment := range s.assignments {
		if assignment.BranchID != branchID || assignment.Role != role {
			continue
		}
		if a, ok := s.accounts[assignment.AccountID]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type roleStore Store

func (s *roleStore) CreateAssignment(_ context.Context, a *auth.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC().Add(time.Duration(len(s.assignments)) * time.Millisecond)
	}
	s.assignments = append(s.assignments, cp)
	return nil
}

func (s *roleStore) Assignments(_ context.Context, accountID string) ([]auth.RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.RoleAssignment
	for _, a := range s.assignments {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *roleStore) PermissionsForRole(_ context.Context, role auth.Role) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.Permission(nil), s.rolePerms[role]...), nil
}

type branchStore Store

func (s *branchStore) Find(_ context.Context, id string) (*auth.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

type refreshTokenStore Store

func (s *refreshTokenStore) Create(_ context.Context, rec *auth.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.refreshTokens[rec.Token] = &cp
	return nil
}

func (s *refreshTokenStore) Claim(_ context.Context, token string) (*auth.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refreshTokens[token]
	if !ok || rec.IsRevoked {
		return nil, auth.ErrNotFound
	}
	now := time.Now().UTC()
	rec.IsRevoked = true
	rec.RevokedAt = &now
	cp := *rec
	return &cp, nil
}

func (s *refreshTokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.refreshTokens[token]; ok && !rec.IsRevoked {
		now := time.Now().UTC()
		rec.IsRevoked = true
		rec.RevokedAt = &now
	}
	return nil
}

func (s *refreshTokenStore) RevokeAllForAccount(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, rec := range s.refreshTokens {
		if rec.AccountID == accountID && !rec.IsRevoked {
			rec.IsRevoked = true
			rec.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (s *refreshTokenStore) DeleteExpired(_ context.Context, now time.Time, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, rec := range s.refreshTokens {
		expired := rec.ExpiresAt.Before(now)
		stale := rec.IsRevoked && rec.RevokedAt != nil && rec.RevokedAt.Before(now.Add(-retention))
		if expired || stale {
			delete(s.refreshTokens, token)
			n++
		}
	}
	return n, nil
}

func (s *refreshTokenStore) ListActive(_ context.Context, accountID string, now time.Time) ([]auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Session
	for _, rec := range s.refreshTokens {
		if rec.AccountID == accountID && !rec.IsRevoked && rec.ExpiresAt.After(now) {
			out = append(out, auth.Session{
				CreatedAt: rec.CreatedAt,
				ExpiresAt: rec.ExpiresAt,
				IP:        rec.IP,
				UserAgent: rec.UserAgent,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type oneTimeTokenStore Store

func (s *oneTimeTokenStore) Upsert(_ context.Context, tok *auth.OneTimeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.oneTimeTokens[oneTimeKey(tok.AccountID, tok.Purpose)] = &cp
	return nil
}

func (s *oneTimeTokenStore) FindByToken(_ context.Context, purpose auth.TokenPurpose, token string) (*auth.OneTimeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.oneTimeTokens {
		if rec.Purpose == purpose && rec.Token == token {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *oneTimeTokenStore) Delete(_ context.Context, accountID string, purpose auth.TokenPurpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.oneTimeTokens, oneTimeKey(accountID, purpose))
	return nil
}

func oneTimeKey(accountID string, purpose auth.TokenPurpose) string {
	return accountID + "|" + strings.ToLower(string(purpose))
}
