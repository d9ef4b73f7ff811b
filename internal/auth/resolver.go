package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Principal is an account with its resolved role assignments and flattened
// permission set. Assignments are ordered by creation time ascending, so the
// first one is the primary role.
type Principal struct {
	Account     *Account
	Assignments []RoleAssignment
	Permissions map[string]struct{}
}

// PrimaryRole is the earliest-created assignment's role, used as the default
// display role. Empty when the account holds no assignments.
func (p Principal) PrimaryRole() Role {
	if len(p.Assignments) == 0 {
		return ""
	}
	return p.Assignments[0].Role
}

// RoleNames lists distinct role names in assignment order.
func (p Principal) RoleNames() []string {
	seen := make(map[Role]struct{}, len(p.Assignments))
	var names []string
	for _, a := range p.Assignments {
		if _, ok := seen[a.Role]; ok {
			continue
		}
		seen[a.Role] = struct{}{}
		names = append(names, a.Role.String())
	}
	return names
}

// BranchIDs lists distinct branch scopes across assignments.
func (p Principal) BranchIDs() []string {
	seen := make(map[string]struct{}, len(p.Assignments))
	var ids []string
	for _, a := range p.Assignments {
		if a.BranchID == "" {
			continue
		}
		if _, ok := seen[a.BranchID]; ok {
			continue
		}
		seen[a.BranchID] = struct{}{}
		ids = append(ids, a.BranchID)
	}
	return ids
}

// PermissionKeys returns the flattened permission set, sorted for stable
// claim payloads.
func (p Principal) PermissionKeys() []string {
	keys := make([]string, 0, len(p.Permissions))
	for k := range p.Permissions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasRole reports whether any assignment carries one of the given roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, a := range p.Assignments {
		for _, r := range roles {
			if a.Role == r {
				return true
			}
		}
	}
	return false
}

// HasPermission tests exact membership in the flattened set. A super admin
// implicitly satisfies every permission without a lookup. An empty set grants
// nothing; there is no fail-open for admins.
func (p Principal) HasPermission(key string) bool {
	if p.HasRole(RoleSuperAdmin) {
		return true
	}
	_, ok := p.Permissions[key]
	return ok
}

// HasAnyPermission reports whether at least one permission is held.
func (p Principal) HasAnyPermission(keys ...string) bool {
	for _, k := range keys {
		if p.HasPermission(k) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every permission is held.
func (p Principal) HasAllPermissions(keys ...string) bool {
	for _, k := range keys {
		if !p.HasPermission(k) {
			return false
		}
	}
	return true
}

// CanAccessBranch is true for admins; otherwise only when an assignment is
// scoped to that branch.
func (p Principal) CanAccessBranch(branchID string) bool {
	if p.HasRole(RoleAdmin, RoleSuperAdmin) {
		return true
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return false
	}
	for _, a := range p.Assignments {
		if a.BranchID == branchID {
			return true
		}
	}
	return false
}

// Resolver loads an account's assignments and unions the permissions granted
// to each resolved role.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Principal resolves the current roles and permissions for an account. Role
// assignment may have changed since any token was minted, so callers that
// must not trust embedded claims (token rotation in particular) re-resolve
// through here.
func (r *Resolver) Principal(ctx context.Context, accountID string) (Principal, error) {
	account, err := r.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return Principal{}, err
	}
	assignments, err := r.store.Roles().Assignments(ctx, accountID)
	if err != nil {
		return Principal{}, fmt.Errorf("load assignments: %w", err)
	}
	perms := make(map[string]struct{})
	resolved := make(map[Role]struct{}, len(assignments))
	for _, a := range assignments {
		if _, ok := resolved[a.Role]; ok {
			continue
		}
		resolved[a.Role] = struct{}{}
		list, err := r.store.Roles().PermissionsForRole(ctx, a.Role)
		if err != nil {
			return Principal{}, fmt.Errorf("load permissions for %s: %w", a.Role, err)
		}
		for _, p := range list {
			perms[p.Key] = struct{}{}
		}
	}
	return Principal{Account: account, Assignments: assignments, Permissions: perms}, nil
}
