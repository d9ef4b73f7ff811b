package auth

import "strings"

// Identity is the request-scoped view of an authenticated caller, built from
// verified access-token claims without touching the database.
type Identity struct {
	AccountID     string
	Email         string
	FullName      string
	Roles         []Role
	Permissions   map[string]struct{}
	Branches      []string
	EmailVerified bool
}

// IdentityFromClaims converts verified claims into an Identity. Unknown role
// names are dropped rather than granted.
func IdentityFromClaims(c *Claims) Identity {
	id := Identity{
		AccountID:     c.Subject,
		Email:         c.Email,
		FullName:      c.FullName,
		Branches:      c.Branches,
		EmailVerified: c.EmailVerified,
		Permissions:   make(map[string]struct{}, len(c.Permissions)),
	}
	for _, name := range c.Roles {
		role, err := ParseRole(name, "")
		if err != nil {
			continue
		}
		id.Roles = append(id.Roles, role)
	}
	for _, key := range c.Permissions {
		id.Permissions[key] = struct{}{}
	}
	return id
}

// HasRole reports whether the identity carries one of the given roles.
func (id Identity) HasRole(roles ...Role) bool {
	for _, have := range id.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the identity bypasses ownership and branch checks.
func (id Identity) IsAdmin() bool { return id.HasRole(RoleAdmin, RoleSuperAdmin) }

// PrimaryRole is the first role claim; claims preserve assignment order.
func (id Identity) PrimaryRole() Role {
	if len(id.Roles) == 0 {
		return ""
	}
	return id.Roles[0]
}

// HasPermission mirrors Principal.HasPermission over claim data.
func (id Identity) HasPermission(key string) bool {
	if id.HasRole(RoleSuperAdmin) {
		return true
	}
	_, ok := id.Permissions[key]
	return ok
}

// CanAccessBranch is true for admins, otherwise only for claimed branch
// scopes.
func (id Identity) CanAccessBranch(branchID string) bool {
	if id.IsAdmin() {
		return true
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return false
	}
	for _, b := range id.Branches {
		if b == branchID {
			return true
		}
	}
	return false
}
