package auth

import "testing"

func principalWith(assignments ...RoleAssignment) Principal {
	return Principal{
		Account:     &Account{ID: "acc-1"},
		Assignments: assignments,
		Permissions: map[string]struct{}{},
	}
}

func TestPrimaryRoleIsEarliestAssignment(t *testing.T) {
	p := principalWith(
		RoleAssignment{Role: RoleTrainer, BranchID: "br-1"},
		RoleAssignment{Role: RoleManager, BranchID: "br-2"},
	)
	if got := p.PrimaryRole(); got != RoleTrainer {
		t.Fatalf("PrimaryRole = %s, want trainer", got)
	}
	if p.PrimaryRole() == "" {
		t.Fatal("unexpected empty primary role")
	}
	if got := principalWith().PrimaryRole(); got != "" {
		t.Fatalf("PrimaryRole with no assignments = %q, want empty", got)
	}
}

func TestSuperAdminWildcardPermission(t *testing.T) {
	p := principalWith(RoleAssignment{Role: RoleSuperAdmin})
	if !p.HasPermission("anything.at.all") {
		t.Fatal("super_admin must satisfy every permission")
	}

	admin := principalWith(RoleAssignment{Role: RoleAdmin})
	if admin.HasPermission("members.read") {
		t.Fatal("admin with empty permission set must not be granted members.read")
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	p := principalWith(RoleAssignment{Role: RoleStaff})
	p.Permissions = map[string]struct{}{"members.read": {}, "schedule.read": {}}

	if !p.HasAnyPermission("billing.write", "members.read") {
		t.Fatal("HasAnyPermission missed a held permission")
	}
	if p.HasAllPermissions("members.read", "billing.write") {
		t.Fatal("HasAllPermissions passed with a missing permission")
	}
	if !p.HasAllPermissions("members.read", "schedule.read") {
		t.Fatal("HasAllPermissions failed with all permissions held")
	}
}

func TestCanAccessBranch(t *testing.T) {
	trainer := principalWith(RoleAssignment{Role: RoleTrainer, BranchID: "br-1"})
	if !trainer.CanAccessBranch("br-1") {
		t.Fatal("assigned branch refused")
	}
	if trainer.CanAccessBranch("br-2") {
		t.Fatal("unassigned branch allowed")
	}
	if trainer.CanAccessBranch("") {
		t.Fatal("empty branch id allowed for non-admin")
	}

	admin := principalWith(RoleAssignment{Role: RoleAdmin})
	if !admin.CanAccessBranch("br-2") {
		t.Fatal("admin refused branch access")
	}
}

func TestRoleNamesDeduplicated(t *testing.T) {
	p := principalWith(
		RoleAssignment{Role: RoleTrainer, BranchID: "br-1"},
		RoleAssignment{Role: RoleTrainer, BranchID: "br-2"},
		RoleAssignment{Role: RoleStaff},
	)
	names := p.RoleNames()
	if len(names) != 2 || names[0] != "trainer" || names[1] != "staff" {
		t.Fatalf("RoleNames = %v", names)
	}
	branches := p.BranchIDs()
	if len(branches) != 2 {
		t.Fatalf("BranchIDs = %v", branches)
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		name, teamRole string
		want           Role
		wantErr        bool
	}{
		{"member", "", RoleMember, false},
		{"Manager", "", RoleManager, false},
		{" super_admin ", "", RoleSuperAdmin, false},
		{"team", "trainer", RoleTrainer, false},
		{"team", "manager", RoleManager, false},
		{"team", "", "", true},
		{"owner", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.name, tc.teamRole)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseRole(%q, %q) accepted", tc.name, tc.teamRole)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseRole(%q, %q) = %s, %v; want %s", tc.name, tc.teamRole, got, err, tc.want)
		}
	}
}

func TestCanGrantRole(t *testing.T) {
	cases := []struct {
		actor, target Role
		want          bool
	}{
		{RoleSuperAdmin, RoleSuperAdmin, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleSuperAdmin, false},
		{RoleManager, RoleStaff, true},
		{RoleManager, RoleAdmin, false},
		{RoleManager, RoleSuperAdmin, false},
		{RoleStaff, RoleMember, true},
		{RoleStaff, RoleManager, false},
		{"", RoleMember, true},
		{"", RoleTrainer, false},
		{RoleMember, RoleMember, false},
	}
	for _, tc := range cases {
		if got := CanGrantRole(tc.actor, tc.target); got != tc.want {
			t.Errorf("CanGrantRole(%q, %q) = %v, want %v", tc.actor, tc.target, got, tc.want)
		}
	}
}
