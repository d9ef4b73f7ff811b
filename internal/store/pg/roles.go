package pg

import (
	"context"
	"database/sql"
	"errors"

	"gymgate.io/internal/auth"
	"gymgate.io/internal/ids"
)

type roleStore struct{ db *sql.DB }

func (s *roleStore) CreateAssignment(ctx context.Context, a *auth.RoleAssignment) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into role_assignments(id, account_id, role, branch_id, gym_id)
		 values($1,$2,$3,nullif($4,''),nullif($5,''))`,
		a.ID, a.AccountID, a.Role.String(), a.BranchID, a.GymID,
	)
	return err
}

func (s *roleStore) Assignments(ctx context.Context, accountID string) ([]auth.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, account_id, role, coalesce(branch_id,''), coalesce(gym_id,''), created_at
		 from role_assignments where account_id=$1 order by created_at asc`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []auth.RoleAssignment
	for rows.Next() {
		var (
			a    auth.RoleAssignment
			name string
		)
		if err := rows.Scan(&a.ID, &a.AccountID, &name, &a.BranchID, &a.GymID, &a.CreatedAt); err != nil {
			return nil, err
		}
		role, err := auth.ParseRole(name, "")
		if err != nil {
			return nil, err
		}
		a.Role = role
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (s *roleStore) PermissionsForRole(ctx context.Context, role auth.Role) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.key, p.description, p.created_at
		 from permissions p
		 join role_permissions rp on rp.permission_id = p.id
		 where rp.role=$1
		 order by p.key`, role.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

type branchStore struct{ db *sql.DB }

func (s *branchStore) Find(ctx context.Context, id string) (*auth.Branch, error) {
	row := s.db.QueryRowContext(ctx,
		`select b.id, b.gym_id, b.name, g.name
		 from branches b
		 join gyms g on g.id = b.gym_id
		 where b.id=$1`, id)
	var b auth.Branch
	if err := row.Scan(&b.ID, &b.GymID, &b.Name, &b.GymName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
