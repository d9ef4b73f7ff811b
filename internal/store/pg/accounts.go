package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"gymgate.io/internal/auth"
)

const pgUniqueViolation = "23505"

type accountStore struct{ db *sql.DB }

const accountColumns = `id, email, password_hash, full_name, phone, avatar_url, is_active, email_verified, created_at, updated_at`

func (s *accountStore) Create(ctx context.Context, a *auth.Account) error {
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, email, password_hash, full_name, phone, avatar_url, is_active, email_verified)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.Email, a.PasswordHash, a.FullName, a.Phone, a.AvatarURL, a.IsActive, a.EmailVerified,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return auth.ErrDuplicateEmail
	}
	return err
}

func (s *accountStore) Find(ctx context.Context, id string) (*auth.Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id))
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email))
}

func (s *accountStore) MarkVerified(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set is_active=true, email_verified=true, updated_at=now() where id=$1`, accountID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *accountStore) UpdatePasswordHash(ctx context.Context, accountID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set password_hash=$2, updated_at=now() where id=$1`, accountID, hash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *accountStore) ListByBranch(ctx context.Context, branchID string, role auth.Role) ([]*auth.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select a.id, a.email, a.password_hash, a.full_name, a.phone, a.avatar_url, a.is_active, a.email_verified, a.created_at, a.updated_at
		 from accounts a
		 join role_assignments ra on ra.account_id = a.id
		 where ra.branch_id=$1 and ra.role=$2
		 order by a.created_at`, branchID, role.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*auth.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *accountStore) scanOne(row *sql.Row) (*auth.Account, error) {
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAccount(row rowScanner) (*auth.Account, error) {
	var (
		a         auth.Account
		phone     sql.NullString
		avatarURL sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &phone, &avatarURL,
		&a.IsActive, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Phone = phone.String
	a.AvatarURL = avatarURL.String
	return &a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
