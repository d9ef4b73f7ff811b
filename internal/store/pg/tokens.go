package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gymgate.io/internal/auth"
)

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, rec *auth.RefreshTokenRecord) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(token, account_id, expires_at, parent_token, ip, user_agent)
		 values($1,$2,$3,nullif($4,''),nullif($5,''),nullif($6,''))`,
		rec.Token, rec.AccountID, rec.ExpiresAt, rec.ParentToken, rec.IP, rec.UserAgent,
	)
	return err
}

// Claim revokes and returns the row in one conditional statement, so two
// concurrent rotations of the same token cannot both succeed.
func (s *refreshTokenStore) Claim(ctx context.Context, token string) (*auth.RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`update refresh_tokens
		 set is_revoked=true, revoked_at=now()
		 where token=$1 and not is_revoked
		 returning token, account_id, expires_at, coalesce(parent_token,''), coalesce(ip,''), coalesce(user_agent,''), created_at`,
		token)
	var rec auth.RefreshTokenRecord
	if err := row.Scan(&rec.Token, &rec.AccountID, &rec.ExpiresAt, &rec.ParentToken, &rec.IP, &rec.UserAgent, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	rec.IsRevoked = true
	return &rec, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set is_revoked=true, revoked_at=now() where token=$1 and not is_revoked`, token)
	return err
}

func (s *refreshTokenStore) RevokeAllForAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set is_revoked=true, revoked_at=now() where account_id=$1 and not is_revoked`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *refreshTokenStore) DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at < $1 or (is_revoked and revoked_at < $2)`,
		now, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *refreshTokenStore) ListActive(ctx context.Context, accountID string, now time.Time) ([]auth.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select created_at, expires_at, coalesce(ip,''), coalesce(user_agent,'')
		 from refresh_tokens
		 where account_id=$1 and not is_revoked and expires_at > $2
		 order by created_at desc`, accountID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []auth.Session
	for rows.Next() {
		var sess auth.Session
		if err := rows.Scan(&sess.CreatedAt, &sess.ExpiresAt, &sess.IP, &sess.UserAgent); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type oneTimeTokenStore struct{ db *sql.DB }

func (s *oneTimeTokenStore) Upsert(ctx context.Context, tok *auth.OneTimeToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into one_time_tokens(account_id, purpose, token, expires_at)
		 values($1,$2,$3,$4)
		 on conflict (account_id, purpose) do update
		 set token = excluded.token, expires_at = excluded.expires_at, created_at = now()`,
		tok.AccountID, string(tok.Purpose), tok.Token, tok.ExpiresAt,
	)
	return err
}

func (s *oneTimeTokenStore) FindByToken(ctx context.Context, purpose auth.TokenPurpose, token string) (*auth.OneTimeToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select account_id, purpose, token, expires_at, created_at
		 from one_time_tokens where purpose=$1 and token=$2`, string(purpose), token)
	var (
		rec    auth.OneTimeToken
		stored string
	)
	if err := row.Scan(&rec.AccountID, &stored, &rec.Token, &rec.ExpiresAt, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	rec.Purpose = auth.TokenPurpose(stored)
	return &rec, nil
}

func (s *oneTimeTokenStore) Delete(ctx context.Context, accountID string, purpose auth.TokenPurpose) error {
	_, err := s.db.ExecContext(ctx,
		`delete from one_time_tokens where account_id=$1 and purpose=$2`, accountID, string(purpose))
	return err
}
