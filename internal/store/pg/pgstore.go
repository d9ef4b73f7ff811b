// Package pg implements auth.Store on PostgreSQL through database/sql with
// the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gymgate.io/internal/auth"
)

// Store is the process-wide persistence handle. Constructed explicitly in
// main and injected into services; there is no import-time singleton.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects and applies bounded pool limits.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle; used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Accounts() auth.AccountStore           { return &accountStore{db: s.db} }
func (s *Store) Roles() auth.RoleStore                 { return &roleStore{db: s.db} }
func (s *Store) Branches() auth.BranchStore            { return &branchStore{db: s.db} }
func (s *Store) RefreshTokens() auth.RefreshTokenStore { return &refreshTokenStore{db: s.db} }
func (s *Store) OneTimeTokens() auth.OneTimeTokenStore { return &oneTimeTokenStore{db: s.db} }
