// Package sqlstore implements the authkit stores over a relational database
// using sqlx named queries. It is exercised against SQLite in tests and
// against Postgres (lib/pq) in production.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/praneshk/authkit"
)

// Store implements authkit.UserStore and authkit.OAuthStore.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store { return &Store{db: db} }

// Open connects and pings the database. driver is "postgres" or "sqlite3".
func Open(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (s *Store) DB() *sqlx.DB { return s.db }

// EnsureSchema creates the users and oauth_accounts tables if missing
// (idempotent). Prefer migrations in production.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  is_verified BOOLEAN NOT NULL DEFAULT FALSE,
  is_admin BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS oauth_accounts (
  provider TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (provider, provider_id)
);
`
	if s.db.DriverName() == "sqlite3" {
		ddl = `
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  is_verified BOOLEAN NOT NULL DEFAULT 0,
  is_admin BOOLEAN NOT NULL DEFAULT 0,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS oauth_accounts (
  provider TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (provider, provider_id)
);
`
	}
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

const userColumns = `id, username, email, password_hash, is_verified, is_admin, created_at`

func (s *Store) GetByID(ctx context.Context, id int64) (*authkit.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = :id`
	return s.getOne(ctx, q, map[string]any{"id": id})
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*authkit.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username = :username`
	return s.getOne(ctx, q, map[string]any{"username": username})
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*authkit.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = :email`
	return s.getOne(ctx, q, map[string]any{"email": email})
}

func (s *Store) getOne(ctx context.Context, q string, params map[string]any) (*authkit.User, error) {
	stmt, err := s.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var u authkit.User
	if err := stmt.GetContext(ctx, &u, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authkit.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UsernameTaken reports "already in use" as a ConflictError, nil when the
// username is free.
func (s *Store) UsernameTaken(ctx context.Context, username string) error {
	taken, err := s.exists(ctx, `SELECT COUNT(*) FROM users WHERE username = :v`, username)
	if err != nil {
		return err
	}
	if taken {
		return &authkit.ConflictError{Field: "username", Value: username}
	}
	return nil
}

func (s *Store) EmailTaken(ctx context.Context, email string) error {
	taken, err := s.exists(ctx, `SELECT COUNT(*) FROM users WHERE email = :v`, email)
	if err != nil {
		return err
	}
	if taken {
		return &authkit.ConflictError{Field: "email", Value: email}
	}
	return nil
}

func (s *Store) exists(ctx context.Context, q, value string) (bool, error) {
	stmt, err := s.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	var n int64
	if err := stmt.GetContext(ctx, &n, map[string]any{"v": value}); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create inserts a new user. The taken-checks run first for a specific
// conflict message; the unique constraints remain the source of truth and a
// constraint violation from a racing insert is mapped to the same
// ConflictError.
func (s *Store) Create(ctx context.Context, nu authkit.NewUser) (*authkit.User, error) {
	if err := authkit.ValidateEmail(nu.Email); err != nil {
		return nil, err
	}
	if err := s.EmailTaken(ctx, nu.Email); err != nil {
		return nil, err
	}
	if err := s.UsernameTaken(ctx, nu.Username); err != nil {
		return nil, err
	}

	params := map[string]any{
		"username":      nu.Username,
		"email":         nu.Email,
		"password_hash": nu.PasswordHash,
	}

	var id int64
	if s.db.DriverName() == "postgres" {
		q := `INSERT INTO users (username, email, password_hash)
		      VALUES (:username, :email, :password_hash) RETURNING id`
		stmt, err := s.db.PrepareNamedContext(ctx, q)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()
		if err := stmt.GetContext(ctx, &id, params); err != nil {
			return nil, mapConstraintError(err, nu)
		}
	} else {
		q := `INSERT INTO users (username, email, password_hash)
		      VALUES (:username, :email, :password_hash)`
		res, err := s.db.NamedExecContext(ctx, q, params)
		if err != nil {
			return nil, mapConstraintError(err, nu)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return nil, err
		}
	}

	return s.GetByID(ctx, id)
}

// MarkVerified flips is_verified. Rewriting an already-verified row still
// matches and succeeds; only an unknown id reports ErrNotFound.
func (s *Store) MarkVerified(ctx context.Context, id int64) error {
	res, err := s.db.NamedExecContext(ctx,
		`UPDATE users SET is_verified = :verified WHERE id = :id`,
		map[string]any{"verified": true, "id": id})
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authkit.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*authkit.User, error) {
	return s.selectUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (s *Store) ListVerified(ctx context.Context) ([]*authkit.User, error) {
	return s.selectUsers(ctx, `SELECT `+userColumns+` FROM users WHERE is_verified ORDER BY id`)
}

func (s *Store) ListAdmins(ctx context.Context) ([]*authkit.User, error) {
	return s.selectUsers(ctx, `SELECT `+userColumns+` FROM users WHERE is_admin ORDER BY id`)
}

func (s *Store) selectUsers(ctx context.Context, q string) ([]*authkit.User, error) {
	var users []*authkit.User
	if err := s.db.SelectContext(ctx, &users, q); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.NamedExecContext(ctx, `DELETE FROM users WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authkit.ErrNotFound
	}
	return nil
}

func (s *Store) GetLink(ctx context.Context, provider, providerID string) (*authkit.OAuthLink, error) {
	q := `SELECT provider, provider_id, user_id, created_at FROM oauth_accounts
	      WHERE provider = :provider AND provider_id = :provider_id`
	stmt, err := s.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var link authkit.OAuthLink
	err = stmt.GetContext(ctx, &link, map[string]any{"provider": provider, "provider_id": providerID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authkit.ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (s *Store) CreateLink(ctx context.Context, link *authkit.OAuthLink) error {
	q := `INSERT INTO oauth_accounts (provider, provider_id, user_id)
	      VALUES (:provider, :provider_id, :user_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"provider":    link.Provider,
		"provider_id": link.ProviderID,
		"user_id":     link.UserID,
	})
	if err != nil && isUniqueViolation(err) {
		return &authkit.ConflictError{Field: "provider_id", Value: link.ProviderID}
	}
	return err
}

// mapConstraintError converts driver-specific unique-constraint violations
// into the ConflictError the loser of a check-then-insert race must see.
func mapConstraintError(err error, nu authkit.NewUser) error {
	if !isUniqueViolation(err) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "email") {
		return &authkit.ConflictError{Field: "email", Value: nu.Email}
	}
	if strings.Contains(msg, "username") {
		return &authkit.ConflictError{Field: "username", Value: nu.Username}
	}
	return fmt.Errorf("duplicate user: %w", err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
