package authkit

import (
	"context"
	"time"
)

// NewUser carries the fields of an insert. The password hash is already
// computed by the caller; stores never see plaintext.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
}

// UserStore is the contract over the users table. Implementations live in
// stores/sqlstore and stores/gormstore.
//
// Lookups return ErrNotFound for a miss, never a generic failure. Create
// validates the email, runs the taken-checks as a UX pre-flight, and must
// additionally map the storage layer's unique-constraint violation to a
// ConflictError: two registrations racing on the same username or email are
// settled by the constraint, not by the pre-check.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UsernameTaken returns a ConflictError if the username is in use, nil if
	// it is free. Lookup failures come back as ordinary errors, distinct from
	// the conflict.
	UsernameTaken(ctx context.Context, username string) error
	EmailTaken(ctx context.Context, email string) error

	// Create inserts a new user and returns the stored record with its
	// assigned id. Fails with a ValidationError for a malformed email and a
	// ConflictError for duplicates.
	Create(ctx context.Context, nu NewUser) (*User, error)

	// MarkVerified flips is_verified to true. Re-verifying an already
	// verified user is a no-op success; an unknown id returns ErrNotFound.
	MarkVerified(ctx context.Context, id int64) error

	// Admin-panel queries.
	List(ctx context.Context) ([]*User, error)
	Count(ctx context.Context) (int64, error)
	ListVerified(ctx context.Context) ([]*User, error)
	ListAdmins(ctx context.Context) ([]*User, error)
	Delete(ctx context.Context, id int64) error
}

// OAuthLink maps a third-party identity to a local user. The pair
// (Provider, ProviderID) is the canonical matching key for OAuth logins.
type OAuthLink struct {
	Provider   string    `db:"provider"`
	ProviderID string    `db:"provider_id"`
	UserID     int64     `db:"user_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// OAuthStore persists provider links. Both bundled store backends implement
// it alongside UserStore.
type OAuthStore interface {
	// GetLink returns the link for (provider, providerID) or ErrNotFound.
	GetLink(ctx context.Context, provider, providerID string) (*OAuthLink, error)

	// CreateLink records a new provider link.
	CreateLink(ctx context.Context, link *OAuthLink) error
}
