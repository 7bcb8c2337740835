package authkit_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/praneshk/authkit"
	"github.com/praneshk/authkit/stores/sqlstore"
)

// newTestStore returns a store over an in-memory SQLite database. The pool
// is pinned to one connection so every query sees the same memory database.
func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	db, err := sqlx.Connect("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	store := sqlstore.New(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return store
}

// createUser inserts a user directly, optionally verified.
func createUser(t *testing.T, store *sqlstore.Store, username, email, password string, verified bool) *authkit.User {
	t.Helper()

	hash, err := authkit.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	user, err := store.Create(context.Background(), authkit.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if verified {
		if err := store.MarkVerified(context.Background(), user.ID); err != nil {
			t.Fatalf("MarkVerified() error = %v", err)
		}
		user.Verified = true
	}
	return user
}

// recordingEmailSender captures the last verification link handed to it.
type recordingEmailSender struct {
	mu       sync.Mutex
	lastTo   string
	lastLink string
	sends    int
}

func (r *recordingEmailSender) SendVerificationEmail(to, username, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastTo = to
	r.lastLink = link
	r.sends++
	return nil
}
