package authkit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

// sessionUserIDKey is the only identity data a session carries: the numeric
// user id. No password material, no derived claims.
const sessionUserIDKey = "userID"

type contextKey string

const userContextKey contextKey = "authkit.user"

// Sessions serializes an authenticated user into an scs-managed session and
// resolves the session back to a full record on each request.
type Sessions struct {
	Manager *scs.SessionManager
	Store   UserStore

	// LoginURL, when set, is where RequireUser redirects anonymous browser
	// requests. Empty means a plain 401.
	LoginURL string
}

// NewSessions builds a session resolver with an in-memory scs manager and a
// one-day lifetime. Swap Manager (or its Store) for a persistent backend.
func NewSessions(store UserStore) *Sessions {
	manager := scs.New()
	manager.Lifetime = 24 * time.Hour
	manager.Cookie.HttpOnly = true
	manager.Cookie.SameSite = http.SameSiteLaxMode
	return &Sessions{Manager: manager, Store: store}
}

// Login establishes a session for the user. The session token is renewed so
// the pre-auth token cannot be replayed into an authenticated one.
func (s *Sessions) Login(ctx context.Context, user *User) error {
	if err := s.Manager.RenewToken(ctx); err != nil {
		return err
	}
	s.Manager.Put(ctx, sessionUserIDKey, user.ID)
	return nil
}

// Logout destroys the current session.
func (s *Sessions) Logout(ctx context.Context) error {
	return s.Manager.Destroy(ctx)
}

// CurrentUser resolves the session's serialized id through a single store
// lookup. A session whose id no longer resolves is destroyed and reported as
// ErrInvalidSession; callers must deny rather than proceed with a partial
// identity.
func (s *Sessions) CurrentUser(ctx context.Context) (*User, error) {
	if !s.Manager.Exists(ctx, sessionUserIDKey) {
		return nil, ErrInvalidSession
	}
	id := s.Manager.GetInt64(ctx, sessionUserIDKey)

	user, err := s.Store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if derr := s.Manager.Destroy(ctx); derr != nil {
				slog.Warn("error destroying stale session", "err", derr)
			}
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return user.Sanitized(), nil
}

// ExtractUser resolves the session user, if any, into the request context.
// It never rejects: anonymous requests pass through without an identity.
func (s *Sessions) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.CurrentUser(r.Context())
		if err == nil {
			r = r.WithContext(context.WithValue(r.Context(), userContextKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser enforces an authenticated session, threading the typed user
// through the request context for downstream handlers.
func (s *Sessions) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.CurrentUser(r.Context())
		if err != nil {
			if s.LoginURL != "" {
				http.Redirect(w, r, s.LoginURL, http.StatusFound)
			} else {
				http.Error(w, `{"error": "Not authenticated"}`, http.StatusUnauthorized)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

// RequireAdmin is RequireUser plus an admin-flag check.
func (s *Sessions) RequireAdmin(next http.Handler) http.Handler {
	return s.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		if user == nil || !user.Admin {
			http.Error(w, `{"error": "Forbidden"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// UserFromContext returns the typed identity placed by ExtractUser or
// RequireUser.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok
}
