package authkit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	oa "github.com/praneshk/authkit"
	"github.com/praneshk/authkit/stores/sqlstore"
)

// loadSession returns a context carrying the scs session for token ("" for a
// fresh session).
func loadSession(t *testing.T, s *oa.Sessions, token string) context.Context {
	t.Helper()
	ctx, err := s.Manager.Load(context.Background(), token)
	if err != nil {
		t.Fatalf("session Load() error = %v", err)
	}
	return ctx
}

// commitSession persists the session and returns its token.
func commitSession(t *testing.T, s *oa.Sessions, ctx context.Context) string {
	t.Helper()
	token, _, err := s.Manager.Commit(ctx)
	if err != nil {
		t.Fatalf("session Commit() error = %v", err)
	}
	return token
}

func TestSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	sessions := oa.NewSessions(store)

	user := createUser(t, store, "u1", "u1@example.com", "p", true)

	ctx := loadSession(t, sessions, "")
	if err := sessions.Login(ctx, user); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	token := commitSession(t, sessions, ctx)

	// A later request with the same session token resolves the full record.
	ctx2 := loadSession(t, sessions, token)
	got, err := sessions.CurrentUser(ctx2)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if got.ID != user.ID || got.Username != "u1" || got.Email != "u1@example.com" {
		t.Errorf("CurrentUser() = %+v, want the registered user", got)
	}
	if got.PasswordHash != "" {
		t.Errorf("CurrentUser() leaked the password hash")
	}
}

func TestSessionForMissingUserIsInvalid(t *testing.T) {
	store := newTestStore(t)
	sessions := oa.NewSessions(store)

	ctx := loadSession(t, sessions, "")
	if err := sessions.Login(ctx, &oa.User{ID: 999999}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	_, err := sessions.CurrentUser(ctx)
	if !errors.Is(err, oa.ErrInvalidSession) {
		t.Fatalf("CurrentUser() error = %v, want ErrInvalidSession", err)
	}

	// The stale session was destroyed, not left half-trusted.
	_, err = sessions.CurrentUser(ctx)
	if !errors.Is(err, oa.ErrInvalidSession) {
		t.Errorf("CurrentUser() after destroy error = %v, want ErrInvalidSession", err)
	}
}

func TestSessionAfterDeletedUser(t *testing.T) {
	store := newTestStore(t)
	sessions := oa.NewSessions(store)
	user := createUser(t, store, "gone", "gone@example.com", "p", true)

	ctx := loadSession(t, sessions, "")
	if err := sessions.Login(ctx, user); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	token := commitSession(t, sessions, ctx)

	if err := store.Delete(context.Background(), user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	ctx2 := loadSession(t, sessions, token)
	if _, err := sessions.CurrentUser(ctx2); !errors.Is(err, oa.ErrInvalidSession) {
		t.Errorf("CurrentUser() for deleted user error = %v, want ErrInvalidSession", err)
	}
}

func TestRequireUserMiddleware(t *testing.T) {
	store := newTestStore(t)
	sessions := oa.NewSessions(store)
	user := createUser(t, store, "mw", "mw@example.com", "p", true)

	var seen *oa.User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = oa.UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := sessions.Manager.LoadAndSave(sessions.RequireUser(inner))

	// Anonymous request is denied.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/private", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous request status = %d, want 401", rr.Code)
	}

	// Establish a session, then replay its cookie.
	ctx := loadSession(t, sessions, "")
	if err := sessions.Login(ctx, user); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	token := commitSession(t, sessions, ctx)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: sessions.Manager.Cookie.Name, Value: token})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated request status = %d, want 200", rr.Code)
	}
	if seen == nil || seen.ID != user.ID {
		t.Errorf("context user = %+v, want id=%d", seen, user.ID)
	}
}

var _ oa.UserStore = (*sqlstore.Store)(nil)
var _ oa.OAuthStore = (*sqlstore.Store)(nil)
