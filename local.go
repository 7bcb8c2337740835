package authkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a valid bcrypt digest of a throwaway string. When no user
// matches the supplied email the comparison still runs against it, so the
// primitive executes in full on every attempt.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthSuccessFunc is called after a successful login with the sanitized user.
type AuthSuccessFunc func(user *User, w http.ResponseWriter, r *http.Request)

// AuthErrorHandler lets applications take over error rendering (e.g. a
// redirect with a flash message). Returning true stops the default JSON body.
type AuthErrorHandler func(err error, w http.ResponseWriter, r *http.Request) bool

// LocalAuth verifies email/password credentials against the user store.
type LocalAuth struct {
	Store UserStore

	// Form field names. Default to "email" and "password".
	EmailField    string
	PasswordField string

	// Handler called after successful authentication.
	OnSuccess AuthSuccessFunc

	// OnError is called when login fails. If nil, a JSON error is returned.
	OnError AuthErrorHandler
}

// Authenticate resolves the stored user for email and checks the password.
//
// Failure outcomes are distinguishable AuthErrors: no user with that email,
// user not yet verified, and wrong password. On success the returned record
// is sanitized; the hash does not leave this boundary.
func (a *LocalAuth) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := a.Store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn the comparison anyway so the miss is not cheaper than a
			// wrong password.
			bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, NewAuthError(ReasonNoSuchUser, "No user found with that email")
		}
		return nil, err
	}

	if !user.Verified {
		return nil, NewAuthError(ReasonUnverified, "Email not verified")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		// Placeholder credentials on OAuth-created accounts are not valid
		// bcrypt digests and land here as well.
		return nil, NewAuthError(ReasonBadPassword, "Incorrect password")
	}

	return user.Sanitized(), nil
}

// ServeHTTP handles login requests (form or JSON body).
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		http.Error(w, `{"error": "Login not configured"}`, http.StatusInternalServerError)
		return
	}

	email, password, err := a.parseLoginForm(r)
	if err != nil {
		a.handleError(&ValidationError{Field: a.getEmailField(), Message: err.Error()}, w, r)
		return
	}

	user, err := a.Authenticate(r.Context(), email, password)
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			slog.Error("error validating credentials", "err", err)
			err = NewAuthError(ReasonBadPassword, "Invalid credentials")
		}
		a.handleError(err, w, r)
		return
	}

	if a.OnSuccess == nil {
		http.Error(w, `{"error": "Login success handler not configured"}`, http.StatusInternalServerError)
		return
	}
	a.OnSuccess(user, w, r)
}

func (a *LocalAuth) parseLoginForm(r *http.Request) (email, password string, err error) {
	contentType := r.Header.Get("Content-Type")
	emailField := a.getEmailField()
	passwordField := a.getPasswordField()

	if strings.HasPrefix(contentType, "multipart/form-data") {
		// ParseForm ignores multipart bodies; they need their own parser.
		if err = r.ParseMultipartForm(1 << 20); err != nil {
			return "", "", fmt.Errorf("error parsing form")
		}
		email = r.FormValue(emailField)
		password = r.FormValue(passwordField)
	} else if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err = r.ParseForm(); err != nil {
			return "", "", fmt.Errorf("error parsing form")
		}
		email = r.FormValue(emailField)
		password = r.FormValue(passwordField)
	} else {
		var data map[string]any
		if err = json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", fmt.Errorf("invalid post body")
		}
		if e, ok := data[emailField].(string); ok {
			email = e
		}
		if p, ok := data[passwordField].(string); ok {
			password = p
		}
	}

	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password required")
	}
	return email, password, nil
}

func (a *LocalAuth) getEmailField() string {
	if a.EmailField != "" {
		return a.EmailField
	}
	return "email"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

func (a *LocalAuth) handleError(err error, w http.ResponseWriter, r *http.Request) {
	if a.OnError != nil && a.OnError(err, w, r) {
		return
	}
	WriteError(w, err)
}

// HashPassword produces the salted hash stored in the users table.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
