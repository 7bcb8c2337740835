package authkit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// RegisterResult is the two-phase outcome of a registration: the user row is
// committed first, the verification mail is best effort afterwards. EmailErr
// being set means "registered, but the notification may not have arrived".
type RegisterResult struct {
	User *User

	// EmailSent reports whether the verification email went out.
	EmailSent bool

	// EmailErr holds the send failure, if any. The user row stays committed.
	EmailErr error
}

// Registrar handles user registration and the verification-token side path.
type Registrar struct {
	Store  UserStore
	Tokens *VerificationTokens

	// EmailSender delivers the verification link. Nil skips the mail phase.
	EmailSender SendEmail

	// BaseURL prefixes generated verification links.
	BaseURL string

	// Policy holds optional signup constraints. Nil is permissive.
	Policy *Policy

	// OnError is called when signup fails. If nil, a JSON error is returned.
	OnError AuthErrorHandler
}

// Register creates an unverified user and issues its verification email.
//
// Validation (policy, email format) runs before any store mutation.
// Duplicate username/email surfaces as a ConflictError, whether caught by
// the store's pre-check or by the unique constraint settling a race. A mail
// failure is reported in the result, not as an error.
func (g *Registrar) Register(ctx context.Context, username, email, password string) (*RegisterResult, error) {
	if err := g.Policy.Validate(username, password); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := g.Store.Create(ctx, NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{User: user.Sanitized()}

	if g.EmailSender == nil || g.Tokens == nil {
		return result, nil
	}

	token, err := g.Tokens.Issue(user.ID)
	if err != nil {
		slog.Error("error creating verification token", "userId", user.ID, "err", err)
		result.EmailErr = err
		return result, nil
	}

	link := fmt.Sprintf("%s/auth/verify-email?token=%s", strings.TrimSuffix(g.BaseURL, "/"), token)
	if err := g.EmailSender.SendVerificationEmail(email, username, link); err != nil {
		slog.Error("error sending verification email", "to", email, "err", err)
		result.EmailErr = &UpstreamError{Op: "send verification email", Err: err}
		return result, nil
	}

	result.EmailSent = true
	return result, nil
}

// HandleSignup processes registration requests (form or JSON body).
func (g *Registrar) HandleSignup(w http.ResponseWriter, r *http.Request) {
	username, email, password, err := parseSignupForm(r)
	if err != nil {
		g.handleError(err, w, r)
		return
	}

	result, err := g.Register(r.Context(), username, email, password)
	if err != nil {
		g.handleError(err, w, r)
		return
	}

	message := "Registration successful. Please check your email to verify your account."
	if result.EmailErr != nil {
		message = "Registration successful, but we couldn't send the verification email. Please try again."
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":         result.User.ID,
		"username":   result.User.Username,
		"email":      result.User.Email,
		"email_sent": result.EmailSent,
		"message":    message,
	})
}

// HandleVerifyEmail handles the verification callback link.
func (g *Registrar) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		g.handleError(ErrInvalidToken, w, r)
		return
	}

	if err := g.Tokens.Confirm(r.Context(), token); err != nil {
		g.handleError(err, w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "Email verified successfully! You can now log in.",
	})
}

func (g *Registrar) handleError(err error, w http.ResponseWriter, r *http.Request) {
	if g.OnError != nil && g.OnError(err, w, r) {
		return
	}
	WriteError(w, err)
}

func parseSignupForm(r *http.Request) (username, email, password string, err error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		// ParseForm ignores multipart bodies; they need their own parser.
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return "", "", "", &ValidationError{Field: "", Message: "Error parsing form"}
		}
		username = r.FormValue("username")
		email = r.FormValue("email")
		password = r.FormValue("password")
	} else if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return "", "", "", &ValidationError{Field: "", Message: "Error parsing form"}
		}
		username = r.FormValue("username")
		email = r.FormValue("email")
		password = r.FormValue("password")
	} else {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", "", &ValidationError{Field: "", Message: "Invalid post body"}
		}
		username, _ = data["username"].(string)
		email, _ = data["email"].(string)
		password, _ = data["password"].(string)
	}

	if username == "" || email == "" || password == "" {
		return "", "", "", &ValidationError{Field: "", Message: "username, email and password required"}
	}
	return username, email, password, nil
}
