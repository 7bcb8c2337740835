package authkit

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a lookup miss. Store lookups return it as a typed
// absence rather than escalating.
var ErrNotFound = errors.New("not found")

// ErrInvalidToken covers every verification-token failure: missing or garbled
// signature, expiry, and token subjects that no longer exist. Callers cannot
// tell these apart.
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrInvalidSession reports a session whose serialized identity no longer
// resolves to a user. The session must be cleared, never partially trusted.
var ErrInvalidSession = errors.New("invalid session")

// ConflictError reports a duplicate username or email. Field names which
// column collided so the caller can produce a specific message.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is already in use", e.Field, e.Value)
}

// ValidationError reports malformed signup input, detected before any store
// mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthReason is a machine-readable authentication failure reason.
type AuthReason string

const (
	ReasonNoSuchUser  AuthReason = "no_such_user"
	ReasonUnverified  AuthReason = "email_not_verified"
	ReasonBadPassword AuthReason = "incorrect_password"
	ReasonOAuthFailed AuthReason = "oauth_login_failed"
)

// AuthError is the typed outcome of a failed authentication attempt. The
// three local-credential reasons are distinguishable; OAuth failures collapse
// into a single reason.
type AuthError struct {
	Reason  AuthReason
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func NewAuthError(reason AuthReason, message string) *AuthError {
	return &AuthError{Reason: reason, Message: message}
}

// UpstreamError wraps a failure from an external collaborator (mail relay,
// OAuth provider). It is reported, not fatal to already-committed state.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
