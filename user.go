package authkit

import (
	"regexp"
	"time"
)

// User is the single persisted account entity.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Verified     bool      `json:"is_verified" db:"is_verified"`
	Admin        bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Sanitized returns a copy of the user with the password hash stripped.
// Everything above the credential verifier works with sanitized records.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	return &out
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks that the address is well formed. It runs before any
// store mutation on the registration path.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Invalid email format"}
	}
	return nil
}

// Policy defines optional signup constraints. The zero value accepts any
// username and password; applications opt in to stricter rules.
type Policy struct {
	// Minimum password length. 0 disables the check.
	MinPasswordLength int

	// Username pattern. Nil accepts any non-empty username.
	UsernamePattern *regexp.Regexp
}

// Validate checks signup inputs against the policy.
func (p *Policy) Validate(username, password string) error {
	if username == "" {
		return &ValidationError{Field: "username", Message: "Username is required"}
	}
	if p == nil {
		return nil
	}
	if p.UsernamePattern != nil && !p.UsernamePattern.MatchString(username) {
		return &ValidationError{Field: "username", Message: "Invalid username format"}
	}
	if p.MinPasswordLength > 0 && len(password) < p.MinPasswordLength {
		return &ValidationError{Field: "password", Message: "Password too short"}
	}
	return nil
}
