package authkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Profile is the normalized identity asserted by a third-party provider.
// Only ID is guaranteed; username and email may be absent.
type Profile struct {
	Provider string
	ID       string
	Username string
	Name     string
	Email    string
}

// placeholderPrefix tags the unusable credentials on OAuth-created accounts.
const placeholderPrefix = "!oauth-placeholder:"

// PlaceholderHash returns an intentionally unusable credential for
// OAuth-created accounts. It is not a valid bcrypt digest, so local login
// always fails the hash comparison for these users.
func PlaceholderHash() string {
	return placeholderPrefix + uuid.NewString()
}

// AccountLinker finds or creates a local user for a third-party profile.
//
// Both providers match on the canonical (provider, provider id) key held in
// the oauth_accounts table. Accounts created here are pre-verified (the
// provider's identity assertion substitutes for email verification), carry a
// placeholder credential, and are never admins.
type AccountLinker struct {
	Users UserStore
	Links OAuthStore
}

// Login resolves the profile to a local user, creating one on first sight.
// Any failure in the fetch-or-create sequence is an authentication failure;
// there is no fallback to guest access.
func (l *AccountLinker) Login(ctx context.Context, p Profile) (*User, error) {
	if p.Provider == "" || p.ID == "" {
		return nil, NewAuthError(ReasonOAuthFailed, "provider profile is missing an id")
	}

	link, err := l.Links.GetLink(ctx, p.Provider, p.ID)
	if err == nil {
		user, err := l.Users.GetByID(ctx, link.UserID)
		if err != nil {
			slog.Error("oauth link points at missing user", "provider", p.Provider, "providerId", p.ID, "err", err)
			return nil, NewAuthError(ReasonOAuthFailed, "OAuth login failed")
		}
		return user.Sanitized(), nil
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Error("error looking up oauth link", "provider", p.Provider, "err", err)
		return nil, NewAuthError(ReasonOAuthFailed, "OAuth login failed")
	}

	user, err := l.createLinkedUser(ctx, p)
	if err != nil {
		slog.Error("error creating oauth user", "provider", p.Provider, "err", err)
		return nil, NewAuthError(ReasonOAuthFailed, "OAuth login failed")
	}
	return user.Sanitized(), nil
}

func (l *AccountLinker) createLinkedUser(ctx context.Context, p Profile) (*User, error) {
	synth := l.synthesizedUsername(p)
	synthEmail := synth + "@placeholder.invalid"

	username := p.Username
	if username == "" {
		username = p.Name
	}
	if username == "" {
		username = synth
	}
	email := p.Email
	if email == "" {
		email = synthEmail
	}

	nu := NewUser{Username: username, Email: email, PasswordHash: PlaceholderHash()}
	user, err := l.Users.Create(ctx, nu)
	for err != nil {
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		switch {
		case conflict.Field == "username" && nu.Username != synth:
			// A provider-supplied username may collide with an existing local
			// account; fall back to the synthesized one before giving up.
			nu.Username = synth
		case conflict.Field == "email" && nu.Email != synthEmail:
			nu.Email = synthEmail
		default:
			// The synthesized identity itself is taken: a previous attempt
			// committed the row but failed before recording the link.
			return l.adoptOrphan(ctx, p, err)
		}
		user, err = l.Users.Create(ctx, nu)
	}

	return l.finishLink(ctx, p, user)
}

// adoptOrphan relinks an account left behind by an earlier createLinkedUser
// that committed the user row but failed before CreateLink. Only rows under
// the synthesized identity with a placeholder credential qualify; anything
// else keeps the original conflict.
func (l *AccountLinker) adoptOrphan(ctx context.Context, p Profile, createErr error) (*User, error) {
	synth := l.synthesizedUsername(p)
	user, err := l.Users.GetByUsername(ctx, synth)
	if errors.Is(err, ErrNotFound) {
		user, err = l.Users.GetByEmail(ctx, synth+"@placeholder.invalid")
	}
	if err != nil {
		return nil, createErr
	}
	if !strings.HasPrefix(user.PasswordHash, placeholderPrefix) {
		return nil, createErr
	}
	return l.finishLink(ctx, p, user)
}

func (l *AccountLinker) finishLink(ctx context.Context, p Profile, user *User) (*User, error) {
	if err := l.Users.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.Verified = true

	if err := l.Links.CreateLink(ctx, &OAuthLink{
		Provider:   p.Provider,
		ProviderID: p.ID,
		UserID:     user.ID,
	}); err != nil {
		return nil, err
	}

	slog.Info("created oauth-linked user", "provider", p.Provider, "userId", user.ID)
	return user, nil
}

func (l *AccountLinker) synthesizedUsername(p Profile) string {
	return fmt.Sprintf("%s_user_%s", p.Provider, p.ID)
}
