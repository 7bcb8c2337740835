package authkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiryEmailVerification is the validity window of a verification
// token minted at registration.
const TokenExpiryEmailVerification = 1 * time.Hour

// VerificationTokens issues and confirms the signed, time-limited tokens
// used to prove control of a registration email. A token carries only the
// user id; it is never persisted.
//
// Issue and Confirm never write the fields, so a directly constructed value
// is safe for concurrent use; EnsureDefaults is for callers who want the
// resolved configuration pinned at assembly time.
type VerificationTokens struct {
	Store UserStore

	// SecretKey signs the HS256 tokens. Falls back to the
	// AUTHKIT_JWT_SECRET_KEY env var.
	SecretKey string

	Issuer string

	// Expiry defaults to TokenExpiryEmailVerification.
	Expiry time.Duration

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (t *VerificationTokens) EnsureDefaults() *VerificationTokens {
	if t.SecretKey == "" {
		t.SecretKey = strings.TrimSpace(os.Getenv("AUTHKIT_JWT_SECRET_KEY"))
	}
	if t.Issuer == "" {
		t.Issuer = "authkit"
	}
	if t.Expiry <= 0 {
		t.Expiry = TokenExpiryEmailVerification
	}
	if t.Now == nil {
		t.Now = time.Now
	}
	return t
}

func (t *VerificationTokens) secret() string {
	if t.SecretKey != "" {
		return t.SecretKey
	}
	return strings.TrimSpace(os.Getenv("AUTHKIT_JWT_SECRET_KEY"))
}

func (t *VerificationTokens) issuer() string {
	if t.Issuer != "" {
		return t.Issuer
	}
	return "authkit"
}

func (t *VerificationTokens) expiry() time.Duration {
	if t.Expiry > 0 {
		return t.Expiry
	}
	return TokenExpiryEmailVerification
}

func (t *VerificationTokens) clock() func() time.Time {
	if t.Now != nil {
		return t.Now
	}
	return time.Now
}

// Issue mints a token whose subject is the user id.
func (t *VerificationTokens) Issue(userID int64) (string, error) {
	secret := t.secret()
	if secret == "" {
		return "", fmt.Errorf("verification token secret key is not configured")
	}
	now := t.clock()()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    t.issuer(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry())),
	})
	return token.SignedString([]byte(secret))
}

// Confirm validates a token and marks the referenced user verified.
//
// Every failure mode surfaces as ErrInvalidToken: a bad or expired
// signature, a non-numeric subject, and a user id that no longer exists all
// look the same to the caller, so tokens cannot be used to probe for
// accounts. Confirming an already-verified user succeeds again.
func (t *VerificationTokens) Confirm(ctx context.Context, tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) { return []byte(t.secret()), nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(t.clock()),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return ErrInvalidToken
	}

	if err := t.Store.MarkVerified(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		slog.Error("error marking user verified", "userId", userID, "err", err)
		return err
	}
	return nil
}
