package authkit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	oa "github.com/praneshk/authkit"
)

const testSecret = "test-secret-key"

func TestVerificationTokenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	tokens := &oa.VerificationTokens{Store: store, SecretKey: testSecret}

	user := createUser(t, store, "bob", "bob@example.com", "pw", false)

	token, err := tokens.Issue(user.ID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := tokens.Confirm(context.Background(), token); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	got, err := store.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.Verified {
		t.Errorf("user not verified after Confirm()")
	}
}

func TestVerificationTokenConfirmIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	tokens := &oa.VerificationTokens{Store: store, SecretKey: testSecret}

	user := createUser(t, store, "carol", "carol@example.com", "pw", false)
	token, err := tokens.Issue(user.ID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := tokens.Confirm(context.Background(), token); err != nil {
			t.Fatalf("Confirm() call %d error = %v", i+1, err)
		}
	}

	got, _ := store.GetByID(context.Background(), user.ID)
	if !got.Verified {
		t.Errorf("user not verified after double Confirm()")
	}
}

func TestVerificationTokenInvalidCases(t *testing.T) {
	store := newTestStore(t)
	tokens := &oa.VerificationTokens{Store: store, SecretKey: testSecret}
	user := createUser(t, store, "dave", "dave@example.com", "pw", false)

	expiredIssuer := &oa.VerificationTokens{
		Store:     store,
		SecretKey: testSecret,
		Now:       func() time.Time { return time.Now().Add(-2 * time.Hour) },
	}
	expiredToken, err := expiredIssuer.Issue(user.ID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherKeyIssuer := &oa.VerificationTokens{Store: store, SecretKey: "some-other-key"}
	forgedToken, err := otherKeyIssuer.Issue(user.ID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	missingUserToken, err := tokens.Issue(999999)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbled token", "not-a-jwt"},
		{"expired token", expiredToken},
		{"wrong signing key", forgedToken},
		{"user no longer exists", missingUserToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tokens.Confirm(context.Background(), tt.token)
			if !errors.Is(err, oa.ErrInvalidToken) {
				t.Errorf("Confirm() error = %v, want ErrInvalidToken", err)
			}
		})
	}

	// None of the invalid confirms may have verified the user.
	got, _ := store.GetByID(context.Background(), user.ID)
	if got.Verified {
		t.Errorf("user became verified through an invalid token")
	}
}

// A directly constructed issuer may see its first calls concurrently; Issue
// must not mutate shared state on the way.
func TestVerificationTokenConcurrentFirstUse(t *testing.T) {
	store := newTestStore(t)
	tokens := &oa.VerificationTokens{Store: store, SecretKey: testSecret}
	user := createUser(t, store, "erin", "erin@example.com", "pw", false)

	issued := make([]string, 8)
	var wg sync.WaitGroup
	for i := range issued {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := tokens.Issue(user.ID)
			if err != nil {
				t.Errorf("concurrent Issue() error = %v", err)
				return
			}
			issued[i] = token
		}(i)
	}
	wg.Wait()

	for _, token := range issued {
		if err := tokens.Confirm(context.Background(), token); err != nil {
			t.Errorf("Confirm() error = %v", err)
		}
	}

	got, _ := store.GetByID(context.Background(), user.ID)
	if !got.Verified {
		t.Errorf("user not verified after concurrent issue")
	}
}
