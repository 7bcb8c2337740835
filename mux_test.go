package authkit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	oa "github.com/praneshk/authkit"
	"github.com/praneshk/authkit/stores/sqlstore"
)

type journey struct {
	store  *sqlstore.Store
	auth   *oa.Auth
	sender *recordingEmailSender
	server *httptest.Server
	client *http.Client
}

func newJourney(t *testing.T) *journey {
	t.Helper()
	store := newTestStore(t)
	sender := &recordingEmailSender{}

	auth := oa.New("authkit-test", store, store)
	auth.Tokens.SecretKey = testSecret
	auth.Registrar.EmailSender = sender

	mux := http.NewServeMux()
	mux.Handle("/auth/", http.StripPrefix("/auth", auth.Handler()))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	auth.Registrar.BaseURL = server.URL

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &journey{
		store:  store,
		auth:   auth,
		sender: sender,
		server: server,
		client: &http.Client{Jar: jar},
	}
}

func (j *journey) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := j.client.PostForm(j.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	return resp
}

func (j *journey) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := j.client.Get(j.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("error decoding response body: %v", err)
	}
	return body
}

func TestRegisterVerifyLoginJourney(t *testing.T) {
	j := newJourney(t)

	// Register.
	resp := j.postForm(t, "/auth/signup", url.Values{
		"username": {"u1"},
		"email":    {"u1@example.com"},
		"password": {"p"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["username"] != "u1" || body["email"] != "u1@example.com" {
		t.Errorf("signup body = %v", body)
	}

	// Login before verification is refused with the unverified reason.
	resp = j.postForm(t, "/auth/login", url.Values{"email": {"u1@example.com"}, "password": {"p"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("pre-verification login status = %d, want 401", resp.StatusCode)
	}
	if body = decodeBody(t, resp); body["reason"] != string(oa.ReasonUnverified) {
		t.Errorf("pre-verification login reason = %v", body["reason"])
	}

	// Follow the emailed verification link.
	link := j.sender.lastLink
	if !strings.HasPrefix(link, j.server.URL) {
		t.Fatalf("verification link %q does not target the test server", link)
	}
	resp = j.get(t, strings.TrimPrefix(link, j.server.URL))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-email status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Verifying twice is not an error.
	resp = j.get(t, strings.TrimPrefix(link, j.server.URL))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second verify-email status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Login now succeeds and establishes a session.
	resp = j.postForm(t, "/auth/login", url.Values{"email": {"u1@example.com"}, "password": {"p"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A tampered token is rejected without detail.
	resp = j.get(t, "/auth/verify-email?token=tampered")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("tampered token status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	j := newJourney(t)

	createUser(t, j.store, "plain", "plain@example.com", "p", true)
	adminUser := createUser(t, j.store, "root", "root@example.com", "p", true)
	// The admin flag is immutable through the exposed surface; grant it the
	// way an operator would.
	if _, err := j.store.DB().Exec("UPDATE users SET is_admin = 1 WHERE id = ?", adminUser.ID); err != nil {
		t.Fatalf("error granting admin: %v", err)
	}

	// Anonymous and non-admin callers are refused.
	resp := j.get(t, "/auth/admin/sessions")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous admin status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	resp = j.postForm(t, "/auth/login", url.Values{"email": {"plain@example.com"}, "password": {"p"}})
	resp.Body.Close()
	resp = j.get(t, "/auth/admin/sessions")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
	resp = j.get(t, "/auth/logout")
	resp.Body.Close()

	// The admin sees sessions and users.
	resp = j.postForm(t, "/auth/login", url.Values{"email": {"root@example.com"}, "password": {"p"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin login status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = j.get(t, "/auth/admin/sessions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin sessions status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if _, ok := body["sessions"]; !ok {
		t.Errorf("admin sessions body = %v", body)
	}

	resp = j.get(t, "/auth/admin/users")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin users status = %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	if total, ok := body["total"].(float64); !ok || total != 2 {
		t.Errorf("admin users total = %v, want 2", body["total"])
	}

	// Revoking the only live session (the admin's own) locks them out.
	listed, err := j.auth.Admin.ListSessions(context.Background())
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListSessions() = %v, %v, want one live session", listed, err)
	}
	resp = j.postForm(t, "/auth/admin/sessions/"+listed[0].Token+"/revoke", url.Values{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = j.get(t, "/auth/admin/users")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("post-revocation admin status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginFailureReasonsOverHTTP(t *testing.T) {
	j := newJourney(t)
	createUser(t, j.store, "known", "known@example.com", "right", true)

	tests := []struct {
		name       string
		email      string
		password   string
		wantReason oa.AuthReason
	}{
		{"unknown user", "nobody@example.com", "x", oa.ReasonNoSuchUser},
		{"wrong password", "known@example.com", "wrong", oa.ReasonBadPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := j.postForm(t, "/auth/login", url.Values{"email": {tt.email}, "password": {tt.password}})
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.StatusCode)
			}
			if body := decodeBody(t, resp); body["reason"] != string(tt.wantReason) {
				t.Errorf("reason = %v, want %v", body["reason"], tt.wantReason)
			}
		})
	}
}
