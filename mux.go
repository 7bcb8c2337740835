package authkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
)

// Auth wires the authentication components onto a gorilla/mux router.
//
// Routes (relative to wherever the handler is mounted):
//
//	POST /login                              local credential login
//	POST /signup                             registration
//	GET  /verify-email?token=...             email verification callback
//	GET  /logout                             session teardown
//	GET  /admin/sessions                     session listing (admin only)
//	POST /admin/sessions/{sessionid}/revoke  session revocation (admin only)
//	GET  /admin/users                        user listing (admin only)
//
// OAuth provider handlers are mounted with AddProvider.
type Auth struct {
	AppName string

	Store     UserStore
	Sessions  *Sessions
	Local     *LocalAuth
	Registrar *Registrar
	Tokens    *VerificationTokens
	Linker    *AccountLinker
	Admin     *Admin

	// PostLoginURL is where browser logins land after success. Empty returns
	// a JSON body instead.
	PostLoginURL string

	// PostLogoutURL is where /logout redirects. Empty returns a JSON body.
	PostLogoutURL string

	router *mux.Router
}

// New assembles an Auth with all components sharing the given stores.
func New(appName string, store UserStore, links OAuthStore) *Auth {
	a := &Auth{
		AppName: appName,
		Store:   store,
	}
	a.Sessions = NewSessions(store)
	a.Tokens = (&VerificationTokens{Store: store}).EnsureDefaults()
	a.Local = &LocalAuth{Store: store, OnSuccess: a.onLoginSuccess}
	a.Registrar = &Registrar{Store: store, Tokens: a.Tokens, EmailSender: &ConsoleEmailSender{}}
	a.Linker = &AccountLinker{Users: store, Links: links}
	a.Admin = &Admin{Sessions: a.Sessions, Store: store}
	return a
}

// Handler returns the routed auth surface, wrapped with scs session
// load/save so every request sees its session context.
func (a *Auth) Handler() http.Handler {
	return a.Sessions.Manager.LoadAndSave(a.setupRoutes().router)
}

func (a *Auth) setupRoutes() *Auth {
	if a.router != nil {
		return a
	}
	r := mux.NewRouter()
	r.Handle("/login", a.Local).Methods(http.MethodPost)
	r.HandleFunc("/signup", a.Registrar.HandleSignup).Methods(http.MethodPost)
	r.HandleFunc("/verify-email", a.Registrar.HandleVerifyEmail).Methods(http.MethodGet)
	r.HandleFunc("/logout", a.onLogout).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(a.Sessions.RequireAdmin)
	admin.HandleFunc("/sessions", a.Admin.HandleListSessions).Methods(http.MethodGet)
	admin.HandleFunc("/sessions/{sessionid}/revoke", a.Admin.HandleRevokeSession).Methods(http.MethodPost)
	admin.HandleFunc("/users", a.Admin.HandleListUsers).Methods(http.MethodGet)

	a.router = r
	return a
}

// AddProvider mounts an OAuth provider handler (see the oauth2 subpackage)
// under the given prefix, e.g. AddProvider("/github", gh) serves /github and
// /github/callback.
func (a *Auth) AddProvider(prefix string, handler http.Handler) *Auth {
	a.setupRoutes()
	prefix = "/" + strings.Trim(prefix, "/")
	a.router.PathPrefix(prefix).Handler(http.StripPrefix(prefix, handler))
	return a
}

// HandleOAuthProfile is the callback the oauth2 provider handlers invoke
// after a successful code exchange. It links the profile to a local user and
// establishes the session.
func (a *Auth) HandleOAuthProfile(provider string, token *oauth2.Token, profile Profile, w http.ResponseWriter, r *http.Request) {
	user, err := a.Linker.Login(r.Context(), profile)
	if err != nil {
		slog.Warn("oauth login denied", "provider", provider, "err", err)
		http.Error(w, `{"error": "OAuth login failed"}`, http.StatusUnauthorized)
		return
	}
	a.onLoginSuccess(user, w, r)
}

func (a *Auth) onLoginSuccess(user *User, w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Login(r.Context(), user); err != nil {
		slog.Error("error establishing session", "userId", user.ID, "err", err)
		http.Error(w, `{"error": "Login failed"}`, http.StatusInternalServerError)
		return
	}
	if a.PostLoginURL != "" {
		http.Redirect(w, r, a.PostLoginURL, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "user": user})
}

func (a *Auth) onLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Logout(r.Context()); err != nil {
		slog.Warn("error destroying session on logout", "err", err)
	}
	if a.PostLogoutURL != "" {
		http.Redirect(w, r, a.PostLogoutURL, http.StatusFound)
		return
	}
	fmt.Fprint(w, `{"success": true, "message": "Logged out"}`)
}

// WriteError renders a typed failure as a JSON response with the matching
// status code.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	reason := ""

	var authErr *AuthError
	var conflict *ConflictError
	var validation *ValidationError
	switch {
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
		reason = string(authErr.Reason)
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.Is(err, ErrInvalidToken):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidSession):
		status = http.StatusUnauthorized
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"error": err.Error()}
	if reason != "" {
		body["reason"] = reason
	}
	json.NewEncoder(w).Encode(body)
}
