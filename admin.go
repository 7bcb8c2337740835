package authkit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// SessionInfo is one row of the admin panel's session listing.
type SessionInfo struct {
	Token  string `json:"session_id"`
	UserID int64  `json:"id"`
}

// Admin exposes the session inspection/revocation surface and the user
// queries behind the admin panel.
type Admin struct {
	Sessions *Sessions
	Store    UserStore
}

// ListSessions enumerates every live session with its serialized identity.
// Sessions that carry no user id (anonymous carts etc.) are skipped.
func (a *Admin) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	err := a.Sessions.Manager.Iterate(ctx, func(sctx context.Context) error {
		if !a.Sessions.Manager.Exists(sctx, sessionUserIDKey) {
			return nil
		}
		out = append(out, SessionInfo{
			Token:  a.Sessions.Manager.Token(sctx),
			UserID: a.Sessions.Manager.GetInt64(sctx, sessionUserIDKey),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeSession destroys a session by its token. Revoking an unknown token
// is a no-op.
func (a *Admin) RevokeSession(ctx context.Context, token string) error {
	return a.Sessions.Manager.Store.Delete(token)
}

// HandleListSessions serves GET /admin/sessions.
func (a *Admin) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.ListSessions(r.Context())
	if err != nil {
		slog.Error("error fetching sessions", "err", err)
		http.Error(w, `{"error": "Error fetching sessions"}`, http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []SessionInfo{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"sessions": sessions})
}

// HandleRevokeSession serves POST /admin/sessions/{sessionid}/revoke.
func (a *Admin) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["sessionid"]
	if err := a.RevokeSession(r.Context(), token); err != nil {
		slog.Error("error revoking session", "err", err)
		http.Error(w, `{"error": "Error revoking session"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// HandleListUsers serves GET /admin/users with optional ?filter=verified|admins.
func (a *Admin) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	var (
		users []*User
		err   error
	)
	switch r.URL.Query().Get("filter") {
	case "verified":
		users, err = a.Store.ListVerified(r.Context())
	case "admins":
		users, err = a.Store.ListAdmins(r.Context())
	default:
		users, err = a.Store.List(r.Context())
	}
	if err != nil {
		slog.Error("error listing users", "err", err)
		http.Error(w, `{"error": "Error listing users"}`, http.StatusInternalServerError)
		return
	}

	total, err := a.Store.Count(r.Context())
	if err != nil {
		slog.Error("error counting users", "err", err)
		http.Error(w, `{"error": "Error listing users"}`, http.StatusInternalServerError)
		return
	}

	sanitized := make([]*User, 0, len(users))
	for _, u := range users {
		sanitized = append(sanitized, u.Sanitized())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"users": sanitized,
		"total": total,
	})
}
