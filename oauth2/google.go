package oauth2

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/praneshk/authkit"
)

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL defaults to Google's v2 userinfo endpoint. Can be
	// overridden for testing.
	UserInfoURL string
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string, handleProfile HandleProfileFunc) *GoogleOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL"))
	}

	out := GoogleOAuth2{
		BaseOAuth2:  newBaseOAuth2(clientId, clientSecret, callbackUrl, handleProfile),
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = google.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}

	out.mux.HandleFunc("/callback", out.handleCallback)

	return &out
}

func (g *GoogleOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !checkState(w, r) {
		return
	}

	code := r.FormValue("code")
	token, err := g.oauthConfig.Exchange(g.ExchangeContext(), code)
	if err != nil {
		slog.Info("invalid code exchange", "err", err)
		http.Redirect(w, r, g.getFailureUrl(), http.StatusTemporaryRedirect)
		return
	}

	profile, err := g.getUserProfile(token)
	if err != nil {
		slog.Info("error fetching google profile", "err", err)
		http.Redirect(w, r, g.getFailureUrl(), http.StatusTemporaryRedirect)
		return
	}

	g.HandleProfile("google", token, profile, w, r)
}

func (g *GoogleOAuth2) getUserProfile(token *oauth2.Token) (authkit.Profile, error) {
	var profile authkit.Profile

	req, err := http.NewRequest("GET", g.UserInfoURL+"?access_token="+token.AccessToken, nil)
	if err != nil {
		return profile, fmt.Errorf("failed to create request: %s", err.Error())
	}

	response, err := g.getHTTPClient().Do(req)
	if err != nil {
		return profile, fmt.Errorf("failed getting user info: %s", err.Error())
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return profile, fmt.Errorf("failed read response: %s", err.Error())
	}

	var userInfo struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return profile, fmt.Errorf("failed to parse user info: %s", err.Error())
	}
	if userInfo.ID == "" {
		return profile, fmt.Errorf("google profile has no id")
	}

	profile = authkit.Profile{
		Provider: "google",
		ID:       userInfo.ID,
		Name:     userInfo.Name,
		Email:    userInfo.Email,
	}
	return profile, nil
}
