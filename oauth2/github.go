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
	"golang.org/x/oauth2/github"

	"github.com/praneshk/authkit"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the URL to fetch user info from. Defaults to GitHub's
	// API. Can be overridden for testing.
	UserInfoURL string
}

func NewGithubOAuth2(clientId string, clientSecret string, callbackUrl string, handleProfile HandleProfileFunc) *GithubOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CALLBACK_URL"))
	}

	out := GithubOAuth2{
		BaseOAuth2:  newBaseOAuth2(clientId, clientSecret, callbackUrl, handleProfile),
		UserInfoURL: "https://api.github.com/user",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = github.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{
		"read:user", "user:email",
	}

	out.mux.HandleFunc("/callback", out.handleCallback)

	return &out
}

func (g *GithubOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
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
		slog.Info("error fetching github profile", "err", err)
		http.Redirect(w, r, g.getFailureUrl(), http.StatusTemporaryRedirect)
		return
	}

	g.HandleProfile("github", token, profile, w, r)
}

func (g *GithubOAuth2) getUserProfile(token *oauth2.Token) (authkit.Profile, error) {
	var profile authkit.Profile

	req, err := http.NewRequest("GET", g.UserInfoURL, nil)
	if err != nil {
		return profile, fmt.Errorf("failed to create request: %s", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := g.getHTTPClient().Do(req)
	if err != nil {
		return profile, fmt.Errorf("failed getting user info from github: %s", err.Error())
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return profile, fmt.Errorf("failed read response: %s", err.Error())
	}

	var userInfo struct {
		ID    json.Number `json:"id"`
		Login string      `json:"login"`
		Name  string      `json:"name"`
		Email string      `json:"email"`
	}
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return profile, fmt.Errorf("failed to parse user info: %s", err.Error())
	}
	if userInfo.ID.String() == "" {
		return profile, fmt.Errorf("github profile has no id")
	}

	profile = authkit.Profile{
		Provider: "github",
		ID:       userInfo.ID.String(),
		Username: userInfo.Login,
		Name:     userInfo.Name,
		Email:    userInfo.Email,
	}
	return profile, nil
}
