// Package oauth2 provides the Google and GitHub authorization-code flows
// for authkit. Each provider is an http.Handler serving the redirect at "/"
// and the exchange at "/callback", meant to be mounted with
// authkit.Auth.AddProvider.
package oauth2

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/praneshk/authkit"
)

// HandleProfileFunc receives the normalized provider profile after a
// successful code exchange. authkit.Auth.HandleOAuthProfile satisfies it.
type HandleProfileFunc func(provider string, token *oauth2.Token, profile authkit.Profile, w http.ResponseWriter, r *http.Request)

type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// HandleProfile is called with the fetched profile on success.
	HandleProfile HandleProfileFunc

	// AuthFailureUrl is where callback failures redirect. Defaults to "/".
	AuthFailureUrl string

	oauthConfig oauth2.Config
	mux         *http.ServeMux

	// httpClient is injectable for tests.
	httpClient *http.Client
}

func newBaseOAuth2(clientId, clientSecret, callbackUrl string, handleProfile HandleProfileFunc) *BaseOAuth2 {
	out := &BaseOAuth2{
		ClientId:      clientId,
		ClientSecret:  clientSecret,
		CallbackURL:   callbackUrl,
		HandleProfile: handleProfile,
		mux:           http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	out.mux.HandleFunc("/", OauthRedirector(&out.oauthConfig))
	return out
}

func (b *BaseOAuth2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.httpClient != nil {
		return b.httpClient
	}
	return http.DefaultClient
}

func (b *BaseOAuth2) getFailureUrl() string {
	if b.AuthFailureUrl != "" {
		return b.AuthFailureUrl
	}
	return "/"
}

// ExchangeContext returns the context used for the code exchange.
func (b *BaseOAuth2) ExchangeContext() context.Context {
	if b.httpClient != nil {
		return context.WithValue(context.Background(), oauth2.HTTPClient, b.httpClient)
	}
	return context.Background()
}
