// Command authkit-server is a reference wiring of the authkit components:
// Postgres-backed user store, local login, Google/GitHub OAuth and the admin
// session panel, mounted under /auth.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/smtp"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/praneshk/authkit"
	akoauth2 "github.com/praneshk/authkit/oauth2"
	"github.com/praneshk/authkit/stores/sqlstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on the environment")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost/authkit?sslmode=disable"
	}

	store, err := sqlstore.Open("postgres", dsn)
	if err != nil {
		slog.Error("error connecting to database", "err", err)
		os.Exit(1)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		slog.Error("error ensuring schema", "err", err)
		os.Exit(1)
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	auth := authkit.New("authkit-server", store, store)
	auth.Registrar.BaseURL = baseURL
	auth.Registrar.EmailSender = emailSenderFromEnv()
	auth.Sessions.LoginURL = "/auth/login"

	auth.AddProvider("/google", akoauth2.NewGoogleOAuth2("", "", baseURL+"/auth/google/callback", auth.HandleOAuthProfile))
	auth.AddProvider("/github", akoauth2.NewGithubOAuth2("", "", baseURL+"/auth/github/callback", auth.HandleOAuthProfile))

	mux := http.NewServeMux()
	mux.Handle("/auth/", http.StripPrefix("/auth", auth.Handler()))

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8000"
	}
	slog.Info("listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func emailSenderFromEnv() authkit.SendEmail {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return &authkit.ConsoleEmailSender{}
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	user := os.Getenv("EMAIL_USER")
	pass := os.Getenv("EMAIL_PASS")
	return &authkit.SMTPEmailSender{
		Addr: host + ":" + port,
		From: user,
		Auth: smtp.PlainAuth("", user, pass, host),
	}
}
