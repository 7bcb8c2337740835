package authkit

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// SendEmail allows applications to provide their own email sending
// implementation. Sends are best effort: a failure is reported alongside the
// already-committed registration, never used to unwind it.
type SendEmail interface {
	SendVerificationEmail(to string, username string, verificationLink string) error
}

// ConsoleEmailSender is a development implementation that logs emails to console.
type ConsoleEmailSender struct{}

func (c *ConsoleEmailSender) SendVerificationEmail(to string, username string, verificationLink string) error {
	log.Printf("\n=== EMAIL: Verification ===")
	log.Printf("To: %s", to)
	log.Printf("Subject: Email Verification")
	log.Printf("Body: Welcome %s! Please verify your email by clicking: %s", username, verificationLink)
	log.Printf("===========================\n")
	return nil
}

// SMTPEmailSender sends verification mail through an SMTP relay.
type SMTPEmailSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

func (s *SMTPEmailSender) SendVerificationEmail(to string, username string, verificationLink string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Email Verification\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "<p>Welcome, <strong>%s</strong>!</p>", username)
	b.WriteString("<p>Thank you for registering. Please verify your email by clicking the link below:</p>")
	fmt.Fprintf(&b, `<p><a href="%s">Verify Email</a></p>`, verificationLink)
	b.WriteString("<p>If you did not sign up, please ignore this email.</p>")

	if err := smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, []byte(b.String())); err != nil {
		return &UpstreamError{Op: "smtp send", Err: err}
	}
	return nil
}
