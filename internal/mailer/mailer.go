// Package mailer implements auth.Mailer. Delivery is always best-effort from
// the caller's point of view; the auth service logs failures and proceeds.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"go.uber.org/zap"

	"gymgate.io/internal/auth"
)

// NewFromEnv returns an SMTP mailer when SMTP_ADDR is configured, otherwise a
// log-only mailer suitable for development and tests.
func NewFromEnv(lg *zap.SugaredLogger) auth.Mailer {
	addr := strings.TrimSpace(os.Getenv("SMTP_ADDR"))
	if addr == "" {
		return &LogMailer{lg: lg}
	}
	var a smtp.Auth
	if user := os.Getenv("SMTP_USER"); user != "" {
		host := addr
		if i := strings.IndexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		a = smtp.PlainAuth("", user, os.Getenv("SMTP_PASSWORD"), host)
	}
	return &SMTPMailer{
		addr:    addr,
		from:    envDefault("SMTP_FROM", "no-reply@gymgate.io"),
		baseURL: envDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		auth:    a,
	}
}

// SMTPMailer sends plain-text mail through a single SMTP relay.
type SMTPMailer struct {
	addr    string
	from    string
	baseURL string
	auth    smtp.Auth
}

func (m *SMTPMailer) SendVerification(_ context.Context, email, token string) error {
	body := fmt.Sprintf("Confirm your email within 24 hours:\r\n%s/verify-email?token=%s\r\n", m.baseURL, token)
	return m.send(email, "Verify your email", body)
}

func (m *SMTPMailer) SendPasswordReset(_ context.Context, email, token string) error {
	body := fmt.Sprintf("Reset your password within 1 hour:\r\n%s/reset-password?token=%s\r\n", m.baseURL, token)
	return m.send(email, "Password reset", body)
}

func (m *SMTPMailer) SendWelcome(_ context.Context, email, fullName string) error {
	body := fmt.Sprintf("Hi %s,\r\n\r\nYour account is verified and ready to use.\r\n", fullName)
	return m.send(email, "Welcome", body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	return smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg))
}

// LogMailer records outgoing mail instead of delivering it.
type LogMailer struct {
	lg *zap.SugaredLogger
}

func (m *LogMailer) SendVerification(_ context.Context, email, token string) error {
	m.lg.Infow("verification mail (not sent)", "email", email, "token", token)
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.lg.Infow("password reset mail (not sent)", "email", email, "token", token)
	return nil
}

func (m *LogMailer) SendWelcome(_ context.Context, email, fullName string) error {
	m.lg.Infow("welcome mail (not sent)", "email", email, "name", fullName)
	return nil
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
