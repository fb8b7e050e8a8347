// Package notify dispatches confirmation and reset emails carrying a signed
// token. The auth flows treat delivery as a side effect: a send failure is
// reported, but never rolls an already-created identity back.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

type Kind string

const (
	KindSignupConfirmation Kind = "signupConfirmation"
	KindPasswordReset      Kind = "resetPasswordConfirmation"
)

// Frontend paths the token link points at, per notification kind.
var links = map[Kind]string{
	KindSignupConfirmation: "auth/confirm-email",
	KindPasswordReset:      "auth/reset-password",
}

var subjects = map[Kind]string{
	KindSignupConfirmation: "Confirm your email",
	KindPasswordReset:      "Reset your password",
}

type Notification struct {
	Kind  Kind
	Email string
	Token string
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Link builds the confirmation URL the recipient follows. The token always
// travels as the `token` query parameter.
func Link(baseURL string, n Notification) string {
	return fmt.Sprintf("%s/%s?token=%s", strings.TrimRight(baseURL, "/"), links[n.Kind], n.Token)
}

// LogSender writes the confirmation link to the log instead of sending mail.
// Used in local and dev environments.
type LogSender struct {
	log     *slog.Logger
	baseURL string
}

func NewLogSender(log *slog.Logger, baseURL string) *LogSender {
	return &LogSender{log: log, baseURL: baseURL}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.log.InfoContext(ctx, "confirmation link issued",
		slog.String("kind", string(n.Kind)),
		slog.String("email", n.Email),
		slog.String("link", Link(s.baseURL, n)),
	)
	return nil
}

// SMTPSender delivers plain-text confirmation mail over SMTP.
type SMTPSender struct {
	addr    string
	from    string
	appName string
	baseURL string
}

func NewSMTPSender(addr, from, appName, baseURL string) *SMTPSender {
	return &SMTPSender{addr: addr, from: from, appName: appName, baseURL: baseURL}
}

func (s *SMTPSender) Send(_ context.Context, n Notification) error {
	const op = "notify.SMTPSender.Send"

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s (%s)\r\n\r\nFollow the link to continue: %s\r\n",
		s.from, n.Email, subjects[n.Kind], s.appName, Link(s.baseURL, n))

	if err := smtp.SendMail(s.addr, nil, s.from, []string{n.Email}, []byte(msg)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
