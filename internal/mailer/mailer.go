// Package mailer sends the transactional auth emails over SMTP.
package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// Mailer is the sending surface used by the auth flows. Sends are
// best effort: callers log failures but never fail the triggering
// request because of one.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, link string) error
	SendPasswordResetEmail(ctx context.Context, to, link string) error
	SendPasswordResetConfirmation(ctx context.Context, to string) error
	SendNewUserNotification(ctx context.Context, adminEmail, username, email string) error
}

// Noop discards every email. Used in tests and when SMTP is not
// configured.
type Noop struct{}

func (Noop) SendVerificationEmail(context.Context, string, string) error       { return nil }
func (Noop) SendPasswordResetEmail(context.Context, string, string) error      { return nil }
func (Noop) SendPasswordResetConfirmation(context.Context, string) error       { return nil }
func (Noop) SendNewUserNotification(context.Context, string, string, string) error {
	return nil
}

// SMTPConfig configures the SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP sends mail through one SMTP server.
type SMTP struct {
	client *mail.Client
	from   string
}

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTP{client: client, from: cfg.From}, nil
}

var _ Mailer = (*SMTP)(nil)

func (s *SMTP) SendVerificationEmail(ctx context.Context, to, link string) error {
	body := fmt.Sprintf(`<h1>Email Verification</h1>
<p>Thank you for registering. Please verify your email address to activate your account.</p>
<p><a href="%s">Verify Email</a></p>
<p>If you did not create an account, you can safely ignore this email.</p>`, link)
	return s.send(ctx, to, "Verify your email", body)
}

func (s *SMTP) SendPasswordResetEmail(ctx context.Context, to, link string) error {
	body := fmt.Sprintf(`<h1>Password Reset</h1>
<p>You requested a password reset. The link below is valid for one hour.</p>
<p><a href="%s">Reset Password</a></p>
<p>If you did not request a reset, you can safely ignore this email.</p>`, link)
	return s.send(ctx, to, "Reset your password", body)
}

func (s *SMTP) SendPasswordResetConfirmation(ctx context.Context, to string) error {
	body := `<h1>Password Changed</h1>
<p>Your password was just changed. If this was not you, reset your password immediately and contact support.</p>`
	return s.send(ctx, to, "Your password was changed", body)
}

func (s *SMTP) SendNewUserNotification(ctx context.Context, adminEmail, username, email string) error {
	body := fmt.Sprintf(`<h1>New User Registered</h1>
<p>Username: %s</p>
<p>Email: %s</p>`, username, email)
	return s.send(ctx, adminEmail, "New user registration", body)
}

func (s *SMTP) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
