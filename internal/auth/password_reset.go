package auth

import (
	"context"
	"strings"
	"time"

	"github.com/kgdatatech/securestack/internal/model"
)

const resetTokenTTL = time.Hour

// RequestPasswordReset mints a reset token valid for one hour, stores
// its digest and expiry, and mails the plaintext link.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}
	if u == nil {
		return model.ErrUserNotFound
	}

	raw, digest, err := newOneTimeToken()
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, u.ID, digest, time.Now().Add(resetTokenTTL)); err != nil {
		return err
	}

	link := s.cfg.ClientURL + "/reset-password?token=" + raw
	return s.mail.SendPasswordResetEmail(ctx, u.Email, link)
}

// ResetPassword consumes a reset token and sets the new password. The
// stored token and expiry are cleared so the link cannot be replayed;
// the confirmation email is best effort.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string, meta RequestMeta) error {
	if rawToken == "" || newPassword == "" {
		return model.ErrValidation
	}

	u, err := s.users.GetByResetToken(ctx, digestToken(rawToken))
	if err != nil {
		return err
	}
	if u == nil || u.ResetPasswordExpiry.IsZero() || time.Now().After(u.ResetPasswordExpiry) {
		return model.ErrTokenInvalid
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return model.ErrValidation
	}
	if err := s.users.ResetPassword(ctx, u.ID, hash); err != nil {
		return err
	}

	if err := s.mail.SendPasswordResetConfirmation(ctx, u.Email); err != nil {
		s.log.Warn("reset confirmation email failed", "error", err)
	}
	s.recorder.Record(model.AnalyticsEvent{
		Type: model.EventPasswordReset, UserID: u.ID, IP: meta.IP,
		Referrer: meta.Referrer, Status: model.EventSuccess,
	})
	return nil
}
