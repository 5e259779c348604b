package auth

import (
	"context"
	"strings"

	"github.com/kgdatatech/securestack/internal/model"
)

// SendVerificationEmail mints a one-time verification token for the
// account, stores its digest and mails the plaintext link. The raw
// token never touches the database.
func (s *Service) SendVerificationEmail(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}
	if u == nil {
		return model.ErrUserNotFound
	}
	if u.IsVerified {
		return model.ErrAlreadyVerified
	}

	raw, digest, err := newOneTimeToken()
	if err != nil {
		return err
	}
	if err := s.users.SetVerificationToken(ctx, u.ID, digest); err != nil {
		return err
	}

	link := s.cfg.ClientURL + "/verify-email?token=" + raw
	return s.mail.SendVerificationEmail(ctx, u.Email, link)
}

// VerifyEmail consumes a verification token. The digest lookup and
// the verified flip happen in one statement, so a token spends once.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string, meta RequestMeta) (*model.User, error) {
	if rawToken == "" {
		return nil, model.ErrTokenInvalid
	}

	u, err := s.users.ConsumeVerificationToken(ctx, digestToken(rawToken))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, model.ErrTokenInvalid
	}

	s.recorder.Record(model.AnalyticsEvent{
		Type: model.EventVerification, UserID: u.ID, IP: meta.IP,
		Referrer: meta.Referrer, Status: model.EventSuccess,
	})
	return u, nil
}
