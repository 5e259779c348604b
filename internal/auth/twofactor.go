package auth

import (
	"context"
	"time"

	"github.com/kgdatatech/securestack/internal/model"
)

// TwoFactorSetup is returned by GenerateTwoFactorSecret: the base32
// secret and the otpauth URI for authenticator apps.
type TwoFactorSetup struct {
	Secret       string
	ProvisionURI string
}

// GenerateTwoFactorSecret creates a fresh TOTP secret for the user
// and stores it pending. Calling it again overwrites any previous
// pending secret; an already active secret is replaced and 2FA must
// be re-verified before it enforces again.
func (s *Service) GenerateTwoFactorSecret(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := s.users.SetPendingTwoFactorSecret(ctx, u.ID, secret); err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		Secret:       secret,
		ProvisionURI: s.totp.ProvisionURI(secret, u.Email),
	}, nil
}

// VerifyTwoFactor checks a code against the stored secret and, when
// it matches, activates 2FA enforcement for the account.
func (s *Service) VerifyTwoFactor(ctx context.Context, userID, code string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorSecret == "" {
		return model.ErrTwoFactorNotEnabled
	}

	valid, err := s.totp.Verify(u.TwoFactorSecret, code, time.Now())
	if err != nil {
		return err
	}
	if !valid {
		return model.ErrTwoFactorInvalid
	}

	if u.TwoFactorEnabled {
		return nil
	}
	return s.users.EnableTwoFactor(ctx, u.ID)
}

// DisableTwoFactor turns off enforcement and discards the secret.
// Disabling an account that never enabled 2FA succeeds; the operation
// is idempotent.
func (s *Service) DisableTwoFactor(ctx context.Context, userID string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.users.DisableTwoFactor(ctx, u.ID)
}
