// Package repository implements Postgres persistence for users and
// analytics events.
package repository

import (
	"context"
	"time"

	"github.com/kgdatatech/securestack/internal/model"
)

// UserRepository is the persistence surface the auth service needs.
// Lookup methods return (nil, nil) when no row matches.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	UpdatePasswordHash(ctx context.Context, id, hash string) error

	SetVerificationToken(ctx context.Context, id, digest string) error
	ConsumeVerificationToken(ctx context.Context, digest string) (*model.User, error)

	SetResetToken(ctx context.Context, id, digest string, expires time.Time) error
	GetByResetToken(ctx context.Context, digest string) (*model.User, error)
	ResetPassword(ctx context.Context, id, hash string) error

	SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error
	EnableTwoFactor(ctx context.Context, id string) error
	DisableTwoFactor(ctx context.Context, id string) error
}
