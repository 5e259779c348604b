package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kgdatatech/securestack/internal/model"
)

const pgUniqueViolation = "23505"

const userColumns = `id, username, email, name, role, password_hash, google_id,
	is_verified, verification_token, reset_password_token, reset_password_expires,
	two_factor_enabled, two_factor_secret,
	subscription_status, subscription_tier, payment_status,
	created_at, updated_at`

// PostgresUserRepository stores users in the users table.
type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

var _ UserRepository = (*PostgresUserRepository)(nil)

// Create inserts a new user. A missing ID is filled in with a fresh
// UUID. Unique violations on username, email or google_id surface as
// model.ErrUserExists.
func (r *PostgresUserRepository) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `INSERT INTO users (
		id, username, email, name, role, password_hash, google_id,
		is_verified, verification_token,
		two_factor_enabled, two_factor_secret,
		subscription_status, subscription_tier, payment_status,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Username, u.Email, u.Name, u.Role,
		nullString(u.PasswordHash), nullString(u.GoogleID),
		u.IsVerified, nullString(u.VerificationToken),
		u.TwoFactorEnabled, nullString(u.TwoFactorSecret),
		defaultString(u.SubscriptionStatus, "none"),
		defaultString(u.SubscriptionTier, "none"),
		defaultString(u.PaymentStatus, "none"),
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return model.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *PostgresUserRepository) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.getBy(ctx, "google_id", googleID)
}

func (r *PostgresUserRepository) getBy(ctx context.Context, column, value string) (*model.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s = $1", userColumns, column)
	u, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return u, nil
}

func (r *PostgresUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, hash)
}

func (r *PostgresUserRepository) SetVerificationToken(ctx context.Context, id, digest string) error {
	return r.exec(ctx,
		`UPDATE users SET verification_token = $2, updated_at = now() WHERE id = $1`,
		id, digest)
}

// ConsumeVerificationToken marks the user holding digest as verified
// and clears the token in one statement, so a token can only be spent
// once. Returns (nil, nil) when no user holds the digest.
func (r *PostgresUserRepository) ConsumeVerificationToken(ctx context.Context, digest string) (*model.User, error) {
	query := fmt.Sprintf(`UPDATE users
		SET is_verified = TRUE, verification_token = NULL, updated_at = now()
		WHERE verification_token = $1
		RETURNING %s`, userColumns)

	u, err := scanUser(r.db.QueryRowContext(ctx, query, digest))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume verification token: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) SetResetToken(ctx context.Context, id, digest string, expires time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET reset_password_token = $2, reset_password_expires = $3, updated_at = now() WHERE id = $1`,
		id, digest, expires.UTC())
}

func (r *PostgresUserRepository) GetByResetToken(ctx context.Context, digest string) (*model.User, error) {
	return r.getBy(ctx, "reset_password_token", digest)
}

// ResetPassword sets the new hash and clears the reset token so the
// link cannot be replayed.
func (r *PostgresUserRepository) ResetPassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $2, reset_password_token = NULL, reset_password_expires = NULL, updated_at = now() WHERE id = $1`,
		id, hash)
}

func (r *PostgresUserRepository) SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_secret = $2, two_factor_enabled = FALSE, updated_at = now() WHERE id = $1`,
		id, secret)
}

func (r *PostgresUserRepository) EnableTwoFactor(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_enabled = TRUE, updated_at = now() WHERE id = $1`,
		id)
}

func (r *PostgresUserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_enabled = FALSE, two_factor_secret = NULL, updated_at = now() WHERE id = $1`,
		id)
}

func (r *PostgresUserRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                             model.User
		passwordHash, googleID        sql.NullString
		verificationToken, resetToken sql.NullString
		resetExpires                  sql.NullTime
		twoFactorSecret               sql.NullString
	)

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Name, &u.Role,
		&passwordHash, &googleID,
		&u.IsVerified, &verificationToken, &resetToken, &resetExpires,
		&u.TwoFactorEnabled, &twoFactorSecret,
		&u.SubscriptionStatus, &u.SubscriptionTier, &u.PaymentStatus,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.PasswordHash = passwordHash.String
	u.GoogleID = googleID.String
	u.VerificationToken = verificationToken.String
	u.ResetPasswordToken = resetToken.String
	if resetExpires.Valid {
		u.ResetPasswordExpiry = resetExpires.Time
	}
	u.TwoFactorSecret = twoFactorSecret.String

	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
