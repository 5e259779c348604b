// Package model holds the domain types and the service error taxonomy.
package model

import "time"

// Roles assignable to an account.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account row. PasswordHash is empty for OAuth-only
// accounts; GoogleID is empty for password accounts. The one-time
// token columns hold sha256 hex digests, never the raw tokens.
type User struct {
	ID           string
	Username     string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	GoogleID     string
	IsVerified   bool

	VerificationToken   string
	ResetPasswordToken  string
	ResetPasswordExpiry time.Time

	TwoFactorEnabled bool
	TwoFactorSecret  string

	SubscriptionStatus string
	SubscriptionTier   string
	PaymentStatus      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sanitized returns the representation safe to serialize in API
// responses: credential and token material stripped.
func (u *User) Sanitized() map[string]any {
	return map[string]any{
		"id":                 u.ID,
		"username":           u.Username,
		"email":              u.Email,
		"name":               u.Name,
		"role":               u.Role,
		"isVerified":         u.IsVerified,
		"twoFactorEnabled":   u.TwoFactorEnabled,
		"subscriptionStatus": u.SubscriptionStatus,
		"subscriptionTier":   u.SubscriptionTier,
		"paymentStatus":      u.PaymentStatus,
		"createdAt":          u.CreatedAt,
	}
}
