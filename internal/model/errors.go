package model

import "errors"

// Sentinel errors returned by the service layer. Handlers map these to
// HTTP status codes; anything unrecognized is treated as an internal
// error.
var (
	// ErrValidation marks malformed or incomplete client input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials is returned for unknown emails and wrong
	// passwords alike so responses do not reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTwoFactorInvalid is returned when a supplied TOTP code does
	// not verify against the stored secret.
	ErrTwoFactorInvalid = errors.New("invalid 2FA token")

	// ErrTwoFactorNotEnabled is returned for 2FA operations on
	// accounts without an active or pending secret.
	ErrTwoFactorNotEnabled = errors.New("2FA is not enabled")

	// ErrUnauthenticated marks requests with no usable identity:
	// missing, expired or malformed access token and no session.
	ErrUnauthenticated = errors.New("unauthorized")

	// ErrForbidden marks authenticated requests that lack the role or
	// secret required for the operation.
	ErrForbidden = errors.New("access denied")

	// ErrCSRF marks a missing or mismatched CSRF token.
	ErrCSRF = errors.New("invalid CSRF token")

	// ErrUserExists is returned when a registration collides with an
	// existing username or email.
	ErrUserExists = errors.New("username already exists")

	// ErrUserNotFound is returned when a lookup target does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenInvalid covers unusable one-time tokens: unknown digest,
	// already consumed, or past expiry.
	ErrTokenInvalid = errors.New("invalid or expired token")

	// ErrEmailNotAllowed is returned when a registration email's
	// domain is not on the provider allow-list.
	ErrEmailNotAllowed = errors.New("email provider is not allowed")

	// ErrTooManyAttempts is returned when the login throttle trips.
	ErrTooManyAttempts = errors.New("too many login attempts, try again later")

	// ErrAlreadyVerified is returned when verification is requested
	// for an account that is already verified.
	ErrAlreadyVerified = errors.New("user is already verified")
)
