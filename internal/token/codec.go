// Package token mints and verifies the service's JWTs: access and
// refresh tokens signed with separate secrets, plus short-lived
// pending-2FA tokens signed with the access secret but carrying a
// purpose claim so they are never accepted as access tokens.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const purposeTwoFactor = "2fa"

var (
	// ErrExpired marks a token whose signature checked out but whose
	// expiry has passed.
	ErrExpired = errors.New("token expired")

	// ErrInvalid covers every other verification failure: bad
	// signature, wrong secret, wrong purpose, malformed input.
	ErrInvalid = errors.New("token invalid")
)

// Config holds the signing material and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	TempTTL       time.Duration
	Issuer        string
}

// Codec mints and verifies tokens. Safe for concurrent use.
type Codec struct {
	cfg Config
}

type claims struct {
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("token secrets must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.TempTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &Codec{cfg: cfg}, nil
}

// MintAccess returns a signed access token for userID.
func (c *Codec) MintAccess(userID string) (string, error) {
	return c.mint(userID, "", c.cfg.AccessTTL, c.cfg.AccessSecret)
}

// MintRefresh returns a signed refresh token for userID.
func (c *Codec) MintRefresh(userID string) (string, error) {
	return c.mint(userID, "", c.cfg.RefreshTTL, c.cfg.RefreshSecret)
}

// MintTemp returns a short-lived pending-2FA token for userID. It is
// signed with the access secret but carries a purpose claim that
// VerifyAccess rejects.
func (c *Codec) MintTemp(userID string) (string, error) {
	return c.mint(userID, purposeTwoFactor, c.cfg.TempTTL, c.cfg.AccessSecret)
}

// VerifyAccess returns the subject userID of a valid access token.
func (c *Codec) VerifyAccess(raw string) (string, error) {
	return c.verify(raw, "", c.cfg.AccessSecret)
}

// VerifyRefresh returns the subject userID of a valid refresh token.
func (c *Codec) VerifyRefresh(raw string) (string, error) {
	return c.verify(raw, "", c.cfg.RefreshSecret)
}

// VerifyTemp returns the subject userID of a valid pending-2FA token.
func (c *Codec) VerifyTemp(raw string) (string, error) {
	return c.verify(raw, purposeTwoFactor, c.cfg.AccessSecret)
}

func (c *Codec) mint(userID, purpose string, ttl time.Duration, secret []byte) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}

	now := time.Now()
	cl := claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(secret)
}

func (c *Codec) verify(raw, purpose string, secret []byte) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	var cl claims
	_, err := parser.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", ErrInvalid
	}

	if cl.Purpose != purpose {
		return "", ErrInvalid
	}
	if cl.Subject == "" {
		return "", ErrInvalid
	}

	return cl.Subject, nil
}
