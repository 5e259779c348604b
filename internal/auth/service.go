// Package auth implements the account and session flows: register,
// login with optional TOTP, logout, email verification, password
// reset, 2FA lifecycle and the Google OAuth bridge.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/kgdatatech/securestack/internal/analytics"
	"github.com/kgdatatech/securestack/internal/mailer"
	"github.com/kgdatatech/securestack/internal/model"
	"github.com/kgdatatech/securestack/internal/password"
	"github.com/kgdatatech/securestack/internal/ratelimit"
	"github.com/kgdatatech/securestack/internal/repository"
	"github.com/kgdatatech/securestack/internal/session"
	"github.com/kgdatatech/securestack/internal/totp"
)

// Config carries the service-level knobs.
type Config struct {
	AdminSecret string
	AdminEmail  string
	ClientURL   string
}

// RequestMeta is per-request context recorded with analytics events.
type RequestMeta struct {
	IP       string
	Referrer string
}

// Service implements the auth flows on top of the credential store,
// redis and the token/TOTP primitives. All methods are safe for
// concurrent use.
type Service struct {
	cfg      Config
	users    repository.UserRepository
	hasher   *password.Hasher
	totp     *totp.Engine
	sessions *session.Store
	throttle *ratelimit.LoginThrottle
	recorder analytics.Recorder
	mail     mailer.Mailer
	log      *slog.Logger
}

func NewService(
	cfg Config,
	users repository.UserRepository,
	hasher *password.Hasher,
	totpEngine *totp.Engine,
	sessions *session.Store,
	throttle *ratelimit.LoginThrottle,
	recorder analytics.Recorder,
	mail mailer.Mailer,
	log *slog.Logger,
) *Service {
	if recorder == nil {
		recorder = analytics.NoopRecorder{}
	}
	if mail == nil {
		mail = mailer.Noop{}
	}
	return &Service{
		cfg:      cfg,
		users:    users,
		hasher:   hasher,
		totp:     totpEngine,
		sessions: sessions,
		throttle: throttle,
		recorder: recorder,
		mail:     mail,
		log:      log,
	}
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	Name        string
	Role        string
	AdminSecret string
}

// Register creates a new unverified account. Admin accounts require
// the configured admin secret. The admin notification email and the
// signup analytics event are best effort.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", model.ErrValidation)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", model.ErrValidation)
	}

	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role", model.ErrValidation)
	}
	if role == model.RoleAdmin && in.AdminSecret != s.cfg.AdminSecret {
		return nil, model.ErrForbidden
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrValidation, err)
	}

	u := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		Name:         in.Name,
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	if s.cfg.AdminEmail != "" {
		if err := s.mail.SendNewUserNotification(ctx, s.cfg.AdminEmail, u.Username, u.Email); err != nil {
			s.log.Warn("admin notification email failed", "error", err)
		}
	}
	s.recorder.Record(model.AnalyticsEvent{
		Type: model.EventSignup, UserID: u.ID, IP: meta.IP,
		Referrer: meta.Referrer, Status: model.EventSuccess,
	})

	return u, nil
}

// LoginInput is the payload for Login. Code is the optional TOTP code
// for accounts with 2FA enabled.
type LoginInput struct {
	Email    string
	Password string
	Code     string
}

// LoginResult is a successful or partially successful login.
// TwoFactorPending means the password checked out but a TOTP code is
// still required; User is set either way.
type LoginResult struct {
	User             *model.User
	TwoFactorPending bool
}

// Login verifies credentials. Unknown emails and wrong passwords both
// come back as ErrInvalidCredentials. Every failed attempt counts
// against the login throttle and is recorded.
func (s *Service) Login(ctx context.Context, in LoginInput, meta RequestMeta) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", model.ErrValidation)
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, email, meta.IP)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.ErrTooManyAttempts
		}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" {
		s.recordLoginFailure(ctx, email, "", meta, "unknown account")
		return nil, model.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(in.Password, u.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.recordLoginFailure(ctx, email, u.ID, meta, "wrong password")
		return nil, model.ErrInvalidCredentials
	}

	if u.TwoFactorEnabled {
		if in.Code == "" {
			return &LoginResult{User: u, TwoFactorPending: true}, nil
		}
		valid, err := s.totp.Verify(u.TwoFactorSecret, in.Code, time.Now())
		if err != nil {
			return nil, err
		}
		if !valid {
			s.recordLoginFailure(ctx, email, u.ID, meta, "invalid 2fa code")
			return nil, model.ErrTwoFactorInvalid
		}
	}

	s.maybeRehash(ctx, u, in.Password)

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email, meta.IP); err != nil {
			s.log.Warn("login throttle reset failed", "error", err)
		}
	}
	s.recorder.Record(model.AnalyticsEvent{
		Type: model.EventLogin, UserID: u.ID, IP: meta.IP,
		Referrer: meta.Referrer, Status: model.EventSuccess,
	})

	return &LoginResult{User: u}, nil
}

// CompleteTwoFactorLogin finishes a pending login: the caller proved
// password knowledge earlier and now presents a TOTP code.
func (s *Service) CompleteTwoFactorLogin(ctx context.Context, userID, code string, meta RequestMeta) (*model.User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == "" {
		return nil, model.ErrTwoFactorNotEnabled
	}

	valid, err := s.totp.Verify(u.TwoFactorSecret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !valid {
		s.recordLoginFailure(ctx, u.Email, u.ID, meta, "invalid 2fa code")
		return nil, model.ErrTwoFactorInvalid
	}

	s.recorder.Record(model.AnalyticsEvent{
		Type: model.EventLogin, UserID: u.ID, IP: meta.IP,
		Referrer: meta.Referrer, Status: model.EventSuccess,
	})
	return u, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, model.ErrUserNotFound
	}
	return u, nil
}

// Logout tears down the server-side session, if one exists, and
// records the event. Logging out twice is fine.
func (s *Service) Logout(ctx context.Context, userID, sid string, meta RequestMeta) error {
	if sid != "" && s.sessions != nil {
		if err := s.sessions.Delete(ctx, sid); err != nil {
			s.log.Warn("session delete failed", "error", err)
		}
	}
	if userID != "" {
		s.recorder.Record(model.AnalyticsEvent{
			Type: model.EventLogout, UserID: userID, IP: meta.IP,
			Referrer: meta.Referrer, Status: model.EventSuccess,
		})
	}
	return nil
}

func (s *Service) recordLoginFailure(ctx context.Context, email, userID string, meta RequestMeta, reason string) {
	if s.throttle != nil {
		if err := s.throttle.RecordFailure(ctx, email, meta.IP); err != nil {
			s.log.Warn("login throttle update failed", "error", err)
		}
	}
	s.recorder.Record(model.AnalyticsEvent{
		Type: model.EventLogin, UserID: userID, IP: meta.IP,
		Referrer: meta.Referrer, Status: model.EventFailure,
		Details: map[string]string{"reason": reason},
	})
}

// maybeRehash upgrades the stored hash after a successful login when
// the configured argon2 parameters outgrew the stored ones.
func (s *Service) maybeRehash(ctx context.Context, u *model.User, plaintext string) {
	needs, err := s.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, newHash); err != nil {
		s.log.Warn("password rehash failed", "user_id", u.ID, "error", err)
		return
	}
	u.PasswordHash = newHash
}

// newOneTimeToken returns 32 random bytes hex encoded, plus the
// sha256 hex digest that gets stored. Only the digest is persisted.
func newOneTimeToken() (raw, digest string, err error) {
	var buf [32]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf[:])
	return raw, digestToken(raw), nil
}

func digestToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
