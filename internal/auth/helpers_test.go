package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kgdatatech/securestack/internal/model"
	"github.com/kgdatatech/securestack/internal/password"
	"github.com/kgdatatech/securestack/internal/ratelimit"
	"github.com/kgdatatech/securestack/internal/session"
	"github.com/kgdatatech/securestack/internal/totp"
)

// memoryUserRepo is an in-memory UserRepository for service tests.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	next  int
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: map[string]*model.User{}}
}

func (r *memoryUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return model.ErrUserExists
		}
		if u.GoogleID != "" && existing.GoogleID == u.GoogleID {
			return model.ErrUserExists
		}
	}
	if u.ID == "" {
		r.next++
		u.ID = "user-" + strconv.Itoa(r.next)
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memoryUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *memoryUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r *memoryUserRepo) GetByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.GoogleID != "" && u.GoogleID == googleID })
}

func (r *memoryUserRepo) update(id string, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *memoryUserRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (r *memoryUserRepo) SetVerificationToken(_ context.Context, id, digest string) error {
	return r.update(id, func(u *model.User) { u.VerificationToken = digest })
}

func (r *memoryUserRepo) ConsumeVerificationToken(_ context.Context, digest string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.VerificationToken != "" && u.VerificationToken == digest {
			u.IsVerified = true
			u.VerificationToken = ""
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) SetResetToken(_ context.Context, id, digest string, expires time.Time) error {
	return r.update(id, func(u *model.User) {
		u.ResetPasswordToken = digest
		u.ResetPasswordExpiry = expires
	})
}

func (r *memoryUserRepo) GetByResetToken(_ context.Context, digest string) (*model.User, error) {
	return r.find(func(u *model.User) bool {
		return u.ResetPasswordToken != "" && u.ResetPasswordToken == digest
	})
}

func (r *memoryUserRepo) ResetPassword(_ context.Context, id, hash string) error {
	return r.update(id, func(u *model.User) {
		u.PasswordHash = hash
		u.ResetPasswordToken = ""
		u.ResetPasswordExpiry = time.Time{}
	})
}

func (r *memoryUserRepo) SetPendingTwoFactorSecret(_ context.Context, id, secret string) error {
	return r.update(id, func(u *model.User) {
		u.TwoFactorSecret = secret
		u.TwoFactorEnabled = false
	})
}

func (r *memoryUserRepo) EnableTwoFactor(_ context.Context, id string) error {
	return r.update(id, func(u *model.User) { u.TwoFactorEnabled = true })
}

func (r *memoryUserRepo) DisableTwoFactor(_ context.Context, id string) error {
	return r.update(id, func(u *model.User) {
		u.TwoFactorEnabled = false
		u.TwoFactorSecret = ""
	})
}

// captureMailer remembers every send.
type captureMailer struct {
	mu                sync.Mutex
	verificationLinks []string
	resetLinks        []string
	confirmations     []string
	adminNotices      []string
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verificationLinks = append(m.verificationLinks, link)
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLinks = append(m.resetLinks, link)
	return nil
}

func (m *captureMailer) SendPasswordResetConfirmation(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations = append(m.confirmations, to)
	return nil
}

func (m *captureMailer) SendNewUserNotification(_ context.Context, adminEmail, username, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminNotices = append(m.adminNotices, username)
	return nil
}

// captureRecorder remembers every analytics event.
type captureRecorder struct {
	mu     sync.Mutex
	events []model.AnalyticsEvent
}

func (r *captureRecorder) Record(e model.AnalyticsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *captureRecorder) byType(eventType string) []model.AnalyticsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AnalyticsEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testFixture struct {
	svc      *Service
	repo     *memoryUserRepo
	mail     *captureMailer
	recorder *captureRecorder
	redis    *miniredis.Miniredis
	totp     *totp.Engine
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hasher, err := password.NewHasher(password.Params{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)

	repo := newMemoryUserRepo()
	mail := &captureMailer{}
	recorder := &captureRecorder{}
	engine := totp.NewEngine("securestack-test")

	svc := NewService(
		Config{
			AdminSecret: "admin-secret",
			AdminEmail:  "admin@example.com",
			ClientURL:   "https://app.example.com",
		},
		repo,
		hasher,
		engine,
		session.NewStore(client, time.Hour),
		ratelimit.NewLoginThrottle(client, 5, 15*time.Minute),
		recorder,
		mail,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return &testFixture{svc: svc, repo: repo, mail: mail, recorder: recorder, redis: mr, totp: engine}
}

// currentCode computes the TOTP code for secret at the current time,
// mirroring what an authenticator app would show.
func currentCode(t *testing.T, secretBase32 string) string {
	t.Helper()
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	require.NoError(t, err)

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(time.Now().Unix()/30))
	mac := hmac.New(sha1.New, raw)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)
	return fmt.Sprintf("%06d", bin%1000000)
}

func (f *testFixture) registerUser(t *testing.T, email, pass string) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		Username: email[:len(email)-len("@example.com")],
		Email:    email,
		Password: pass,
	}, RequestMeta{IP: "203.0.113.9"})
	require.NoError(t, err)
	return u
}
