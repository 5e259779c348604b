package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kgdatatech/securestack/internal/auth"
	"github.com/kgdatatech/securestack/internal/csrf"
	"github.com/kgdatatech/securestack/internal/mailer"
	"github.com/kgdatatech/securestack/internal/metrics"
	"github.com/kgdatatech/securestack/internal/middleware"
	"github.com/kgdatatech/securestack/internal/model"
	"github.com/kgdatatech/securestack/internal/oauth"
	"github.com/kgdatatech/securestack/internal/password"
	"github.com/kgdatatech/securestack/internal/ratelimit"
	"github.com/kgdatatech/securestack/internal/session"
	"github.com/kgdatatech/securestack/internal/token"
	"github.com/kgdatatech/securestack/internal/totp"
)

// memUserRepo is a minimal in-memory UserRepository for the HTTP
// tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	next  int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*model.User{}}
}

func (r *memUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.users {
		if e.Username == u.Username || e.Email == u.Email {
			return model.ErrUserExists
		}
	}
	if u.ID == "" {
		r.next++
		u.ID = "user-" + strconv.Itoa(r.next)
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) find(match func(*model.User) bool) (*model.User, error) {
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

func (r *memUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r *memUserRepo) GetByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.GoogleID != "" && u.GoogleID == googleID })
}

func (r *memUserRepo) update(id string, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (r *memUserRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (r *memUserRepo) SetVerificationToken(_ context.Context, id, digest string) error {
	return r.update(id, func(u *model.User) { u.VerificationToken = digest })
}

func (r *memUserRepo) ConsumeVerificationToken(_ context.Context, digest string) (*model.User, error) {
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

func (r *memUserRepo) SetResetToken(_ context.Context, id, digest string, expires time.Time) error {
	return r.update(id, func(u *model.User) {
		u.ResetPasswordToken = digest
		u.ResetPasswordExpiry = expires
	})
}

func (r *memUserRepo) GetByResetToken(_ context.Context, digest string) (*model.User, error) {
	return r.find(func(u *model.User) bool {
		return u.ResetPasswordToken != "" && u.ResetPasswordToken == digest
	})
}

func (r *memUserRepo) ResetPassword(_ context.Context, id, hash string) error {
	return r.update(id, func(u *model.User) {
		u.PasswordHash = hash
		u.ResetPasswordToken = ""
		u.ResetPasswordExpiry = time.Time{}
	})
}

func (r *memUserRepo) SetPendingTwoFactorSecret(_ context.Context, id, secret string) error {
	return r.update(id, func(u *model.User) {
		u.TwoFactorSecret = secret
		u.TwoFactorEnabled = false
	})
}

func (r *memUserRepo) EnableTwoFactor(_ context.Context, id string) error {
	return r.update(id, func(u *model.User) { u.TwoFactorEnabled = true })
}

func (r *memUserRepo) DisableTwoFactor(_ context.Context, id string) error {
	return r.update(id, func(u *model.User) {
		u.TwoFactorEnabled = false
		u.TwoFactorSecret = ""
	})
}

// memAnalyticsRepo collects events in memory.
type memAnalyticsRepo struct {
	mu     sync.Mutex
	events []model.AnalyticsEvent
}

func (r *memAnalyticsRepo) Insert(_ context.Context, e *model.AnalyticsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *memAnalyticsRepo) ListRecent(_ context.Context, limit int) ([]model.AnalyticsEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]model.AnalyticsEvent(nil), r.events...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type httpFixture struct {
	router http.Handler
	repo   *memUserRepo
	mail   *capMailer
	svc    *auth.Service
	codec  *token.Codec
	csrf   *csrf.Minter
}

type capMailer struct {
	mu                sync.Mutex
	verificationLinks []string
	resetLinks        []string
}

func (m *capMailer) SendVerificationEmail(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verificationLinks = append(m.verificationLinks, link)
	return nil
}

func (m *capMailer) SendPasswordResetEmail(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLinks = append(m.resetLinks, link)
	return nil
}

func (m *capMailer) SendPasswordResetConfirmation(context.Context, string) error { return nil }
func (m *capMailer) SendNewUserNotification(context.Context, string, string, string) error {
	return nil
}

var _ mailer.Mailer = (*capMailer)(nil)

func newHTTPFixture(t *testing.T, provider oauth.Provider) *httpFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	hasher, err := password.NewHasher(password.Params{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte("access-secret-access-secret-access-secret"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-refresh-sec"),
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		TempTTL:       15 * time.Minute,
	})
	require.NoError(t, err)

	minter, err := csrf.NewMinter([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	repo := newMemUserRepo()
	mail := &capMailer{}
	sessions := session.NewStore(client, 24*time.Hour)

	svc := auth.NewService(
		auth.Config{
			AdminSecret: "admin-secret",
			ClientURL:   "https://app.example.com",
		},
		repo,
		hasher,
		totp.NewEngine("securestack-test"),
		sessions,
		ratelimit.NewLoginThrottle(client, 10, 15*time.Minute),
		nil,
		mail,
		log,
	)

	cfg := Config{
		AccessTTL:    24 * time.Hour,
		RefreshTTL:   7 * 24 * time.Hour,
		TempTTL:      15 * time.Minute,
		SessionTTL:   24 * time.Hour,
		CookieSecure: true,
		ClientURL:    "https://app.example.com",
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	authH := NewAuthHandler(cfg, svc, codec, minter, collector, log)
	oauthH := NewOAuthHandler(cfg, svc, provider, authH)
	adminH := NewAdminHandler(&memAnalyticsRepo{}, log)
	gate := middleware.NewGate(sessions, codec, svc)

	router := NewRouter(RouterDeps{
		Auth:                authH,
		OAuth:               oauthH,
		Admin:               adminH,
		Gate:                gate,
		CSRF:                minter,
		Metrics:             collector,
		Log:                 log,
		CORSAllowedOrigin:   "https://app.example.com",
		TrustedEmailDomains: []string{"gmail.com", "example.com", ".edu"},
		Gatherer:            reg,
	})

	return &httpFixture{router: router, repo: repo, mail: mail, svc: svc, codec: codec, csrf: minter}
}

func (f *httpFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func jsonReq(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// register creates an account over HTTP and returns the response.
func (f *httpFixture) register(t *testing.T, username, email, pass string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":%q,"password":%q,"name":"Test"}`, username, email, pass)
	return f.do(jsonReq(http.MethodPost, "/auth/register", body))
}

// login performs a password login and returns the response.
func (f *httpFixture) login(t *testing.T, email, pass string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, pass)
	return f.do(jsonReq(http.MethodPost, "/auth/login", body))
}

// totpCode mirrors the code an authenticator app would display.
func totpCode(t *testing.T, secretBase32 string) string {
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
