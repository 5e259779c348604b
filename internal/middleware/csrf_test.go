package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgdatatech/securestack/internal/csrf"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func newCSRFSetup(t *testing.T) (*csrf.Minter, http.Handler) {
	t.Helper()
	minter, err := csrf.NewMinter([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return minter, CSRFGuard(minter, nil)(okHandler())
}

func TestCSRFGuardAcceptsMatchingPair(t *testing.T) {
	minter, handler := newCSRFSetup(t)

	tok, err := minter.Mint()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: CookieCSRF, Value: tok})
	req.Header.Set(CSRFHeader, tok)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFGuardSkipsSafeMethods(t *testing.T) {
	_, handler := newCSRFSetup(t)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req := httptest.NewRequest(method, "/auth/verify", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}
}

func TestCSRFGuardRejections(t *testing.T) {
	minter, handler := newCSRFSetup(t)

	tok, err := minter.Mint()
	require.NoError(t, err)
	other, err := minter.Mint()
	require.NoError(t, err)

	cases := []struct {
		name   string
		cookie string
		header string
	}{
		{"missing both", "", ""},
		{"missing header", tok, ""},
		{"missing cookie", "", tok},
		{"mismatched pair", tok, other},
		{"forged value", "forged.token", "forged.token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieCSRF, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set(CSRFHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid CSRF token")
		})
	}
}

func TestTrustedEmailDomain(t *testing.T) {
	handler := TrustedEmailDomain([]string{"gmail.com", ".edu"})(okHandler())

	cases := []struct {
		email  string
		status int
	}{
		{"alice@gmail.com", http.StatusOK},
		{"bob@cs.stanford.edu", http.StatusOK},
		{"carol@tempmail.xyz", http.StatusBadRequest},
		{"no-at-sign", http.StatusBadRequest},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/auth/register",
			strings.NewReader(`{"email":"`+tc.email+`","username":"x","password":"y"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, tc.email)
	}
}

func TestTrustedEmailDomainRestoresBody(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
	})
	handler := TrustedEmailDomain([]string{"gmail.com"})(inner)

	body := `{"email":"alice@gmail.com","username":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, body, seen)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:54321"
	assert.Equal(t, "203.0.113.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", ClientIP(req))
}
