package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgdatatech/securestack/internal/middleware"
	"github.com/kgdatatech/securestack/internal/oauth"
)

// stubProvider skips the network: any non-failing code maps to a fixed
// Google identity.
type stubProvider struct {
	info    *oauth.UserInfo
	failing bool
}

func (p *stubProvider) LoginURL(state string) string {
	return "https://accounts.google.test/auth?state=" + state
}

func (p *stubProvider) ExchangeCode(_ context.Context, code string) (*oauth.UserInfo, error) {
	if p.failing || code == "bad-code" {
		return nil, errors.New("exchange failed")
	}
	return p.info, nil
}

func TestOAuthStart(t *testing.T) {
	f := newHTTPFixture(t, &stubProvider{})

	rec := f.do(jsonReq(http.MethodGet, "/auth/google", ""))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	state := cookieByName(rec, oauthStateCookie)
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, state.SameSite)
	assert.Equal(t, "/auth/google", state.Path)

	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "accounts.google.test")
	assert.Contains(t, loc, "state="+state.Value)
}

func TestOAuthCallback(t *testing.T) {
	provider := &stubProvider{info: &oauth.UserInfo{
		GoogleID: "g-12345",
		Email:    "alice@gmail.com",
		Name:     "Alice",
	}}
	f := newHTTPFixture(t, provider)

	start := f.do(jsonReq(http.MethodGet, "/auth/google", ""))
	state := cookieByName(start, oauthStateCookie)
	require.NotNil(t, state)

	req := jsonReq(http.MethodGet, "/auth/google/callback?state="+state.Value+"&code=good-code", "")
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state.Value})
	rec := f.do(req)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://app.example.com/dashboard", rec.Header().Get("Location"))

	assert.NotNil(t, cookieByName(rec, middleware.CookieSession))
	assert.NotNil(t, cookieByName(rec, middleware.CookieAccess))
	assert.NotNil(t, cookieByName(rec, middleware.CookieRefresh))
	assert.NotNil(t, cookieByName(rec, middleware.CookieCSRF))

	// Account exists afterwards, verified and passwordless.
	u, err := f.repo.GetByGoogleID(context.Background(), "g-12345")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.IsVerified)
	assert.Empty(t, u.PasswordHash)
}

func TestOAuthCallbackFailures(t *testing.T) {
	provider := &stubProvider{info: &oauth.UserInfo{GoogleID: "g-1", Email: "a@gmail.com"}}
	f := newHTTPFixture(t, provider)

	start := f.do(jsonReq(http.MethodGet, "/auth/google", ""))
	state := cookieByName(start, oauthStateCookie)
	require.NotNil(t, state)

	cases := []struct {
		name        string
		url         string
		withCookie  bool
		cookieValue string
	}{
		{"missing state cookie", "/auth/google/callback?state=" + state.Value + "&code=good", false, ""},
		{"state mismatch", "/auth/google/callback?state=other&code=good", true, state.Value},
		{"missing code", "/auth/google/callback?state=" + state.Value, true, state.Value},
		{"exchange failure", "/auth/google/callback?state=" + state.Value + "&code=bad-code", true, state.Value},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := jsonReq(http.MethodGet, tc.url, "")
			if tc.withCookie {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tc.cookieValue})
			}
			rec := f.do(req)

			require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
			assert.Equal(t, "https://app.example.com/login", rec.Header().Get("Location"))
			assert.Nil(t, cookieByName(rec, middleware.CookieAccess))
			assert.Nil(t, cookieByName(rec, middleware.CookieSession))
		})
	}
}

func TestOAuthCallbackSecondLoginReusesAccount(t *testing.T) {
	provider := &stubProvider{info: &oauth.UserInfo{
		GoogleID: "g-77",
		Email:    "bob@gmail.com",
		Name:     "Bob",
	}}
	f := newHTTPFixture(t, provider)

	callback := func() *http.Cookie {
		start := f.do(jsonReq(http.MethodGet, "/auth/google", ""))
		state := cookieByName(start, oauthStateCookie)
		require.NotNil(t, state)

		req := jsonReq(http.MethodGet, "/auth/google/callback?state="+state.Value+"&code=ok", "")
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state.Value})
		rec := f.do(req)
		require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		return cookieByName(rec, middleware.CookieSession)
	}

	sid1 := callback()
	sid2 := callback()
	require.NotNil(t, sid1)
	require.NotNil(t, sid2)
	assert.NotEqual(t, sid1.Value, sid2.Value)

	f.repo.mu.Lock()
	count := len(f.repo.users)
	f.repo.mu.Unlock()
	assert.Equal(t, 1, count)
}
