package handler

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/kgdatatech/securestack/internal/auth"
	"github.com/kgdatatech/securestack/internal/oauth"
)

const oauthStateCookie = "oauth_state"

// OAuthHandler serves the Google login bridge.
type OAuthHandler struct {
	cfg      Config
	svc      *auth.Service
	provider oauth.Provider
	authH    *AuthHandler
}

func NewOAuthHandler(cfg Config, svc *auth.Service, provider oauth.Provider, authH *AuthHandler) *OAuthHandler {
	return &OAuthHandler{cfg: cfg, svc: svc, provider: provider, authH: authH}
}

// Start sets the state cookie and bounces the browser to Google. The
// state cookie is SameSite=Lax so it survives the cross-site redirect
// back from the consent screen.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.LoginURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the flow: verify state, exchange the code, find
// or create the account, and hand the SPA a session cookie plus the
// regular token pair. Any failure lands back on the login page with
// no cookies issued.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	fail := func() {
		http.Redirect(w, r, h.cfg.ClientURL+"/login", http.StatusTemporaryRedirect)
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		fail()
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		fail()
		return
	}

	info, err := h.provider.ExchangeCode(r.Context(), code)
	if err != nil {
		fail()
		return
	}

	u, sid, err := h.svc.HandleOAuthLogin(r.Context(), info, h.authH.meta(r))
	if err != nil {
		fail()
		return
	}

	access, err := h.authH.codec.MintAccess(u.ID)
	if err != nil {
		fail()
		return
	}
	refresh, err := h.authH.codec.MintRefresh(u.ID)
	if err != nil {
		fail()
		return
	}

	h.authH.setSessionCookie(w, sid)
	h.authH.setAuthCookies(w, access, refresh)
	if err := h.authH.issueCSRF(w); err != nil {
		fail()
		return
	}

	// The state cookie is spent.
	http.SetCookie(w, &http.Cookie{
		Name: oauthStateCookie, Value: "", Path: "/auth/google", MaxAge: -1,
		Secure: h.cfg.CookieSecure, HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.cfg.ClientURL+"/dashboard", http.StatusTemporaryRedirect)
}

func newState() (string, error) {
	var raw [16]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
