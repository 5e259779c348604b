package handler

import (
	"net/http"
	"time"

	"github.com/kgdatatech/securestack/internal/middleware"
)

// setAuthCookies installs the jwt/refreshToken pair after a full
// login. Both are HttpOnly; SameSite=Strict keeps them off
// cross-origin requests entirely.
func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, access, refresh string) {
	h.setCookie(w, middleware.CookieAccess, access, h.cfg.AccessTTL, true)
	h.setCookie(w, middleware.CookieRefresh, refresh, h.cfg.RefreshTTL, true)
}

// setCSRFCookie installs the readable XSRF-TOKEN cookie the SPA
// echoes back in the X-CSRF-Token header.
func (h *AuthHandler) setCSRFCookie(w http.ResponseWriter, token string) {
	h.setCookie(w, middleware.CookieCSRF, token, h.cfg.AccessTTL, false)
}

func (h *AuthHandler) setTempCookie(w http.ResponseWriter, temp string) {
	h.setCookie(w, middleware.CookieTemp, temp, h.cfg.TempTTL, true)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sid string) {
	h.setCookie(w, middleware.CookieSession, sid, h.cfg.SessionTTL, true)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   h.cfg.CookieSecure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuthCookies expires every cookie the auth flows may have set.
func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{
		middleware.CookieAccess,
		middleware.CookieRefresh,
		middleware.CookieTemp,
		middleware.CookieSession,
		middleware.CookieCSRF,
	} {
		httpOnly := name != middleware.CookieCSRF
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   h.cfg.CookieDomain,
			MaxAge:   -1,
			Secure:   h.cfg.CookieSecure,
			HttpOnly: httpOnly,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
