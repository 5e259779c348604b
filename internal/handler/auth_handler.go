package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kgdatatech/securestack/internal/auth"
	"github.com/kgdatatech/securestack/internal/csrf"
	"github.com/kgdatatech/securestack/internal/middleware"
	"github.com/kgdatatech/securestack/internal/model"
	"github.com/kgdatatech/securestack/internal/token"
)

// Config carries the handler-level settings: cookie attributes, token
// lifetimes and the SPA base URL for redirects and email links.
type Config struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	TempTTL      time.Duration
	SessionTTL   time.Duration
	CookieSecure bool
	CookieDomain string
	ClientURL    string
	Production   bool
}

// MetricsRecorder is the slice of the metrics collector the handlers
// feed. A nil recorder disables collection.
type MetricsRecorder interface {
	RecordLogin(outcome string)
	RecordRegistration()
	RecordTokenRefresh()
}

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	cfg     Config
	svc     *auth.Service
	codec   *token.Codec
	csrf    *csrf.Minter
	metrics MetricsRecorder
	log     *slog.Logger
}

func NewAuthHandler(cfg Config, svc *auth.Service, codec *token.Codec, minter *csrf.Minter, metrics MetricsRecorder, log *slog.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, svc: svc, codec: codec, csrf: minter, metrics: metrics, log: log}
}

func (h *AuthHandler) meta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		IP:       middleware.ClientIP(r),
		Referrer: r.Referer(),
	}
}

// Register creates an account and hands the SPA its first CSRF
// cookie so the follow-up login can pass the guard.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		Name        string `json:"name"`
		Role        string `json:"role"`
		AdminSecret string `json:"adminSecret"`
	}
	if err := decodeJSON(r, &in); err != nil {
		h.respondServiceError(w, err)
		return
	}

	u, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Username:    in.Username,
		Email:       in.Email,
		Password:    in.Password,
		Name:        in.Name,
		Role:        in.Role,
		AdminSecret: in.AdminSecret,
	}, h.meta(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if err := h.issueCSRF(w); err != nil {
		h.respondServiceError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRegistration()
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "user registered successfully",
		"user":    u.Sanitized(),
	})
}

// Login handles password logins and both halves of the 2FA dance. A
// pending login answers 206 with only the short-lived tempJwt cookie;
// the client either re-submits credentials plus a code, or sends just
// the code while holding the tempJwt cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		h.respondServiceError(w, err)
		return
	}

	if in.Password == "" && in.Code != "" {
		h.completePendingLogin(w, r, in.Code)
		return
	}

	res, err := h.svc.Login(r.Context(), auth.LoginInput{
		Email:    in.Email,
		Password: in.Password,
		Code:     in.Code,
	}, h.meta(r))
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLogin("failure")
		}
		h.respondServiceError(w, err)
		return
	}

	if res.TwoFactorPending {
		temp, err := h.codec.MintTemp(res.User.ID)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		h.setTempCookie(w, temp)
		if h.metrics != nil {
			h.metrics.RecordLogin("pending_2fa")
		}
		respondJSON(w, http.StatusPartialContent, map[string]any{
			"message":           "2FA required",
			"twoFactorRequired": true,
		})
		return
	}

	h.finishLogin(w, res.User)
}

// completePendingLogin finishes a 206 login: the tempJwt cookie
// proves the password half, the body carries the TOTP code.
func (h *AuthHandler) completePendingLogin(w http.ResponseWriter, r *http.Request, code string) {
	cookie, err := r.Cookie(middleware.CookieTemp)
	if err != nil || cookie.Value == "" {
		h.respondServiceError(w, model.ErrUnauthenticated)
		return
	}

	userID, err := h.codec.VerifyTemp(cookie.Value)
	if err != nil {
		h.respondServiceError(w, model.ErrUnauthenticated)
		return
	}

	u, err := h.svc.CompleteTwoFactorLogin(r.Context(), userID, code, h.meta(r))
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLogin("failure")
		}
		h.respondServiceError(w, err)
		return
	}

	h.finishLogin(w, u)
}

// finishLogin mints the full cookie set and returns the user.
func (h *AuthHandler) finishLogin(w http.ResponseWriter, u *model.User) {
	access, err := h.codec.MintAccess(u.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	refresh, err := h.codec.MintRefresh(u.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.setAuthCookies(w, access, refresh)
	h.expireCookie(w, middleware.CookieTemp)
	if err := h.issueCSRF(w); err != nil {
		h.respondServiceError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordLogin("success")
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"user":    u.Sanitized(),
	})
}

// Refresh mints a new access cookie off a valid refresh cookie. The
// refresh token itself is not rotated. Per the route contract, a bad
// or missing refresh token is a 403.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.CookieRefresh)
	if err != nil || cookie.Value == "" {
		respondJSON(w, http.StatusForbidden, errorBody{Message: "invalid refresh token"})
		return
	}

	userID, err := h.codec.VerifyRefresh(cookie.Value)
	if err != nil {
		respondJSON(w, http.StatusForbidden, errorBody{Message: "invalid refresh token"})
		return
	}

	if _, err := h.svc.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			respondJSON(w, http.StatusForbidden, errorBody{Message: "invalid refresh token"})
			return
		}
		h.respondServiceError(w, err)
		return
	}

	access, err := h.codec.MintAccess(userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.setCookie(w, middleware.CookieAccess, access, h.cfg.AccessTTL, true)
	if h.metrics != nil {
		h.metrics.RecordTokenRefresh()
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "token refreshed"})
}

// Verify returns the identity behind the current cookies.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.respondServiceError(w, model.ErrUnauthenticated)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": u.Sanitized()})
}

// Dashboard reloads the caller's account from the store.
func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.respondServiceError(w, model.ErrUnauthenticated)
		return
	}

	fresh, err := h.svc.GetUser(r.Context(), u.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": fresh.Sanitized()})
}

// Logout clears every auth cookie and tears down the server-side
// session if one exists. It succeeds regardless of prior state.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var userID, sid string

	if c, err := r.Cookie(middleware.CookieSession); err == nil {
		sid = c.Value
	}
	if c, err := r.Cookie(middleware.CookieAccess); err == nil && c.Value != "" {
		if id, err := h.codec.VerifyAccess(c.Value); err == nil {
			userID = id
		}
	}

	if err := h.svc.Logout(r.Context(), userID, sid, h.meta(r)); err != nil {
		h.log.Warn("logout cleanup failed", "error", err)
	}

	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// SendVerification emails a fresh verification link to the caller.
func (h *AuthHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.respondServiceError(w, model.ErrUnauthenticated)
		return
	}

	if err := h.svc.SendVerificationEmail(r.Context(), u.Email); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "verification email sent"})
}

// VerifyEmail consumes the emailed token.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	rawToken := r.URL.Query().Get("token")
	if _, err := h.svc.VerifyEmail(r.Context(), rawToken, h.meta(r)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "email verified"})
}

// RequestResetPassword starts the reset flow for the given email.
func (h *AuthHandler) RequestResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &in); err != nil {
		h.respondServiceError(w, err)
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), in.Email); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password reset email sent"})
}

// ResetPassword consumes the emailed token and sets a new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		h.respondServiceError(w, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), in.Token, in.Password, h.meta(r)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

// GenerateTwoFactor mints a new pending TOTP secret.
func (h *AuthHandler) GenerateTwoFactor(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.respondServiceError(w, model.ErrUnauthenticated)
		return
	}

	setup, err := h.svc.GenerateTwoFactorSecret(r.Context(), u.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"secret":     setup.Secret,
		"otpauthUrl": setup.ProvisionURI,
	})
}

// VerifyTwoFactor activates 2FA once the user proves they hold the
// secret. An invalid code is a 401 per the route contract.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.respondServiceError(w, model.ErrUnauthenticated)
		return
	}

	var in struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		h.respondServiceError(w, err)
		return
	}

	if err := h.svc.VerifyTwoFactor(r.Context(), u.ID, in.Code); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "2FA enabled"})
}

// DisableTwoFactor turns 2FA off for the caller.
func (h *AuthHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.respondServiceError(w, model.ErrUnauthenticated)
		return
	}

	if err := h.svc.DisableTwoFactor(r.Context(), u.ID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "2FA disabled"})
}

func (h *AuthHandler) issueCSRF(w http.ResponseWriter) error {
	tok, err := h.csrf.Mint()
	if err != nil {
		return err
	}
	h.setCSRFCookie(w, tok)
	return nil
}

func (h *AuthHandler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
