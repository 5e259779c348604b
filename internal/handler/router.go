package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kgdatatech/securestack/internal/csrf"
	"github.com/kgdatatech/securestack/internal/metrics"
	"github.com/kgdatatech/securestack/internal/middleware"
	"github.com/kgdatatech/securestack/internal/model"
	"github.com/kgdatatech/securestack/internal/ratelimit"
)

// RouterDeps bundles everything the router mounts.
type RouterDeps struct {
	Auth    *AuthHandler
	OAuth   *OAuthHandler
	Admin   *AdminHandler
	Gate    *middleware.Gate
	CSRF    *csrf.Minter
	Metrics *metrics.Collector
	IPLimit *ratelimit.IPLimiter

	Log                 *slog.Logger
	CORSAllowedOrigin   string
	TrustedEmailDomains []string
	Gatherer            prometheus.Gatherer
}

// NewRouter wires the full HTTP surface.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.RequestLogger(deps.Log, deps.Metrics))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(deps.CORSAllowedOrigin))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	r.Route("/auth", func(r chi.Router) {
		if deps.IPLimit != nil {
			r.Use(middleware.RateLimit(deps.IPLimit))
		}

		csrfGuard := middleware.CSRFGuard(deps.CSRF, deps.Metrics)

		// Public, no CSRF: these establish the session that CSRF
		// protects.
		r.With(middleware.TrustedEmailDomain(deps.TrustedEmailDomains)).
			Post("/register", deps.Auth.Register)
		r.Post("/login", deps.Auth.Login)

		r.Get("/google", deps.OAuth.Start)
		r.Get("/google/callback", deps.OAuth.Callback)

		r.Get("/verify-email", deps.Auth.VerifyEmail)
		r.Post("/request-reset-password", deps.Auth.RequestResetPassword)
		r.Post("/reset-password", deps.Auth.ResetPassword)

		// CSRF-guarded mutations on established sessions.
		r.With(csrfGuard).Post("/refresh-token", deps.Auth.Refresh)
		r.With(csrfGuard).Post("/logout", deps.Auth.Logout)

		// Authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(deps.Gate.RequireAuth)

			r.Get("/verify", deps.Auth.Verify)
			r.Get("/dashboard", deps.Auth.Dashboard)

			r.With(csrfGuard).Post("/send-verification", deps.Auth.SendVerification)

			r.Route("/2fa", func(r chi.Router) {
				r.Get("/generate", deps.Auth.GenerateTwoFactor)
				r.With(csrfGuard).Post("/verify", deps.Auth.VerifyTwoFactor)
				r.With(csrfGuard).Post("/disable", deps.Auth.DisableTwoFactor)
			})

			r.With(middleware.RequireRoles(model.RoleAdmin)).
				Get("/admin/analytics", deps.Admin.Analytics)
		})
	})

	return r
}
