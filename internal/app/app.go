// Package app assembles the service: config, storage, redis, the auth
// engine and the HTTP server, with ordered shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/kgdatatech/securestack/internal/analytics"
	"github.com/kgdatatech/securestack/internal/auth"
	"github.com/kgdatatech/securestack/internal/config"
	"github.com/kgdatatech/securestack/internal/csrf"
	"github.com/kgdatatech/securestack/internal/database"
	"github.com/kgdatatech/securestack/internal/handler"
	"github.com/kgdatatech/securestack/internal/mailer"
	"github.com/kgdatatech/securestack/internal/metrics"
	"github.com/kgdatatech/securestack/internal/middleware"
	"github.com/kgdatatech/securestack/internal/oauth"
	"github.com/kgdatatech/securestack/internal/password"
	"github.com/kgdatatech/securestack/internal/ratelimit"
	"github.com/kgdatatech/securestack/internal/repository"
	"github.com/kgdatatech/securestack/internal/session"
	"github.com/kgdatatech/securestack/internal/token"
	"github.com/kgdatatech/securestack/internal/totp"
)

// App owns the long-lived resources behind the HTTP server.
type App struct {
	cfg        *config.Config
	log        *slog.Logger
	server     *http.Server
	redis      *redis.Client
	db         *sql.DB
	dispatcher *analytics.Dispatcher
	ipLimiter  *ratelimit.IPLimiter
}

// New builds the full dependency graph from the configuration. It
// connects to Postgres and redis and runs pending migrations.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		TempTTL:       cfg.TempTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	minter, err := csrf.NewMinter([]byte(cfg.CSRFSecret))
	if err != nil {
		return nil, fmt.Errorf("csrf: %w", err)
	}

	users := repository.NewPostgresUserRepository(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepository(db)
	dispatcher := analytics.NewDispatcher(analytics.Config{}, analyticsRepo, log)

	sessions := session.NewStore(redisClient, cfg.SessionTTL)
	throttle := ratelimit.NewLoginThrottle(redisClient, cfg.LoginMaxAttempts, cfg.LoginWindow)

	var mail mailer.Mailer = mailer.Noop{}
	if cfg.SMTPHost != "" {
		smtp, err := mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
		mail = smtp
	} else {
		log.Warn("SMTP not configured, transactional emails disabled")
	}

	svc := auth.NewService(
		auth.Config{
			AdminSecret: cfg.AdminSecret,
			AdminEmail:  cfg.AdminEmail,
			ClientURL:   cfg.ClientURL,
		},
		users,
		hasher,
		totp.NewEngine("securestack"),
		sessions,
		throttle,
		dispatcher,
		mail,
		log,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(registry)

	handlerCfg := handler.Config{
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		TempTTL:      cfg.TempTokenTTL,
		SessionTTL:   cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
		ClientURL:    cfg.ClientURL,
		Production:   cfg.Production,
	}

	authH := handler.NewAuthHandler(handlerCfg, svc, codec, minter, collector, log)
	provider := oauth.NewGoogleProvider(oauth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	oauthH := handler.NewOAuthHandler(handlerCfg, svc, provider, authH)
	adminH := handler.NewAdminHandler(analyticsRepo, log)
	gate := middleware.NewGate(sessions, codec, svc)
	ipLimiter := ratelimit.NewIPLimiter(cfg.RateLimitPerMinute)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:                authH,
		OAuth:               oauthH,
		Admin:               adminH,
		Gate:                gate,
		CSRF:                minter,
		Metrics:             collector,
		IPLimit:             ipLimiter,
		Log:                 log,
		CORSAllowedOrigin:   cfg.CORSAllowedOrigin,
		TrustedEmailDomains: cfg.TrustedEmailDomains,
		Gatherer:            registry,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return &App{
		cfg:        cfg,
		log:        log,
		server:     server,
		redis:      redisClient,
		db:         db,
		dispatcher: dispatcher,
		ipLimiter:  ipLimiter,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down in
// dependency order: server first, then the analytics dispatcher, then
// the stores.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.closeResources()
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := a.server.Shutdown(shutdownCtx)

	a.closeResources()
	return err
}

func (a *App) closeResources() {
	a.dispatcher.Close()
	a.ipLimiter.Close()
	if err := a.redis.Close(); err != nil {
		a.log.Warn("redis close", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("database close", "error", err)
	}
}
