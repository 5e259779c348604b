// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full service configuration. It is read once at
// startup and treated as immutable afterwards; secrets are injected
// into the components that need them rather than read ambiently.
type Config struct {
	// Database
	DatabaseURL string

	// Redis (sessions, login throttle)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Token signing
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TempTokenTTL       time.Duration

	// CSRF
	CSRFSecret string

	// Admin registration
	AdminSecret string
	AdminEmail  string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Sessions (OAuth logins)
	SessionTTL time.Duration

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	// Login throttle
	LoginMaxAttempts int
	LoginWindow      time.Duration

	// Rate limit (per-IP, auth routes)
	RateLimitPerMinute int

	// Server
	ServerPort string
	ClientURL  string
	Production bool

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Registration email domain allow-list. Entries starting with a
	// dot are suffix matches (".edu").
	TrustedEmailDomains []string
}

// Load reads the configuration from environment variables. Missing
// required variables are reported together in a single error.
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.AccessTokenSecret = required("ACCESS_TOKEN_SECRET")
	cfg.RefreshTokenSecret = required("REFRESH_TOKEN_SECRET")
	cfg.CSRFSecret = required("CSRF_SECRET")
	cfg.AdminSecret = required("ADMIN_SECRET_KEY")
	cfg.ClientURL = required("CLIENT_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)

	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", 24*time.Hour)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	cfg.TempTokenTTL = getEnvDuration("TEMP_TOKEN_TTL", 15*time.Minute)
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)

	cfg.AdminEmail = os.Getenv("ADMIN_EMAIL")

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = getEnvString("MAIL_FROM", cfg.SMTPUser)

	cfg.LoginMaxAttempts = getEnvInt("LOGIN_MAX_ATTEMPTS", 10)
	cfg.LoginWindow = getEnvDuration("LOGIN_WINDOW", 15*time.Minute)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 60)

	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.Production = os.Getenv("APP_ENV") == "production"
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", true)
	cfg.CookieDomain = os.Getenv("COOKIE_DOMAIN")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.ClientURL)

	if v := os.Getenv("TRUSTED_EMAIL_DOMAINS"); v != "" {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.TrustedEmailDomains = append(cfg.TrustedEmailDomains, strings.ToLower(d))
			}
		}
	} else {
		cfg.TrustedEmailDomains = DefaultTrustedEmailDomains()
	}

	return cfg, nil
}

// DefaultTrustedEmailDomains returns the built-in registration
// allow-list: major mailbox providers, privacy providers, common US
// ISPs and the ".edu" suffix.
func DefaultTrustedEmailDomains() []string {
	return []string{
		// popular
		"gmail.com", "outlook.com", "hotmail.com", "live.com", "msn.com",
		"icloud.com", "me.com", "mac.com", "yahoo.com", "aol.com",
		// privacy
		"protonmail.com", "tutanota.com", "fastmail.com", "hushmail.com",
		// ISPs
		"att.net", "sbcglobal.net", "comcast.net", "verizon.net",
		"charter.net", "twc.com", "cox.net",
		// other
		"zoho.com", "mail.com", "gmx.com",
		// corporate / educational
		"example.com", ".edu",
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
