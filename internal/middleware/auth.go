package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/kgdatatech/securestack/internal/model"
	"github.com/kgdatatech/securestack/internal/token"
)

// Cookie names shared with the handlers.
const (
	CookieAccess  = "jwt"
	CookieRefresh = "refreshToken"
	CookieTemp    = "tempJwt"
	CookieCSRF    = "XSRF-TOKEN"
	CookieSession = "sid"
)

// UserLoader resolves a user id to an account.
type UserLoader interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// SessionResolver resolves a session id to a user id.
type SessionResolver interface {
	Get(ctx context.Context, sid string) (string, error)
}

// Gate authenticates requests: a server-side session cookie wins,
// then the JWT access cookie. The resolved user lands in the request
// context.
type Gate struct {
	sessions SessionResolver
	codec    *token.Codec
	users    UserLoader
}

func NewGate(sessions SessionResolver, codec *token.Codec, users UserLoader) *Gate {
	return &Gate{sessions: sessions, codec: codec, users: users}
}

// RequireAuth rejects requests with no resolvable identity.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, sid := g.resolve(r)
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		u, err := g.users.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, model.ErrUserNotFound) {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx = ContextWithUser(ctx, u)
		if sid != "" {
			ctx = ContextWithSessionID(ctx, sid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolve returns the authenticated user id and, when the identity
// came from a server-side session, its id. A session-store backend
// error falls through to the access cookie so a redis blip does not
// lock out JWT-authenticated callers.
func (g *Gate) resolve(r *http.Request) (userID, sid string) {
	if c, err := r.Cookie(CookieSession); err == nil && c.Value != "" && g.sessions != nil {
		if id, err := g.sessions.Get(r.Context(), c.Value); err == nil {
			return id, c.Value
		}
	}

	if c, err := r.Cookie(CookieAccess); err == nil && c.Value != "" {
		if id, err := g.codec.VerifyAccess(c.Value); err == nil {
			return id, ""
		}
	}

	return "", ""
}

// RequireRoles allows only users whose role is in roles. Must run
// after RequireAuth.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !allowed[u.Role] {
				respondError(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
