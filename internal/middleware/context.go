// Package middleware holds the HTTP middleware chain: identity
// resolution, role checks, the CSRF guard, rate limiting and the
// ambient request plumbing.
package middleware

import (
	"context"

	"github.com/kgdatatech/securestack/internal/model"
)

type userContextKey struct{}
type sessionContextKey struct{}

// ContextWithUser attaches the resolved user to ctx.
func ContextWithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the user resolved by RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*model.User)
	return u, ok
}

// ContextWithSessionID attaches the server-side session id, when the
// request authenticated through one.
func ContextWithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sid)
}

// SessionIDFromContext returns the session id, if any.
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionContextKey{}).(string)
	return sid
}
