package shared

import (
	"context"
	"strconv"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ActorFromContext resolves the authenticated caller's user id from the
// request session. Every posting endpoint requires it before any other work.
func ActorFromContext(ctx context.Context) (int64, error) {
	sess := SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return 0, NewError(CodeUnauthenticated, "Login required.")
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return 0, NewError(CodeUnauthenticated, "Login required.")
	}
	return id, nil
}
