package identity

import (
	"context"

	"github.com/sharemeal/sharemeal-go/internal/store"
)

type contextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user, or nil if absent.
func UserFromContext(ctx context.Context) *store.User {
	user, _ := ctx.Value(contextKey{}).(*store.User)
	return user
}
