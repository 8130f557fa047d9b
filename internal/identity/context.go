package identity

import (
	"context"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
)

// Actor is the authenticated caller, set on the request context by the
// transport layer before any core operation runs. Operations never read
// transport headers themselves.
type Actor struct {
	UserID string
	Role   core.Role
}

func (a Actor) IsAdmin() bool { return a.Role == core.RoleAdmin }

type ctxKey struct{}

// WithActor attaches the authenticated caller to the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFrom returns the caller set by the transport, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}

// RequireActor returns the caller or an Unauthenticated error.
func RequireActor(ctx context.Context) (Actor, error) {
	a, ok := ActorFrom(ctx)
	if !ok || a.UserID == "" {
		return Actor{}, apperrors.Unauthenticated()
	}
	return a, nil
}

// RequireAdmin returns the caller only if it carries the admin role.
func RequireAdmin(ctx context.Context) (Actor, error) {
	a, err := RequireActor(ctx)
	if err != nil {
		return Actor{}, err
	}
	if !a.IsAdmin() {
		return Actor{}, apperrors.Forbidden("admin role required")
	}
	return a, nil
}
