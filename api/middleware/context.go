package middleware

import (
	"context"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
)

type contextKey string

const (
	ctxIdentityID contextKey = "identity_id"
	ctxAccessID   contextKey = "access_id"
	ctxActor      contextKey = "actor"
)

func IdentityIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(ctxIdentityID).(int64); ok {
		return v
	}
	return 0
}

// AccessIDFromContext returns the jti of the presented access token.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext returns the actor loaded by Auth. ok is false on
// unauthenticated routes.
func ActorFromContext(ctx context.Context) (authz.Actor, bool) {
	if ctx == nil {
		return authz.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(authz.Actor)
	return actor, ok
}

// WithActor injects an actor into the context. Used by Auth and by tests.
func WithActor(ctx context.Context, actor authz.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxIdentityID, actor.IdentityID)
	return context.WithValue(ctx, ctxActor, actor)
}

func withAccessID(ctx context.Context, accessID string) context.Context {
	return context.WithValue(ctx, ctxAccessID, accessID)
}
