package auth

import (
	"context"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

type actorKey struct{}

func ContextWithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}
