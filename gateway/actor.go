package gateway

import "context"

type actorKey struct{}

// WithActor attaches the acting user's email to ctx. Owner-scoped gateways
// use it to reject writes to other users' records.
func WithActor(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, actorKey{}, email)
}

// ActorFromContext returns the acting user's email, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(actorKey{}).(string)
	return email, ok && email != ""
}
