package auditlog

import "context"

type ctxKey int

const (
	actorKey ctxKey = iota
	requestKey
)

// SystemActor is recorded when no authenticated principal is attached to the context.
const SystemActor = "system"

// WithActor attaches the acting principal to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the principal attached to ctx or SystemActor.
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey).(string); ok && v != "" {
		return v
	}
	return SystemActor
}

// WithRequest attaches a request descriptor such as "POST /topup/initiate id=...".
func WithRequest(ctx context.Context, desc string) context.Context {
	return context.WithValue(ctx, requestKey, desc)
}

// RequestFrom returns the request descriptor attached to ctx.
func RequestFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestKey).(string)
	return v
}
