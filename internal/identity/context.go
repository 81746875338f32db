package identity

import "context"

type identityContextKey struct{}
type deskContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext extracts the authenticated identity from the context.
func FromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	return id.ID, true
}

// ContextWithDesk attaches the verified active desk to the context.
func ContextWithDesk(ctx context.Context, d *Desk) context.Context {
	if d == nil {
		return ctx
	}
	return context.WithValue(ctx, deskContextKey{}, d)
}

// DeskFromContext extracts the verified active desk from the context.
func DeskFromContext(ctx context.Context) (*Desk, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(deskContextKey{}).(*Desk)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
