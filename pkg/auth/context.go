package auth

import "context"

// identityContextKey keys the request Identity in a context. An unexported
// struct type cannot collide with keys from other packages.
type identityContextKey struct{}

// WithIdentity stores the caller identity in ctx. Installed by the bearer
// admission middleware once per request.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the caller identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok
}
