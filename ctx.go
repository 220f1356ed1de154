package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var identityCtxKey = &contextKey{"identity"}
var profileCtxKey = &contextKey{"profile"}

type contextKey struct {
	name string
}

// WithIdentityContext sets the Identity in the given context
func WithIdentityContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*Identity)
	return raw, ok
}

// WithProfileContext sets the UserProfile in the given context
func WithProfileContext(ctx context.Context, profile *UserProfile) context.Context {
	return context.WithValue(ctx, profileCtxKey, profile)
}

// ProfileFromContext finds the user profile from the context.
func ProfileFromContext(ctx context.Context) (*UserProfile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*UserProfile)
	return raw, ok
}

// CurrentProfile extracts the profile stashed in router locals by the
// guard middleware, falling back to the request context.
func CurrentProfile(ctx router.Context) (*UserProfile, bool) {
	if raw := ctx.Locals(TemplateUserKey); raw != nil {
		if profile, ok := raw.(*UserProfile); ok {
			return profile, true
		}
	}
	return ProfileFromContext(ctx.Context())
}
