package domain

import "context"

// Principal is the caller an action runs on behalf of.
type Principal struct {
	Name     string
	Sysadmin bool
}

// Anonymous is used when a request carries no credentials.
var Anonymous = Principal{Name: ""}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored on ctx, or Anonymous.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Anonymous
}
