package httpx

import (
	"context"

	"github.com/TimurCravtov/CraftHub/pkg/jwtx"
)

type claimsKey struct{}

func withClaims(ctx context.Context, c jwtx.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the verified access token claims.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	v, ok := ctx.Value(claimsKey{}).(jwtx.Claims)
	return v, ok
}

// UserIDFromContext returns the authenticated subject set by AuthnMiddleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	return c.Subject, ok && c.Subject != ""
}

func rolesFromCtx(ctx context.Context) []string {
	c, _ := ClaimsFromContext(ctx)
	return c.Roles
}
