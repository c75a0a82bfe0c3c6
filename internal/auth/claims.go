package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity carried by a signed session token.
type Claims struct {
	UserID string `json:"uid"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Image  string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// WithClaims attaches verified session claims to the context.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the session claims attached by the route gate, if any.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	if ctx == nil {
		return Claims{}, false
	}
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	if !ok || claims.UserID == "" {
		return Claims{}, false
	}
	return claims, true
}

// UserIDFromContext returns the authenticated user's id or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	claims, _ := ClaimsFromContext(ctx)
	return claims.UserID
}
