package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/youngleee/thesis/internal/auth"
	"github.com/youngleee/thesis/internal/domain/owner"
)

// AccessTokenCookie carries the JWT for browser clients.
const AccessTokenCookie = "access_token"

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// OptionalAuthMiddleware adds user claims to context if token is present, but doesn't require it
func OptionalAuthMiddleware(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := claimsFromRequest(tokens, r); ok {
				r = r.WithContext(context.WithValue(r.Context(), UserContextKey, claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimsFromRequest(tokens *auth.Tokens, r *http.Request) (*auth.Claims, bool) {
	tokenString := ExtractToken(r)
	if tokenString == "" {
		return nil, false
	}
	claims, err := tokens.Validate(tokenString)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// GetUserFromContext retrieves user claims from the request context
func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	return claims, ok
}

// OwnerFromContext returns the cart owner for the request: the signed-in
// user, or the anonymous owner.
func OwnerFromContext(ctx context.Context) owner.Owner {
	if claims, ok := GetUserFromContext(ctx); ok {
		return owner.User(claims.UserID)
	}
	return owner.Anonymous()
}

// ResolveOwner derives the owner straight from a request, for handlers that
// run outside OptionalAuthMiddleware such as the websocket upgrade.
func ResolveOwner(tokens *auth.Tokens) func(*http.Request) owner.Owner {
	return func(r *http.Request) owner.Owner {
		if claims, ok := GetUserFromContext(r.Context()); ok {
			return owner.User(claims.UserID)
		}
		if claims, ok := claimsFromRequest(tokens, r); ok {
			return owner.User(claims.UserID)
		}
		return owner.Anonymous()
	}
}
