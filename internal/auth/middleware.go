package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/palletline/gatehouse/internal/models"
	"github.com/palletline/gatehouse/internal/permissions"
	pkghttp "github.com/palletline/gatehouse/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const claimsContextKey contextKey = "claims"

// ClaimsFromContext returns the validated claims injected by Middleware.
func ClaimsFromContext(ctx context.Context) (*models.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*models.TokenClaims)
	return claims, ok
}

// ContextWithClaims is exposed for handler tests.
func ContextWithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// Middleware validates the bearer token through the Validator, which
// checks revocation after the cryptographic checks, and injects the
// claims into the request context.
func Middleware(validator *Validator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := validator.Validate(r.Context(), tokenString)
			if err != nil {
				switch {
				case errors.Is(err, models.ErrTokenExpired):
					pkghttp.WriteUnauthorized(w, "token has expired")
				case errors.Is(err, models.ErrTokenRevoked):
					pkghttp.WriteUnauthorized(w, "token has been revoked")
				default:
					pkghttp.WriteUnauthorized(w, "invalid token")
				}
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a route on the role table. Must run after
// Middleware.
func RequirePermission(table *permissions.Table, permission string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			if !table.Allows(claims.Role, permission) {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}
