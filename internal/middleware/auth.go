// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	userKey ctxKey = "user"
	nameKey ctxKey = "name"
)

// ownerClaims are the token claims the service cares about: the owner id
// in the subject plus a display name used for mirror provenance.
type ownerClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Auth is a middleware that enforces bearer-token authentication.
//
// It expects an Authorization header of the form "Bearer <token>" where
// the token is an HS256 JWT signed with secret. On success the subject
// (owner id) and display name are stored in the request context for use
// downstream as the authenticated owner.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || raw == "" {
				// Browser websocket clients cannot set headers on the
				// upgrade request, so accept the token as a query param.
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := &ownerClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid || claims.Subject == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, claims.Subject)
			ctx = context.WithValue(ctx, nameKey, claims.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IssueToken mints a signed token for the given owner. The login surface
// itself lives outside this service; this is the boundary it calls.
func IssueToken(secret []byte, ownerID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ownerClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// GetUserIDFromContext extracts the authenticated owner id from the
// request context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(userKey).(string); ok {
		return s
	}
	return ""
}

// GetUserNameFromContext extracts the owner's display name from the
// request context. Returns an empty string if not found.
func GetUserNameFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(nameKey).(string); ok {
		return s
	}
	return ""
}
