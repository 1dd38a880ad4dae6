// Package middleware provides HTTP middleware for authentication.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// principalKey is the context key for storing the authenticated caller.
const principalKey ContextKey = "principal"

// APIKeyHeader carries a static API key.
const APIKeyHeader = "X-API-Key"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (SubjectGetter, error)
}

// SubjectGetter exposes the caller a token was issued to.
type SubjectGetter interface {
	GetSubject() (string, error)
}

// KeyVerifier checks static API keys.
type KeyVerifier interface {
	VerifyKey(key string) bool
}

// Principal identifies an authenticated caller
type Principal struct {
	Method  string // "api_key" or "bearer"
	Subject string
}

// Auth creates middleware accepting either an X-API-Key header checked by keys or an
// "Authorization: Bearer" token checked by tokens. Either may be nil to disable that method.
// When both are nil every request passes unauthenticated.
func Auth(keys KeyVerifier, tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keys == nil && tokens == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get(APIKeyHeader); key != "" && keys != nil {
				if !keys.VerifyKey(key) {
					unauthorized(w, "invalid API key")
					return
				}
				next.ServeHTTP(w, withPrincipal(r, Principal{Method: "api_key", Subject: "api_key"}))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || tokens == nil {
				unauthorized(w, "missing credentials")
				return
			}

			// Handle case-insensitive "Bearer" prefix
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "malformed authorization header")
				return
			}

			claims, err := tokens.ValidateToken(parts[1])
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}
			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				unauthorized(w, "token has no subject")
				return
			}

			next.ServeHTTP(w, withPrincipal(r, Principal{Method: "bearer", Subject: subject}))
		})
	}
}

func withPrincipal(r *http.Request, p Principal) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalKey, p))
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "unauthorized",
		"message": message,
	})
}

// GetPrincipal extracts the authenticated caller from the request context.
func GetPrincipal(r *http.Request) (Principal, error) {
	p, ok := r.Context().Value(principalKey).(Principal)
	if !ok {
		return Principal{}, fmt.Errorf("principal not found in request context")
	}
	return p, nil
}
