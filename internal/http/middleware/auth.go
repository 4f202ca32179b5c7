package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const ownerIDContextKey contextKey = "owner_id"

// Auth requires an HMAC-signed bearer JWT whose subject is the owner id.
// Paths listed in public skip the check.
func Auth(secret string, public ...string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range public {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}

			ownerID, ok := ownerFromToken(bearerToken(r), key)
			if !ok {
				writeEnvelope(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDContextKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ownerFromToken(token string, key []byte) (string, bool) {
	if token == "" || len(key) == 0 {
		return "", false
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return key, nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", false
	}
	return subject, true
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	authorization := r.Header.Get("Authorization")
	if !strings.HasPrefix(authorization, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
}

// GetOwnerID returns the authenticated owner, or "" outside Auth.
func GetOwnerID(ctx context.Context) string {
	value, _ := ctx.Value(ownerIDContextKey).(string)
	return value
}

// WithOwnerID is used by tests and internal callers that bypass Auth.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDContextKey, ownerID)
}
