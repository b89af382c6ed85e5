package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"restart/internal/adapters/backend"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const principalContextKey contextKey = "principal"

// ErrNoSecret is returned when tokens are verified without a configured secret.
var ErrNoSecret = errors.New("jwt secret is not configured")

// Claims are the access token claims issued by the hosted auth service.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the verified caller of a bearer-authenticated request.
type Principal struct {
	UserID string
	Email  string
	Role   string
	Token  string
}

// ParseToken verifies an HS256 access token and returns its claims.
// PRE: secret is the project JWT secret
// POST: returns an error for bad signatures, other algorithms, expired tokens
// and tokens without a subject
func ParseToken(secret []byte, raw string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Auth returns middleware that verifies a bearer token and stores the caller
// and the raw token in the request context.
// It does NOT block unauthenticated requests; use RequireAuth or RequireAdmin for that.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := ParseToken(secret, raw)
			if err != nil {
				slog.Debug("auth_token_rejected", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			p := Principal{UserID: claims.Subject, Email: claims.Email, Role: claims.Role, Token: raw}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAuth returns middleware that blocks callers without a verified token.
// PRE: Auth ran earlier in the chain
// POST: 401 without a verified token
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetPrincipal(r.Context()); !ok {
			slog.Warn("auth_denied", "path", r.URL.Path, "reason", "no token")
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminChecker confirms administrator rights with the caller's own token.
type AdminChecker interface {
	IsAdmin(ctx context.Context) (bool, error)
}

// RequireAdmin returns middleware that blocks callers the backend does not
// confirm as administrators.
// PRE: Auth ran earlier in the chain
// POST: 401 without a verified token, 403 for non-admins, 502 when the check fails
func RequireAdmin(checker AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				slog.Warn("auth_denied", "path", r.URL.Path, "reason", "no token")
				http.Error(w, "not authenticated", http.StatusUnauthorized)
				return
			}
			isAdmin, err := checker.IsAdmin(r.Context())
			if err != nil {
				slog.Error("auth_check_failed", "path", r.URL.Path, "user_id", p.UserID, "error", err)
				http.Error(w, "admin check failed", http.StatusBadGateway)
				return
			}
			if !isAdmin {
				slog.Warn("auth_denied", "path", r.URL.Path, "user_id", p.UserID, "required", "admin")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the verified caller from the request context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// ContextWithPrincipal stores p and its token for backend calls made with ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, principalContextKey, p)
	return backend.WithAccessToken(ctx, p.Token)
}
