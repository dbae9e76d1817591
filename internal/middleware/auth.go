// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/auth"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ClaimsKey is the context key for the verified token claims.
	ClaimsKey ContextKey = "claims"
)

// Auth creates bearer-token authentication middleware.
func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				metrics.AuthFailures.WithLabelValues("missing").Inc()
				writeError(w, apperror.Auth("missing authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				metrics.AuthFailures.WithLabelValues("invalid").Inc()
				writeError(w, apperror.Auth("invalid authorization header format"))
				return
			}

			claims, err := verifier.Verify(parts[1])
			if err != nil {
				reason := "invalid"
				if errors.Is(err, auth.ErrExpiredToken) {
					reason = "expired"
				}
				metrics.AuthFailures.WithLabelValues(reason).Inc()
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims gets the verified claims from context.
func GetClaims(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(ClaimsKey).(*auth.Claims); ok {
		return v
	}
	return nil
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.UserID()
	}
	return ""
}

// HasScope checks if the context has a specific scope.
func HasScope(ctx context.Context, scope string) bool {
	c := GetClaims(ctx)
	return c != nil && c.HasScope(scope)
}

// RequireScope creates middleware that requires a specific scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(r.Context(), scope) {
				writeError(w, apperror.Forbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserUpserter records the identity carried by a token.
type UserUpserter interface {
	Upsert(ctx context.Context, user *model.User) error
}

// SyncUser keeps the local user table in step with authenticated callers so
// they can be resolved as direct-message recipients. Failures are logged and
// never block the request.
func SyncUser(users UserUpserter, log *logger.Logger) func(http.Handler) http.Handler {
	log = log.Component("user-sync")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c := GetClaims(r.Context()); c != nil {
				user := &model.User{ID: c.UserID(), Name: c.Name, Email: c.Email}
				if err := users.Upsert(r.Context(), user); err != nil {
					log.Warn("failed to sync user",
						zap.String("user_id", user.ID),
						zap.Error(err),
					)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
