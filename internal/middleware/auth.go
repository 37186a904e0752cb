package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"thumbgen/internal/util"
)

type contextKey string

const ExternalIDContextKey = contextKey("external_id")

// ExternalIDFromContext returns the authenticated identity set by AuthMiddleware.
func ExternalIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ExternalIDContextKey).(string)
	return id, ok && id != ""
}

// WithExternalID stores an authenticated identity on ctx.
func WithExternalID(ctx context.Context, externalID string) context.Context {
	return context.WithValue(ctx, ExternalIDContextKey, externalID)
}

// AuthMiddleware requires a valid bearer session token and puts its subject on the context.
func AuthMiddleware(verifier *util.JWTVerifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("middleware", "Auth").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug().Str("path", r.URL.Path).Msg("Authorization header missing")
				writeUnauthorized(w)
				return
			}
			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				logger.Warn().Str("path", r.URL.Path).Msg("Invalid authorization header")
				writeUnauthorized(w)
				return
			}
			claims, err := verifier.Verify(strings.TrimSpace(tokenString))
			if err != nil {
				logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Invalid token")
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithExternalID(r.Context(), claims.Subject)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"Unauthorized"}`))
}
