package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/request"
	"github.com/benvon/finance-advisor/internal/services/oidc"
	"go.uber.org/zap"
)

// UserStore resolves the application user behind verified token claims
type UserStore interface {
	UpsertFromClaims(ctx context.Context, claims *models.JWTClaims) (*models.User, error)
}

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth validates the bearer token, resolves the user and attaches it to the request context.
// Every failure answers 401 UNAUTHENTICATED except a user store outage, which is a 500.
func Auth(verifier oidc.TokenVerifier, users UserStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "Missing or malformed Authorization header", logger)
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, tokenString)
			if err != nil {
				logger.Debug("token_verification_failed", zap.Error(err))
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "Invalid or expired token", logger)
				return
			}

			user, err := users.UpsertFromClaims(ctx, claims)
			if err != nil {
				logger.Error("user_resolution_failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, codeInternal, "Failed to resolve user", logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
