package middleware

import (
	"context"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/request"
)

// ContextWithUser attaches an authenticated user the way Auth does. Handler tests use it
// to skip token verification.
func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return request.WithUser(ctx, user)
}
