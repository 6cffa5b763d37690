package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/middleware"
	"github.com/benvon/finance-advisor/internal/services/oidc"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LoginConfigSource resolves what a frontend needs to start the login flow
type LoginConfigSource interface {
	GetLoginConfig(ctx context.Context, providerName, state string) (*oidc.LoginConfig, error)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	logins       LoginConfigSource
	providerName string
	logger       *zap.Logger
}

// NewAuthHandler creates a new auth handler for the named OIDC provider
func NewAuthHandler(logins LoginConfigSource, providerName string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{logins: logins, providerName: providerName, logger: logger}
}

// RegisterPublicRoutes registers routes that do not require a token
// The router should already have the /api/v1/auth prefix
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/oidc/login", h.GetOIDCLogin).Methods("GET")
}

// RegisterRoutes registers routes that require a token
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
}

// GetOIDCLogin returns OIDC configuration for frontend
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	loginConfig, err := h.logins.GetLoginConfig(r.Context(), h.providerName, uuid.NewString())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, ErrCodeNotFound, "Login provider is not configured")
			return
		}
		h.logger.Error("oidc_login_config_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, ErrCodeInternal, "Failed to get OIDC configuration")
		return
	}

	respondJSON(w, http.StatusOK, loginConfig)
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	respondJSON(w, http.StatusOK, user.Profile())
}
