package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/finance-advisor/internal/middleware"
	"github.com/benvon/finance-advisor/internal/services/goals"
	"github.com/benvon/finance-advisor/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// GoalParser turns free text into a savings goal
type GoalParser interface {
	Parse(ctx context.Context, userID uuid.UUID, input string, sessionID *uuid.UUID) (*goals.ParseResult, error)
}

// GoalsHandler handles savings goal requests
type GoalsHandler struct {
	parser GoalParser
	logger *zap.Logger
}

// NewGoalsHandler creates a new goals handler
func NewGoalsHandler(parser GoalParser, logger *zap.Logger) *GoalsHandler {
	return &GoalsHandler{parser: parser, logger: logger}
}

// RegisterRoutes registers goal routes
func (h *GoalsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/goals/parse", h.Parse).Methods("POST")
}

// ParseGoalRequest represents a goal parse request
type ParseGoalRequest struct {
	Input     string  `json:"input" validate:"notblank,max=2000"`
	SessionID *string `json:"sessionId,omitempty" validate:"omitempty,uuid"`
}

// Parse extracts a savings goal from text and creates it when confident
func (h *GoalsHandler) Parse(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	var req ParseGoalRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	var sessionID *uuid.UUID
	if req.SessionID != nil {
		id, ok := parseUUID(*req.SessionID)
		if !ok {
			respondJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid session ID")
			return
		}
		sessionID = &id
	}

	result, err := h.parser.Parse(r.Context(), user.ID, validation.SanitizeText(req.Input), sessionID)
	if err != nil {
		respondServiceError(w, h.logger, "goal_parse_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
