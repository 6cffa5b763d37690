package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/finance-advisor/internal/services/chat"
	"github.com/benvon/finance-advisor/internal/services/usage"
	"github.com/benvon/finance-advisor/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Error codes returned in the "error" field of failed responses
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_SERVER_ERROR"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage removes internal details from error messages
func sanitizeErrorMessage(message string) string {
	sanitized := message
	if len(sanitized) > 200 {
		sanitized = sanitized[:200] + "..."
	}
	return sanitized
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	respondJSONErrorWith(w, status, errorType, message, nil)
}

func respondJSONErrorWith(w http.ResponseWriter, status int, errorType, message string, extra map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		response[k] = v
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondRateLimited answers 429 with the time the quota resets
func respondRateLimited(w http.ResponseWriter, resetAt time.Time, now time.Time) {
	retryAfter := int(resetAt.Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	respondJSONErrorWith(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded,
		"Daily message limit reached",
		map[string]any{"resetAt": resetAt.UTC().Format(time.RFC3339)},
	)
}

// respondServiceError maps service errors onto the error envelope. Unknown errors are
// logged and reported as a generic 500.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, event string, err error) {
	var limitErr *chat.RateLimitError
	switch {
	case errors.As(err, &limitErr):
		respondRateLimited(w, limitErr.ResetAt, time.Now())
	case errors.Is(err, chat.ErrSessionNotFound):
		respondJSONError(w, http.StatusNotFound, ErrCodeNotFound, "Chat session not found")
	case errors.Is(err, usage.ErrStoreUnavailable):
		logger.Error(event, zap.Error(err))
		respondJSONError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Usage tracking is temporarily unavailable")
	default:
		logger.Error(event, zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred")
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation on it
func decodeAndValidate(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validation.Validate.Struct(dst); err != nil {
		return errors.New(validation.Describe(err))
	}
	return nil
}

// parseUUID parses a path or body identifier
func parseUUID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// queryLimit reads ?limit=, falling back to def and capping at maxLimit
func queryLimit(r *http.Request, def, maxLimit int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxLimit)
}
