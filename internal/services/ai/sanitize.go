package ai

import (
	"context"
	"time"

	"github.com/benvon/finance-advisor/internal/logger"
	"github.com/benvon/finance-advisor/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context key types for logging (to avoid collisions with string keys)
type contextKey string

const (
	userIDContextKey    contextKey = "user_id"
	sessionIDContextKey contextKey = "session_id"
)

// RedactedValue is the value used to replace sensitive data
const RedactedValue = "[REDACTED]"

// WithUserID annotates ctx with the user on whose behalf the model is called
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// WithSessionID annotates ctx with the chat session being answered
func WithSessionID(ctx context.Context, sessionID uuid.UUID) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

// ExtractRequestID returns the inbound request ID set by the RequestID middleware
func ExtractRequestID(ctx context.Context) string {
	return request.RequestID(ctx)
}

func extractUUID(ctx context.Context, key contextKey) string {
	if id, ok := ctx.Value(key).(uuid.UUID); ok {
		return id.String()
	}
	return ""
}

// SanitizeAPIKey sanitizes an API key for logging
func SanitizeAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return RedactedValue
	}
	return apiKey[:4] + RedactedValue + apiKey[len(apiKey)-4:]
}

// SanitizePrompt creates a safe preview of a prompt for logging. Even in fullLog mode
// control characters are stripped and size is capped.
func SanitizePrompt(prompt string, fullLog bool) string {
	return logger.Preview(prompt, fullLog)
}

// SanitizeResponse creates a safe preview of a response for logging
func SanitizeResponse(response string, fullLog bool) string {
	return logger.Preview(response, fullLog)
}

func logRequest(ctx context.Context, log *zap.Logger, debug bool, provider, model string, req CompletionRequest) {
	if log == nil || !debug {
		return
	}
	previews := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		previews = append(previews, SanitizePrompt(msg.Content, false))
	}
	log.Debug("llm_api_request",
		zap.String("provider", provider),
		zap.String("operation", req.Operation),
		zap.String("model", model),
		zap.Int("system_length", len(req.System)),
		zap.Int("message_count", len(req.Messages)),
		zap.Strings("message_previews", previews),
		zap.Bool("json_mode", req.JSON),
		zap.String("user_id", extractUUID(ctx, userIDContextKey)),
		zap.String("session_id", extractUUID(ctx, sessionIDContextKey)),
		zap.String("request_id", ExtractRequestID(ctx)),
	)
}

func logResponse(ctx context.Context, log *zap.Logger, debug bool, provider, model, operation, content string, latency time.Duration) {
	if log == nil || !debug {
		return
	}
	log.Debug("llm_api_response",
		zap.String("provider", provider),
		zap.String("operation", operation),
		zap.String("model", model),
		zap.Int("response_length", len(content)),
		zap.String("response_preview", SanitizeResponse(content, true)),
		zap.String("user_id", extractUUID(ctx, userIDContextKey)),
		zap.String("request_id", ExtractRequestID(ctx)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
}

func logError(ctx context.Context, log *zap.Logger, debug bool, provider, model, operation string, err error, latency time.Duration) {
	if log == nil || !debug {
		return
	}
	log.Debug("llm_api_error",
		zap.String("provider", provider),
		zap.String("operation", operation),
		zap.String("model", model),
		zap.String("error", logger.SanitizeError(err)),
		zap.String("user_id", extractUUID(ctx, userIDContextKey)),
		zap.String("request_id", ExtractRequestID(ctx)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
}
