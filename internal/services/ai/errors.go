package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrRateLimited indicates the API rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded indicates the API quota was exceeded
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrInvalidOutput indicates the model answered but the answer failed schema validation
	ErrInvalidOutput = errors.New("invalid model output")
)

// APIError represents an error from a model provider API
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	RetryAfter  *time.Duration
	IsPermanent bool // true for quota errors, false for rate limits
	cause       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// Unwrap returns the provider SDK error, if any
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match ErrRateLimited and ErrQuotaExceeded
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.IsPermanent
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests && !e.IsPermanent
	}
	return false
}

func newAPIError(status int, typ, code, message string, cause error) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Type:       typ,
		Code:       code,
		Message:    message,
		cause:      cause,
	}
	if isQuotaCode(code) || isQuotaCode(typ) {
		apiErr.IsPermanent = true
	}
	if status == http.StatusTooManyRequests {
		retryAfter := 60 * time.Second
		if apiErr.IsPermanent {
			retryAfter = time.Hour
		}
		apiErr.RetryAfter = &retryAfter
	}
	return apiErr
}

func isQuotaCode(code string) bool {
	return code == "insufficient_quota" || code == "RESOURCE_EXHAUSTED_QUOTA"
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests && !apiErr.IsPermanent
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsPermanent
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// ExtractAPIError recovers rate limit details from an error that only carries them in its
// message, as happens when a proxy in front of the provider rewrites the response
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "429") {
		return nil
	}

	var errorData struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	errorData.Message = errStr
	errorData.Type = "rate_limit_error"
	if start := strings.Index(errStr, "{"); start != -1 {
		if end := strings.LastIndex(errStr, "}"); end > start {
			_ = json.Unmarshal([]byte(errStr[start:end+1]), &errorData)
		}
	}
	return newAPIError(http.StatusTooManyRequests, errorData.Type, errorData.Code, errorData.Message, err)
}

// GetRetryDelay calculates the delay before retrying based on error type. It is used by
// the background worker only; request flows never retry model calls.
func GetRetryDelay(err error, attempt int) time.Duration {
	shift := uint(min(max(attempt, 0), 10))

	if IsQuotaError(err) {
		return min(time.Hour*time.Duration(1<<shift), 24*time.Hour)
	}

	if IsRateLimitError(err) {
		delay := min(60*time.Second*time.Duration(1<<shift), 15*time.Minute)
		if apiErr := ExtractAPIError(err); apiErr != nil && apiErr.RetryAfter != nil && *apiErr.RetryAfter > delay {
			delay = *apiErr.RetryAfter
		}
		return delay
	}

	return min(5*time.Second*time.Duration(1<<shift), 5*time.Minute)
}
