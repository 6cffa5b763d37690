package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout bounds every non-streaming API request
	DefaultRequestTimeout = 30 * time.Second
)

// Timeout answers 503 with the error envelope when a handler runs longer than timeout.
// It buffers the response, so streaming routes must be mounted without it.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := json.Marshal(newErrorResponse(codeUnavailable, "Request timed out"))
			// Handler headers replace this one unless the handler times out
			w.Header().Set("Content-Type", "application/json")
			http.TimeoutHandler(next, timeout, string(body)).ServeHTTP(w, r)
		})
	}
}
