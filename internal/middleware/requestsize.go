package middleware

import (
	"net/http"
)

const (
	// DefaultMaxRequestSize is the largest request body accepted (1 MiB)
	DefaultMaxRequestSize = 1 << 20
)

// MaxRequestSize rejects bodies over maxBytes. Declared lengths are refused up front
// with 413; undeclared ones fail when the handler's decoder hits the limit.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body too large", nil)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
