package middleware

import (
	"errors"
	"net/http"

	logpkg "github.com/benvon/finance-advisor/internal/logger"
	"go.uber.org/zap"
)

// ErrorHandler recovers handler panics, logs them with a stack trace and answers with a
// generic 500. http.ErrAbortHandler is re-raised so net/http can abort the connection.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				// Panic details stay in the logs
				logger.Error("panic_recovered",
					zap.Any("error", rec),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.Stack("stack"),
				)
				writeError(w, http.StatusInternalServerError, codeInternal, "An unexpected error occurred", logger)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
