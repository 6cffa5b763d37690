package middleware

import (
	"net/http"
	"time"

	logpkg "github.com/benvon/finance-advisor/internal/logger"
	"github.com/benvon/finance-advisor/internal/request"
	"go.uber.org/zap"
)

// statusRecorder captures the status code and whether the response was streamed. It
// forwards Flush so server-sent events pass through.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	flushed    bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	rw.flushed = true
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logging logs one http_request line per request
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			logger.Info("http_request",
				zap.String("request_id", request.RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Int("status_code", rec.statusCode),
				zap.Bool("streamed", rec.flushed),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}
