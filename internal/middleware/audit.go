package middleware

import (
	"net/http"

	logpkg "github.com/benvon/finance-advisor/internal/logger"
	"github.com/benvon/finance-advisor/internal/request"
	"go.uber.org/zap"
)

// Audit logs failed authentication, quota and rate-limit rejections
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			var event string
			switch rec.statusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				event = "security_event"
			case http.StatusTooManyRequests:
				event = "rate_limit_violation"
			default:
				return
			}
			logger.Warn(event,
				zap.Int("status_code", rec.statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)),
				// Daily chat quota rejections carry Retry-After; request rate rejections do not
				zap.Bool("daily_quota", rec.Header().Get("Retry-After") != ""),
			)
		})
	}
}
