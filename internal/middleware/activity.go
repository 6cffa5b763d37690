package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivityRecorder records that a user called the API
type ActivityRecorder interface {
	UpdateLastInteraction(ctx context.Context, userID uuid.UUID) error
}

// ActivityTracking records the last API interaction of authenticated users. The insight
// scheduler only refreshes users seen recently. Recording failures never fail the request.
func ActivityTracking(activity ActivityRecorder, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := UserFromContext(r); user != nil {
				if err := activity.UpdateLastInteraction(r.Context(), user.ID); err != nil {
					logger.Warn("user_activity_update_failed",
						zap.String("user_id", user.ID.String()),
						zap.Error(err),
					)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
