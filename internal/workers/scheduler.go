package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/finance-advisor/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultActiveWindow is how recently a user must have used the API to get scheduled
	// refreshes
	DefaultActiveWindow = 7 * 24 * time.Hour
	// DefaultStaleAfter is the age at which an insight batch is refreshed
	DefaultStaleAfter = 24 * time.Hour
)

// RefreshCandidates finds users whose insights should be refreshed
type RefreshCandidates interface {
	UsersNeedingInsightRefresh(ctx context.Context, activeSince, staleBefore time.Time) ([]uuid.UUID, error)
}

// InsightScheduler periodically enqueues insight refreshes for recently active users
// whose active insights are missing or stale
type InsightScheduler struct {
	candidates   RefreshCandidates
	jobs         queue.Enqueuer
	interval     time.Duration
	staleAfter   time.Duration
	activeWindow time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewInsightScheduler creates a scheduler that runs every interval. Non-positive
// durations take their defaults.
func NewInsightScheduler(candidates RefreshCandidates, jobs queue.Enqueuer, interval, staleAfter time.Duration, logger *zap.Logger) *InsightScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &InsightScheduler{
		candidates:   candidates,
		jobs:         jobs,
		interval:     interval,
		staleAfter:   staleAfter,
		activeWindow: DefaultActiveWindow,
		logger:       logger,
		now:          time.Now,
	}
}

// Start schedules refreshes every interval until ctx is cancelled
func (s *InsightScheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.ScheduleRefreshes(ctx); err != nil {
			s.logger.Error("insight_refresh_schedule_failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScheduleRefreshes enqueues one refresh per eligible user and reports how many were
// enqueued. Jobs expire after one interval so a stalled worker does not accumulate
// duplicates; the next pass enqueues again.
func (s *InsightScheduler) ScheduleRefreshes(ctx context.Context) (int, error) {
	now := s.now().UTC()
	users, err := s.candidates.UsersNeedingInsightRefresh(ctx, now.Add(-s.activeWindow), now.Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to get users needing refresh: %w", err)
	}

	enqueued := 0
	for _, userID := range users {
		job := queue.NewRegenerateInsightsJob(userID, queue.ReasonScheduled, s.interval)
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			s.logger.Warn("insight_refresh_enqueue_failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			// Continue with other users
			continue
		}
		enqueued++
	}

	s.logger.Info("insight_refreshes_scheduled",
		zap.Int("user_count", len(users)),
		zap.Int("enqueued", enqueued),
	)
	return enqueued, nil
}
