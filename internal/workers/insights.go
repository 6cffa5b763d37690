// Package workers runs the background side of the advisor: insight regeneration jobs
// consumed from the queue and the scheduler that enqueues them.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/queue"
	"github.com/benvon/finance-advisor/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InsightRegenerator rebuilds one user's insight cache
type InsightRegenerator interface {
	Regenerate(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error)
}

// InsightWorker processes regenerate_insights jobs
type InsightWorker struct {
	insights InsightRegenerator
	jobs     queue.Enqueuer // for re-enqueueing jobs with a delay
	logger   *zap.Logger
	now      func() time.Time
}

// NewInsightWorker creates an insight worker. jobs may be nil, in which case failed jobs
// are dead-lettered instead of retried.
func NewInsightWorker(insights InsightRegenerator, jobs queue.Enqueuer, logger *zap.Logger) *InsightWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightWorker{
		insights: insights,
		jobs:     jobs,
		logger:   logger,
		now:      time.Now,
	}
}

// Run processes messages until ctx is cancelled or the message channel closes
func (w *InsightWorker) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Error("queue_consume_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Info("queue_message_channel_closed")
				return
			}
			if err := w.ProcessJob(ctx, msg); err != nil {
				w.logger.Error("job_processing_failed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessJob processes a job based on its type and settles the message
func (w *InsightWorker) ProcessJob(ctx context.Context, msg queue.Delivery) error {
	job := msg.GetJob()

	if job.IsExpired() {
		w.logger.Info("job_expired_dropped",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
		)
		if err := msg.Ack(); err != nil {
			return fmt.Errorf("failed to ack expired job: %w", err)
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeRegenerateInsights:
		entries, err := w.insights.Regenerate(ctx, job.UserID)
		if err != nil {
			return w.handleJobError(ctx, msg, job, err)
		}
		w.logger.Info("insights_regenerated",
			zap.String("job_id", job.ID.String()),
			zap.String("user_id", job.UserID.String()),
			zap.String("reason", job.Reason()),
			zap.Int("count", len(entries)),
		)
		if err := msg.Ack(); err != nil {
			return fmt.Errorf("failed to ack job: %w", err)
		}
		return nil

	default:
		// Unknown job type, send to DLQ
		if err := msg.Nack(false); err != nil {
			w.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError retries a failed job later with a back-off that depends on the error:
// hours for quota exhaustion, minutes for rate limits, seconds otherwise. The retry is
// published before the original is acked so a failed publish never loses the job. Jobs
// out of retries are dead-lettered.
func (w *InsightWorker) handleJobError(ctx context.Context, msg queue.Delivery, job *queue.Job, cause error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", job.UserID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Bool("redelivered", msg.Redelivered()),
		zap.Bool("quota_exhausted", ai.IsQuotaError(cause)),
		zap.Bool("rate_limited", ai.IsRateLimitError(cause)),
		zap.Error(cause),
	}

	if !job.CanRetry() || w.jobs == nil {
		w.logger.Error("job_dead_lettered", fields...)
		if err := msg.Nack(false); err != nil {
			w.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
		return fmt.Errorf("job failed (max retries): %w", cause)
	}

	delay := ai.GetRetryDelay(cause, job.RetryCount)
	retry := w.delayed(job, delay)
	if job.NotAfter != nil && job.NotAfter.Before(*retry.NotBefore) {
		// A scheduled refresh that cannot run before it expires is dropped; the next
		// scheduler pass enqueues a fresh one
		w.logger.Warn("job_retry_past_expiry", fields...)
		if err := msg.Ack(); err != nil {
			w.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
		return fmt.Errorf("job failed, retry would expire: %w", cause)
	}
	if err := w.jobs.Enqueue(ctx, retry); err != nil {
		w.logger.Error("job_retry_enqueue_failed", append(fields, zap.NamedError("enqueue_error", err))...)
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("failed to re-enqueue job: %w", err)
	}
	if err := msg.Ack(); err != nil {
		w.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	w.logger.Warn("job_retry_scheduled", append(fields,
		zap.Duration("delay", delay),
		zap.Time("not_before", *retry.NotBefore),
	)...)
	return nil
}

// delayed copies job with the next retry count and a NotBefore delay from now
func (w *InsightWorker) delayed(job *queue.Job, delay time.Duration) *queue.Job {
	notBefore := w.now().Add(delay)
	retry := *job
	retry.NotBefore = &notBefore
	retry.IncrementRetry()
	return &retry
}
