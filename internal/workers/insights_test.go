package workers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/queue"
	"github.com/benvon/finance-advisor/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockMessage records how a message was settled
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

func (m *mockMessage) Redelivered() bool {
	return false
}

var _ queue.Delivery = (*mockMessage)(nil)

// mockEnqueuer collects enqueued jobs
type mockEnqueuer struct {
	enqueueFunc func(ctx context.Context, job *queue.Job) error
	jobs        []*queue.Job
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, job *queue.Job) error {
	if m.enqueueFunc != nil {
		if err := m.enqueueFunc(ctx, job); err != nil {
			return err
		}
	}
	m.jobs = append(m.jobs, job)
	return nil
}

var _ queue.Enqueuer = (*mockEnqueuer)(nil)

// mockRegenerator is a scripted InsightRegenerator
type mockRegenerator struct {
	regenerateFunc func(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error)
	calls          int
}

func (m *mockRegenerator) Regenerate(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error) {
	m.calls++
	if m.regenerateFunc != nil {
		return m.regenerateFunc(ctx, userID)
	}
	return []*models.InsightCacheEntry{}, nil
}

func failingRegenerator(err error) *mockRegenerator {
	return &mockRegenerator{
		regenerateFunc: func(context.Context, uuid.UUID) ([]*models.InsightCacheEntry, error) {
			return nil, err
		},
	}
}

func TestInsightWorker_ProcessJob(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	userID := uuid.New()
	quotaErr := &ai.APIError{StatusCode: http.StatusTooManyRequests, Code: "insufficient_quota", IsPermanent: true}
	rateErr := &ai.APIError{StatusCode: http.StatusTooManyRequests}

	tests := []struct {
		name        string
		job         func() *queue.Job
		regenerator *mockRegenerator
		enqueuer    *mockEnqueuer
		noQueue     bool
		expectError bool
		validate    func(*testing.T, *mockMessage, *mockEnqueuer, *mockRegenerator)
	}{
		{
			name: "successful regeneration acks",
			job: func() *queue.Job {
				return queue.NewRegenerateInsightsJob(userID, queue.ReasonRequested, 0)
			},
			regenerator: &mockRegenerator{},
			enqueuer:    &mockEnqueuer{},
			validate: func(t *testing.T, msg *mockMessage, q *mockEnqueuer, r *mockRegenerator) {
				if !msg.acked || msg.nacked {
					t.Errorf("Expected ack only, got acked=%v nacked=%v", msg.acked, msg.nacked)
				}
				if r.calls != 1 {
					t.Errorf("Expected 1 regeneration, got %d", r.calls)
				}
				if len(q.jobs) != 0 {
					t.Errorf("Expected no re-enqueue, got %d", len(q.jobs))
				}
			},
		},
		{
			name: "expired job dropped without work",
			job: func() *queue.Job {
				job := queue.NewRegenerateInsightsJob(userID, queue.ReasonScheduled, time.Hour)
				past := time.Now().Add(-time.Minute)
				job.NotAfter = &past
				return job
			},
			regenerator: &mockRegenerator{},
			enqueuer:    &mockEnqueuer{},
			validate: func(t *testing.T, msg *mockMessage, _ *mockEnqueuer, r *mockRegenerator) {
				if !msg.acked {
					t.Error("Expected expired job to be acked")
				}
				if r.calls != 0 {
					t.Errorf("Expected no regeneration, got %d", r.calls)
				}
			},
		},
		{
			name: "unknown job type dead-lettered",
			job: func() *queue.Job {
				return queue.NewJob(queue.JobType("task_analysis"), userID)
			},
			regenerator: &mockRegenerator{},
			enqueuer:    &mockEnqueuer{},
			expectError: true,
			validate: func(t *testing.T, msg *mockMessage, _ *mockEnqueuer, _ *mockRegenerator) {
				if !msg.nacked || msg.requeue {
					t.Errorf("Expected nack without requeue, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
				}
			},
		},
		{
			name: "quota error retried in an hour",
			job: func() *queue.Job {
				return queue.NewRegenerateInsightsJob(userID, queue.ReasonRequested, 0)
			},
			regenerator: failingRegenerator(quotaErr),
			enqueuer:    &mockEnqueuer{},
			validate: func(t *testing.T, msg *mockMessage, q *mockEnqueuer, _ *mockRegenerator) {
				if !msg.acked {
					t.Error("Expected original message acked after re-enqueue")
				}
				if len(q.jobs) != 1 {
					t.Fatalf("Expected 1 re-enqueued job, got %d", len(q.jobs))
				}
				retry := q.jobs[0]
				if retry.RetryCount != 1 {
					t.Errorf("Expected retry count 1, got %d", retry.RetryCount)
				}
				if retry.NotBefore == nil || !retry.NotBefore.Equal(now.Add(time.Hour)) {
					t.Errorf("Expected NotBefore %v, got %v", now.Add(time.Hour), retry.NotBefore)
				}
				if retry.Reason() != queue.ReasonRequested {
					t.Errorf("Expected reason preserved, got %q", retry.Reason())
				}
			},
		},
		{
			name: "rate limit retried in a minute",
			job: func() *queue.Job {
				return queue.NewRegenerateInsightsJob(userID, queue.ReasonRequested, 0)
			},
			regenerator: failingRegenerator(rateErr),
			enqueuer:    &mockEnqueuer{},
			validate: func(t *testing.T, _ *mockMessage, q *mockEnqueuer, _ *mockRegenerator) {
				if len(q.jobs) != 1 {
					t.Fatalf("Expected 1 re-enqueued job, got %d", len(q.jobs))
				}
				if got := q.jobs[0].NotBefore.Sub(now); got != time.Minute {
					t.Errorf("Expected 1m delay, got %v", got)
				}
			},
		},
		{
			name: "generic error retried with short back-off",
			job: func() *queue.Job {
				job := queue.NewRegenerateInsightsJob(userID, queue.ReasonRequested, 0)
				job.RetryCount = 2
				return job
			},
			regenerator: failingRegenerator(errors.New("connection reset")),
			enqueuer:    &mockEnqueuer{},
			validate: func(t *testing.T, _ *mockMessage, q *mockEnqueuer, _ *mockRegenerator) {
				if len(q.jobs) != 1 {
					t.Fatalf("Expected 1 re-enqueued job, got %d", len(q.jobs))
				}
				if got := q.jobs[0].NotBefore.Sub(now); got != 20*time.Second {
					t.Errorf("Expected 20s delay, got %v", got)
				}
				if q.jobs[0].RetryCount != 3 {
					t.Errorf("Expected retry count 3, got %d", q.jobs[0].RetryCount)
				}
			},
		},
		{
			name: "max retries dead-lettered",
			job: func() *queue.Job {
				job := queue.NewRegenerateInsightsJob(userID, queue.ReasonRequested, 0)
				job.RetryCount = job.MaxRetries
				return job
			},
			regenerator: failingRegenerator(errors.New("model unavailable")),
			enqueuer:    &mockEnqueuer{},
			expectError: true,
			validate: func(t *testing.T, msg *mockMessage, q *mockEnqueuer, _ *mockRegenerator) {
				if !msg.nacked || msg.requeue {
					t.Errorf("Expected nack to DLQ, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
				}
				if len(q.jobs) != 0 {
					t.Errorf("Expected no re-enqueue, got %d", len(q.jobs))
				}
			},
		},
		{
			name: "no queue dead-letters",
			job: func() *queue.Job {
				return queue.NewRegenerateInsightsJob(userID, queue.ReasonRequested, 0)
			},
			regenerator: failingRegenerator(rateErr),
			noQueue:     true,
			expectError: true,
			validate: func(t *testing.T, msg *mockMessage, _ *mockEnqueuer, _ *mockRegenerator) {
				if !msg.nacked || msg.requeue {
					t.Errorf("Expected nack to DLQ, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
				}
			},
		},
		{
			name: "failed re-enqueue keeps job in DLQ",
			job: func() *queue.Job {
				return queue.NewRegenerateInsightsJob(userID, queue.ReasonRequested, 0)
			},
			regenerator: failingRegenerator(rateErr),
			enqueuer: &mockEnqueuer{
				enqueueFunc: func(context.Context, *queue.Job) error { return errors.New("channel closed") },
			},
			expectError: true,
			validate: func(t *testing.T, msg *mockMessage, _ *mockEnqueuer, _ *mockRegenerator) {
				if msg.acked {
					t.Error("Expected original not acked when re-enqueue fails")
				}
				if !msg.nacked {
					t.Error("Expected original nacked")
				}
			},
		},
		{
			name: "scheduled job whose retry would expire is dropped",
			job: func() *queue.Job {
				job := queue.NewRegenerateInsightsJob(userID, queue.ReasonScheduled, 0)
				notAfter := time.Now().Add(10 * time.Minute)
				job.NotAfter = &notAfter
				return job
			},
			regenerator: failingRegenerator(quotaErr),
			enqueuer:    &mockEnqueuer{},
			expectError: true,
			validate: func(t *testing.T, msg *mockMessage, q *mockEnqueuer, _ *mockRegenerator) {
				if !msg.acked {
					t.Error("Expected job acked and dropped")
				}
				if len(q.jobs) != 0 {
					t.Errorf("Expected no re-enqueue, got %d", len(q.jobs))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var worker *InsightWorker
			if tt.noQueue {
				worker = NewInsightWorker(tt.regenerator, nil, zap.NewNop())
			} else {
				worker = NewInsightWorker(tt.regenerator, tt.enqueuer, zap.NewNop())
			}
			worker.now = func() time.Time { return now }

			msg := &mockMessage{job: tt.job()}
			err := worker.ProcessJob(context.Background(), msg)

			if tt.expectError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, msg, tt.enqueuer, tt.regenerator)
			}
		})
	}
}

func TestInsightWorker_RunStopsOnClosedChannel(t *testing.T) {
	t.Parallel()

	msgs := make(chan *queue.Message)
	errs := make(chan error)
	close(msgs)
	close(errs)

	done := make(chan struct{})
	go func() {
		NewInsightWorker(&mockRegenerator{}, nil, zap.NewNop()).Run(context.Background(), msgs, errs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected Run to return when the message channel closes")
	}
}
