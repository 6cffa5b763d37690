// Package usage enforces the per-user daily chat message quota.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultDailyQuota is the number of chat messages a user may send per UTC day
const DefaultDailyQuota = 25

// ErrStoreUnavailable is returned when the counter store cannot be reached and the limiter
// is configured to fail closed
var ErrStoreUnavailable = errors.New("usage store unavailable")

// incrementScript increments the counter and, only when the key is new, sets its expiry.
// Running both in one script keeps a crash between INCR and EXPIRE from leaving a
// counter that never resets.
var incrementScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return c
`)

// Limiter is a fixed-window daily counter keyed by user. The window ends at the next UTC
// midnight.
type Limiter struct {
	client   redis.UniversalClient
	quota    int
	failOpen bool
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithQuota overrides DefaultDailyQuota
func WithQuota(quota int) Option {
	return func(l *Limiter) {
		if quota > 0 {
			l.quota = quota
		}
	}
}

// WithFailOpen makes CheckLimit allow requests when the store is unreachable
func WithFailOpen(failOpen bool) Option {
	return func(l *Limiter) { l.failOpen = failOpen }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter backed by client
func NewLimiter(client redis.UniversalClient, log *zap.Logger, opts ...Option) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Limiter{
		client: client,
		quota:  DefaultDailyQuota,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the Redis key holding userID's counter
func Key(userID uuid.UUID) string {
	return "usage:chat:" + userID.String()
}

// NextReset returns the next UTC midnight strictly after now
func NextReset(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// ttlUntilReset returns the whole seconds left until the next UTC midnight, at least 1
func ttlUntilReset(now time.Time) int64 {
	secs := int64(NextReset(now).Sub(now.UTC()) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CheckLimit reports whether userID may send another message. It never mutates the counter.
func (l *Limiter) CheckLimit(ctx context.Context, userID uuid.UUID) (*models.UsageStatus, error) {
	now := l.now()
	status := &models.UsageStatus{Limit: l.quota, ResetAt: NextReset(now)}

	count, err := l.client.Get(ctx, Key(userID)).Int()
	if errors.Is(err, redis.Nil) {
		count = 0
	} else if err != nil {
		if l.failOpen {
			l.log.Warn("usage_check_failed_open",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			status.Allowed = true
			status.Remaining = l.quota
			return status, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	status.Used = count
	status.Remaining = max(0, l.quota-count)
	status.Allowed = count < l.quota
	return status, nil
}

// IncrementUsage counts one message for userID and returns the new count. The first
// increment of a day sets the key to expire at the next UTC midnight.
func (l *Limiter) IncrementUsage(ctx context.Context, userID uuid.UUID) (int, error) {
	ttl := ttlUntilReset(l.now())
	count, err := incrementScript.Run(ctx, l.client, []string{Key(userID)}, strconv.FormatInt(ttl, 10)).Int()
	if err != nil {
		if l.failOpen {
			l.log.Warn("usage_increment_failed_open",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// Reset clears userID's counter for the current day
func (l *Limiter) Reset(ctx context.Context, userID uuid.UUID) error {
	if err := l.client.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

// Connect parses redisURL, opens a client and verifies it with a ping
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
