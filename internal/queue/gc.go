package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDLQRetention is how long dead-lettered insight jobs are kept for inspection
	DefaultDLQRetention = 7 * 24 * time.Hour

	purgeTimeout = 2 * time.Minute
)

// GarbageCollector drops dead-lettered insight jobs once they are older than retention.
// Failed regenerations stay in the DLQ long enough for an operator to look at them.
type GarbageCollector struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector creates a collector that purges every interval
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = DefaultDLQRetention
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &GarbageCollector{
		purger:    purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Start purges once immediately and then every interval until ctx is cancelled. It
// always returns ctx.Err().
func (gc *GarbageCollector) Start(ctx context.Context) error {
	gc.runOnce(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gc.runOnce(ctx)
		}
	}
}

func (gc *GarbageCollector) runOnce(ctx context.Context) {
	if _, err := gc.Collect(ctx); err != nil && ctx.Err() == nil {
		gc.logger.Error("dlq_gc_failed", zap.Error(err))
	}
}

// Collect runs a single purge and returns how many jobs were dropped
func (gc *GarbageCollector) Collect(ctx context.Context) (int, error) {
	if gc.purger == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	n, err := gc.purger.PurgeOlderThan(ctx, gc.retention)
	if n > 0 {
		gc.logger.Info("dlq_gc_purged",
			zap.Int("count", n),
			zap.Duration("retention", gc.retention),
		)
	}
	if err != nil {
		return n, fmt.Errorf("failed to purge DLQ: %w", err)
	}
	return n, nil
}
