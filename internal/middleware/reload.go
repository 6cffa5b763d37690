package middleware

import (
	"context"
	"time"
)

// reloadEvery calls load immediately and then every interval until ctx is cancelled. A
// non-positive interval loads once.
func reloadEvery(ctx context.Context, interval time.Duration, load func(context.Context)) {
	load(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load(ctx)
		}
	}
}
