package timer

import (
	"context"
	"time"
)

// RunDriver ticks engine every interval until ctx is done. Missed ticks are
// dropped; the next Reconcile catches up on them.
func RunDriver(ctx context.Context, engine *Engine, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.Tick(ctx)
		}
	}
}
