package browser

import (
	"context"
	"time"
)

// Sleeper waits for d or until ctx is done. Components take one so tests can
// skip the fixed pauses the composer page needs.
type Sleeper func(ctx context.Context, d time.Duration) error

// Pause is the real Sleeper.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoPause returns immediately unless ctx is already done.
func NoPause(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
