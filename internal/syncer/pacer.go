package syncer

import (
	"context"
	"time"
)

// Pacer spaces chunk writes so a full sync does not monopolize the mirror.
// Tests inject a no-op pacer.
type Pacer func(ctx context.Context, d time.Duration) error

// DefaultPacer sleeps for d or until the context is done.
func DefaultPacer(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
