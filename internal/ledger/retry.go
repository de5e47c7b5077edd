package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Retrying wraps a Client with a read timeout and bounded fixed-backoff
// retries on ErrUnreachable. Rejections pass through untouched. Writes are
// never retried here: resubmitting an Invoke after an ambiguous network
// failure could double-apply the transition, and the caller's guard has
// already passed.
type Retrying struct {
	inner       Client
	readTimeout time.Duration
	maxRetries  int
	backoff     time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps inner with retry/timeout policy.
func NewRetrying(inner Client, readTimeout time.Duration, maxRetries int, backoff time.Duration) *Retrying {
	return &Retrying{
		inner:       inner,
		readTimeout: readTimeout,
		maxRetries:  maxRetries,
		backoff:     backoff,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Retrying) Call(ctx context.Context, entrypoint string, args []string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.backoff); err != nil {
				return nil, fmt.Errorf("%s: %w", entrypoint, ErrUnreachable)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.readTimeout)
		out, err := r.inner.Call(callCtx, entrypoint, args)
		cancel()
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s timed out: %w", entrypoint, ErrUnreachable)
		}
		if !errors.Is(err, ErrUnreachable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Retrying) Invoke(ctx context.Context, entrypoint string, args []string) (TxRef, error) {
	return r.inner.Invoke(ctx, entrypoint, args)
}

func (r *Retrying) WaitForTx(ctx context.Context, ref TxRef) (Receipt, error) {
	return r.inner.WaitForTx(ctx, ref)
}
