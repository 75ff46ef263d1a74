package services

import (
	"context"
	"errors"
	"time"

	upload_errors "chunkstore/pkg/errors"
)

// retryOnConflict re-runs fn while it reports a CAS loss, up to attempts
// times. Conflicts signal contention, not a client mistake, so they are
// absorbed here and only surface once the budget is spent.
func retryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, upload_errors.ErrConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 10 * time.Millisecond):
		}
	}
	return err
}

// retryStorage re-runs fn while it reports a retryable backend failure,
// backing off between attempts.
func retryStorage(ctx context.Context, attempts int, fn func() error) error {
	var err error
	backoff := 100 * time.Millisecond
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !upload_errors.IsRetryableStorage(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
