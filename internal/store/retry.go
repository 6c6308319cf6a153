package store

import (
	"context"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	maxTxAttempts  = 5
	retryBaseDelay = 10 * time.Millisecond
)

// withRetry runs fn, retrying on transient SQLite contention (SQLITE_BUSY,
// SQLITE_LOCKED) with exponential backoff. Other errors return
// immediately. When the budget is exhausted the last error is wrapped in a
// RetryableError: the transaction rolled back, so the caller can re-submit
// the whole call and rely on no-op detection to absorb anything that did
// land earlier.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
		if attempt == maxTxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &RetryableError{Attempts: attempt, Err: ctx.Err()}
		}
		delay *= 2
	}

	return &RetryableError{Attempts: maxTxAttempts, Err: lastErr}
}

// isTransient reports whether err is SQLite lock contention worth
// retrying.
func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
