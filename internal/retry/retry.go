// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"fmt"
)

// Op is one attempt. attempt counts from 1.
type Op func(ctx context.Context, attempt int) error

// Do calls op until it succeeds, returns an error for which retryable
// reports false, the context is done, or maxAttempts have been made. The
// error of the last attempt is returned wrapped in *ExhaustedError when the
// budget runs out.
func Do(ctx context.Context, maxAttempts int, retryable func(error) bool, op Op) error {
	if maxAttempts < 1 {
		return fmt.Errorf("retry: maxAttempts must be positive, got %d", maxAttempts)
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("%w (last error: %v)", ctxErr, err)
			}
			return ctxErr
		}

		err = op(ctx, attempt)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}

	return &ExhaustedError{Attempts: maxAttempts, Err: err}
}

// Always treats every error as retryable.
func Always(error) bool { return true }

// ExhaustedError reports that every permitted attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }
