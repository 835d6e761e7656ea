package retry

import (
	"context"
	"errors"
	"testing"
)

var errFlaky = errors.New("flaky")

func TestDo(t *testing.T) {
	errFatal := errors.New("fatal")

	tests := []struct {
		name         string
		maxAttempts  int
		failures     int
		failWith     error
		wantAttempts int
		wantErr      bool
		wantExhaust  bool
	}{
		{"first try", 5, 0, errFlaky, 1, false, false},
		{"succeeds on last", 5, 4, errFlaky, 5, false, false},
		{"exhausted", 5, 5, errFlaky, 5, true, true},
		{"non retryable", 5, 3, errFatal, 1, true, false},
		{"single attempt", 1, 1, errFlaky, 1, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), tt.maxAttempts,
				func(err error) bool { return errors.Is(err, errFlaky) },
				func(_ context.Context, attempt int) error {
					calls++
					if attempt != calls {
						t.Errorf("attempt = %d, want %d", attempt, calls)
					}
					if calls <= tt.failures {
						return tt.failWith
					}
					return nil
				})

			if calls != tt.wantAttempts {
				t.Errorf("calls = %d, want %d", calls, tt.wantAttempts)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			var exhausted *ExhaustedError
			if got := errors.As(err, &exhausted); got != tt.wantExhaust {
				t.Errorf("ExhaustedError = %v, want %v", got, tt.wantExhaust)
			}
			if err != nil && !errors.Is(err, tt.failWith) {
				t.Errorf("error %v does not wrap %v", err, tt.failWith)
			}
		})
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, 10, Always, func(context.Context, int) error {
		calls++
		cancel()
		return errFlaky
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDoRejectsZeroAttempts(t *testing.T) {
	if err := Do(context.Background(), 0, Always, func(context.Context, int) error { return nil }); err == nil {
		t.Error("Do() expected error for zero attempts")
	}
}
