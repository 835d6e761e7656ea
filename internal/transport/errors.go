// internal/transport/errors.go
package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means the transfer did not complete within its timeout.
	ErrTimeout = errors.New("transfer timed out")
	// ErrStall means the endpoint kept reporting a halt after every retry.
	ErrStall = errors.New("endpoint stalled")
	// ErrShortTransfer means fewer bytes were written than requested.
	ErrShortTransfer = errors.New("short transfer")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport closed")
)

// Error is a failed bulk or control transfer.
type Error struct {
	Op       string
	Endpoint uint8
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s on endpoint 0x%02x failed after %d attempts: %v", e.Op, e.Endpoint, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s on endpoint 0x%02x failed: %v", e.Op, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a transfer timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
