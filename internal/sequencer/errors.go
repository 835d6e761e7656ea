// internal/sequencer/errors.go
package sequencer

import (
	"errors"
	"fmt"

	"v850-service/internal/frame"
)

// ProtocolError means the target answered with something other than ACK,
// or never produced an acceptable answer.
type ProtocolError struct {
	Operation string
	Status    frame.Status
	Err       error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("%s failed: status %s (0x%02X): %v", e.Operation, e.Status, byte(e.Status), e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
	default:
		return fmt.Sprintf("%s failed: status %s (0x%02X)", e.Operation, e.Status, byte(e.Status))
	}
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError checks if an error is a ProtocolError
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ValidationError rejects a parameter before anything is sent.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
