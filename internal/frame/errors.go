// internal/frame/errors.go
package frame

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned for command payloads over 255 bytes and
// data payloads over 256 bytes.
var ErrPayloadTooLarge = errors.New("payload too large")

// FramingError reports a frame that did not start with the expected marker.
type FramingError struct {
	Expected byte
	Got      byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: expected marker 0x%02X, got 0x%02X", e.Expected, e.Got)
}

// ChecksumMismatchError is returned by a strict codec when a received data
// frame fails its checksum.
type ChecksumMismatchError struct {
	Expected byte
	Got      byte
	Payload  []byte
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%02X, got 0x%02X", e.Expected, e.Got)
}

// IsFramingError reports whether err is a framing error.
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}
