// internal/transport/transport.go
package transport

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// Default bulk endpoint addresses and timeout of the uPD78F0730.
const (
	DefaultOutEndpoint  = 0x02
	DefaultInEndpoint   = 0x81
	DefaultTimeout      = 4 * time.Second
	DefaultStallRetries = 5
)

// Transport is a duplex byte channel to the target.
type Transport interface {
	// Write sends p in one transfer.
	Write(ctx context.Context, p []byte) (int, error)
	// Read returns whatever arrives within timeout, possibly fewer than
	// len(p) bytes and possibly zero. A zero timeout uses the channel default.
	Read(ctx context.Context, p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Channel names the endpoint pair and the per-transfer timeout.
type Channel struct {
	Out     uint8
	In      uint8
	Timeout time.Duration
}

// DefaultChannel returns the bridge's bulk endpoint pair.
func DefaultChannel() Channel {
	return Channel{Out: DefaultOutEndpoint, In: DefaultInEndpoint, Timeout: DefaultTimeout}
}

// ReadFull reads exactly len(p) bytes. Zero-length reads do not advance and
// the loop keeps going until an error, typically a timeout, ends it.
func ReadFull(ctx context.Context, t Transport, p []byte, timeout time.Duration) (int, error) {
	total := 0
	for total < len(p) {
		n, err := t.Read(ctx, p[total:], timeout)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func logTransfer(logger *zap.Logger, msg string, ep uint8, data []byte) {
	if ce := logger.Check(zap.DebugLevel, msg); ce != nil {
		ce.Write(
			zap.String("endpoint", hexByte(ep)),
			zap.Int("bytes", len(data)),
			zap.String("data", hex.EncodeToString(data)),
		)
	}
}

func hexByte(b uint8) string {
	return "0x" + hex.EncodeToString([]byte{b})
}
