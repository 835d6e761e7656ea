// internal/frame/codec.go
package frame

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"v850-service/internal/transport"
)

// Maximum payload sizes.
const (
	MaxCommandPayload = 255
	MaxDataPayload    = 256
)

// EncodeCommand builds SOH, length, command, payload, checksum, ETX. The
// length byte counts the command and payload; 0 stands for 256.
func EncodeCommand(cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxCommandPayload {
		return nil, fmt.Errorf("%w: command payload is %d bytes, max %d",
			ErrPayloadTooLarge, len(payload), MaxCommandPayload)
	}

	length := byte(len(payload) + 1)
	raw := make([]byte, 0, len(payload)+5)
	raw = append(raw, SOH, length, byte(cmd))
	raw = append(raw, payload...)
	raw = append(raw, Checksum([]byte{length, byte(cmd)}, payload), ETX)
	return raw, nil
}

// DecodeCommand parses a raw command frame.
func DecodeCommand(raw []byte) (Command, []byte, error) {
	if len(raw) < 5 {
		return 0, nil, fmt.Errorf("command frame too short: %d bytes", len(raw))
	}
	if raw[0] != SOH {
		return 0, nil, &FramingError{Expected: SOH, Got: raw[0]}
	}

	n := int(raw[1])
	if n == 0 {
		n = 256
	}
	if len(raw) != n+4 {
		return 0, nil, fmt.Errorf("command frame length %d does not match header %d", len(raw), n)
	}
	if raw[len(raw)-1] != ETX {
		return 0, nil, &FramingError{Expected: ETX, Got: raw[len(raw)-1]}
	}

	body := raw[1 : len(raw)-2]
	if want := Checksum(body); raw[len(raw)-2] != want {
		return 0, nil, &ChecksumMismatchError{Expected: want, Got: raw[len(raw)-2]}
	}

	payload := append([]byte(nil), raw[3:len(raw)-2]...)
	return Command(raw[2]), payload, nil
}

// EncodeData builds STX, length, payload, checksum, ETX for 1 to 256 bytes.
func EncodeData(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxDataPayload {
		return nil, fmt.Errorf("%w: data payload must be 1..%d bytes, got %d",
			ErrPayloadTooLarge, MaxDataPayload, len(payload))
	}

	length := byte(len(payload))
	raw := make([]byte, 0, len(payload)+4)
	raw = append(raw, STX, length)
	raw = append(raw, payload...)
	raw = append(raw, Checksum([]byte{length}, payload), ETX)
	return raw, nil
}

// DataFrame is a received data frame.
type DataFrame struct {
	Payload       []byte
	Checksum      byte
	ChecksumValid bool
}

// Status returns the first payload byte as a status code.
func (f *DataFrame) Status() Status {
	if len(f.Payload) == 0 {
		return 0
	}
	return Status(f.Payload[0])
}

// Codec sends command frames and receives data frames over a transport.
type Codec struct {
	transport transport.Transport
	timeout   time.Duration
	strict    bool
	logger    *zap.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithTimeout sets the per-read timeout. Zero uses the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Codec) { c.timeout = d }
}

// WithStrictChecksum turns a received checksum mismatch into an error.
func WithStrictChecksum(strict bool) Option {
	return func(c *Codec) { c.strict = strict }
}

// NewCodec creates a codec over t.
func NewCodec(t transport.Transport, logger *zap.Logger, opts ...Option) *Codec {
	c := &Codec{
		transport: t,
		logger:    logger.With(zap.String("component", "frame")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transport returns the underlying transport.
func (c *Codec) Transport() transport.Transport {
	return c.transport
}

// SendCommand encodes and writes one command frame.
func (c *Codec) SendCommand(ctx context.Context, cmd Command, payload []byte) error {
	raw, err := EncodeCommand(cmd, payload)
	if err != nil {
		return err
	}

	c.logger.Debug("Sending command",
		zap.Stringer("command", cmd),
		zap.Int("payload_len", len(payload)),
	)
	n, err := c.transport.Write(ctx, raw)
	if err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	if n != len(raw) {
		return fmt.Errorf("send %s: %w", cmd, &transport.Error{
			Op:       "write",
			Endpoint: transport.DefaultOutEndpoint,
			Err:      fmt.Errorf("%w: wrote %d of %d bytes", transport.ErrShortTransfer, n, len(raw)),
		})
	}
	return nil
}

// ReceiveDataFrame reads one data frame. Short reads are reassembled; a bad
// checksum is logged and flagged on the frame unless the codec is strict.
func (c *Codec) ReceiveDataFrame(ctx context.Context) (*DataFrame, error) {
	header := make([]byte, 2)
	n, err := c.transport.Read(ctx, header, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("receive frame header: %w", err)
	}
	if n == 1 {
		if _, err := transport.ReadFull(ctx, c.transport, header[1:], c.timeout); err != nil {
			return nil, fmt.Errorf("receive frame length: %w", err)
		}
	} else if n == 0 {
		if _, err := transport.ReadFull(ctx, c.transport, header, c.timeout); err != nil {
			return nil, fmt.Errorf("receive frame header: %w", err)
		}
	}

	if header[0] != STX {
		return nil, &FramingError{Expected: STX, Got: header[0]}
	}

	length := int(header[1])
	if length == 0 {
		length = MaxDataPayload
	}

	// payload, checksum, ETX
	rest := make([]byte, length+2)
	if _, err := transport.ReadFull(ctx, c.transport, rest, c.timeout); err != nil {
		return nil, fmt.Errorf("receive frame body: %w", err)
	}

	payload := rest[:length]
	got := rest[length]
	want := Checksum(header[1:], payload)

	frame := &DataFrame{
		Payload:       payload,
		Checksum:      got,
		ChecksumValid: got == want,
	}

	if !frame.ChecksumValid {
		if c.strict {
			return nil, &ChecksumMismatchError{Expected: want, Got: got, Payload: payload}
		}
		c.logger.Warn("Data frame checksum mismatch",
			zap.Uint8("expected", want),
			zap.Uint8("got", got),
			zap.Int("length", length),
		)
	}
	if rest[length+1] != ETX {
		c.logger.Warn("Data frame not terminated by ETX", zap.Uint8("got", rest[length+1]))
	}

	c.logger.Debug("Received data frame",
		zap.Int("length", length),
		zap.Stringer("status", frame.Status()),
	)
	return frame, nil
}
