// internal/transport/usb.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"v850-service/internal/retry"
)

// OutEndpoint is satisfied by *gousb.OutEndpoint.
type OutEndpoint interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// InEndpoint is satisfied by *gousb.InEndpoint.
type InEndpoint interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

// Halter clears the halt condition of an endpoint.
type Halter interface {
	ClearHalt(endpoint uint8) error
}

// USBConfig configures a USB bulk transport.
type USBConfig struct {
	Channel      Channel
	StallRetries int
	// ReadSize is the bulk-IN request size. Bytes beyond what the caller
	// asked for are kept for the next Read.
	ReadSize int
}

// USBTransport moves bytes over a bulk endpoint pair, one transfer at a time.
type USBTransport struct {
	out     OutEndpoint
	in      InEndpoint
	halter  Halter
	cfg     USBConfig
	logger  *zap.Logger
	mutex   sync.Mutex
	pending []byte
	scratch []byte
	closed  bool
}

// NewUSBTransport wraps an endpoint pair.
func NewUSBTransport(out OutEndpoint, in InEndpoint, halter Halter, cfg USBConfig, logger *zap.Logger) *USBTransport {
	def := DefaultChannel()
	if cfg.Channel.Out == 0 {
		cfg.Channel.Out = def.Out
	}
	if cfg.Channel.In == 0 {
		cfg.Channel.In = def.In
	}
	if cfg.Channel.Timeout <= 0 {
		cfg.Channel.Timeout = def.Timeout
	}
	if cfg.StallRetries < 1 {
		cfg.StallRetries = DefaultStallRetries
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = 512
	}
	return &USBTransport{
		out:     out,
		in:      in,
		halter:  halter,
		cfg:     cfg,
		scratch: make([]byte, cfg.ReadSize),
		logger: logger.With(
			zap.String("component", "transport"),
			zap.String("mode", "sync"),
		),
	}
}

// Write sends p on the bulk-OUT endpoint.
func (t *USBTransport) Write(ctx context.Context, p []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return 0, &Error{Op: "write", Endpoint: t.cfg.Channel.Out, Err: ErrClosed}
	}
	return t.write(ctx, p)
}

func (t *USBTransport) write(ctx context.Context, p []byte) (int, error) {
	ep := t.cfg.Channel.Out
	logTransfer(t.logger, "Bulk write", ep, p)

	n, attempts, err := t.transfer(ctx, ep, t.cfg.Channel.Timeout, func(ctx context.Context) (int, error) {
		return t.out.WriteContext(ctx, p)
	})
	if err != nil {
		return n, &Error{Op: "write", Endpoint: ep, Attempts: attempts, Err: err}
	}
	if n != len(p) {
		return n, &Error{Op: "write", Endpoint: ep, Attempts: attempts,
			Err: fmt.Errorf("%w: wrote %d of %d bytes", ErrShortTransfer, n, len(p))}
	}
	return n, nil
}

// Read returns buffered bytes first, then issues at most one bulk-IN transfer.
func (t *USBTransport) Read(ctx context.Context, p []byte, timeout time.Duration) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	ep := t.cfg.Channel.In
	if t.closed {
		return 0, &Error{Op: "read", Endpoint: ep, Err: ErrClosed}
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}
	if timeout <= 0 {
		timeout = t.cfg.Channel.Timeout
	}

	got, attempts, err := t.transfer(ctx, ep, timeout, func(ctx context.Context) (int, error) {
		return t.in.ReadContext(ctx, t.scratch)
	})
	if err != nil {
		return 0, &Error{Op: "read", Endpoint: ep, Attempts: attempts, Err: err}
	}

	data := t.scratch[:got]
	logTransfer(t.logger, "Bulk read", ep, data)
	n := copy(p, data)
	if n < got {
		t.pending = append(t.pending[:0], data[n:]...)
	}
	return n, nil
}

// Close drops buffered input. The endpoints belong to the device.
func (t *USBTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.closed = true
	t.pending = nil
	return nil
}

// transfer runs fn with stall recovery. Each stall clears the halt before the
// next attempt; a failed clear is only logged. Anything else ends the loop.
func (t *USBTransport) transfer(ctx context.Context, ep uint8, timeout time.Duration, fn func(context.Context) (int, error)) (int, int, error) {
	var n, attempts int
	err := retry.Do(ctx, t.cfg.StallRetries, isStall, func(ctx context.Context, attempt int) error {
		attempts = attempt
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var err error
		n, err = fn(tctx)
		if err == nil {
			return nil
		}

		err = classify(tctx, err)
		if errors.Is(err, ErrStall) {
			t.logger.Warn("Endpoint stalled, clearing halt",
				zap.String("endpoint", hexByte(ep)),
				zap.Int("attempt", attempt),
			)
			if t.halter != nil {
				if herr := t.halter.ClearHalt(ep); herr != nil {
					t.logger.Warn("Clear halt failed, retrying anyway",
						zap.String("endpoint", hexByte(ep)),
						zap.Error(herr),
					)
				}
			}
		}
		return err
	})

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		err = exhausted.Err
	}
	return n, attempts, err
}

func isStall(err error) bool {
	return errors.Is(err, ErrStall)
}

// classify maps libusb results onto the transport sentinels.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, gousb.TransferStall), errors.Is(err, gousb.ErrorPipe):
		return fmt.Errorf("%w: %v", ErrStall, err)
	case errors.Is(err, gousb.TransferTimedOut), errors.Is(err, gousb.ErrorTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, gousb.TransferCancelled) && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}
	return err
}
