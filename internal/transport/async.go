// internal/transport/async.go
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// pollInterval bounds each background bulk-IN request so Close is noticed.
const pollInterval = 100 * time.Millisecond

// AsyncTransport keeps a bulk-IN transfer outstanding in a background
// goroutine and buffers what arrives. Writes go straight to the endpoint.
type AsyncTransport struct {
	writer *USBTransport
	in     InEndpoint
	halter Halter
	cfg    USBConfig
	logger *zap.Logger

	mutex  sync.Mutex
	cond   *sync.Cond
	ring   *ring
	err    error
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAsyncTransport starts the background reader. bufferSize is the ring
// capacity in bytes.
func NewAsyncTransport(out OutEndpoint, in InEndpoint, halter Halter, cfg USBConfig, bufferSize int, logger *zap.Logger) *AsyncTransport {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	writer := NewUSBTransport(out, nil, halter, cfg, logger)
	ctx, cancel := context.WithCancel(context.Background())

	a := &AsyncTransport{
		writer: writer,
		in:     in,
		halter: halter,
		cfg:    writer.cfg,
		ring:   newRing(bufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.With(
			zap.String("component", "transport"),
			zap.String("mode", "async"),
		),
	}
	a.cond = sync.NewCond(&a.mutex)

	go a.readLoop(ctx)
	return a
}

// Write sends p on the bulk-OUT endpoint with stall recovery.
func (a *AsyncTransport) Write(ctx context.Context, p []byte) (int, error) {
	return a.writer.Write(ctx, p)
}

// Read waits up to timeout for buffered input.
func (a *AsyncTransport) Read(ctx context.Context, p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if timeout <= 0 {
		timeout = a.cfg.Channel.Timeout
	}
	deadline := time.Now().Add(timeout)

	wake := func() {
		a.mutex.Lock()
		a.cond.Broadcast()
		a.mutex.Unlock()
	}
	timer := time.AfterFunc(timeout, wake)
	defer timer.Stop()
	stop := context.AfterFunc(ctx, wake)
	defer stop()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	ep := a.cfg.Channel.In
	for a.ring.Len() == 0 {
		switch {
		case a.closed:
			return 0, &Error{Op: "read", Endpoint: ep, Err: ErrClosed}
		case a.err != nil:
			return 0, a.err
		case ctx.Err() != nil:
			return 0, ctx.Err()
		case !time.Now().Before(deadline):
			return 0, &Error{Op: "read", Endpoint: ep, Err: ErrTimeout}
		}
		a.cond.Wait()
	}

	return a.ring.Read(p), nil
}

// Close stops the reader and waits for it to exit.
func (a *AsyncTransport) Close() error {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return nil
	}
	a.closed = true
	a.cond.Broadcast()
	a.mutex.Unlock()

	a.cancel()
	<-a.done
	return a.writer.Close()
}

func (a *AsyncTransport) readLoop(ctx context.Context) {
	defer close(a.done)

	ep := a.cfg.Channel.In
	buf := make([]byte, a.cfg.ReadSize)
	stalls := 0

	for ctx.Err() == nil {
		tctx, cancel := context.WithTimeout(ctx, pollInterval)
		n, err := a.in.ReadContext(tctx, buf)
		cerr := classify(tctx, err)
		cancel()

		if n > 0 {
			logTransfer(a.logger, "Bulk read", ep, buf[:n])
			a.mutex.Lock()
			if dropped := a.ring.Write(buf[:n]); dropped > 0 {
				a.logger.Warn("Receive buffer overflow, oldest bytes dropped", zap.Int("dropped", dropped))
			}
			a.cond.Broadcast()
			a.mutex.Unlock()
		}

		switch {
		case err == nil:
			stalls = 0
		case ctx.Err() != nil:
			return
		case errors.Is(cerr, ErrTimeout):
			// idle line
		case errors.Is(cerr, ErrStall):
			stalls++
			a.logger.Warn("Endpoint stalled, clearing halt",
				zap.String("endpoint", hexByte(ep)),
				zap.Int("attempt", stalls),
			)
			if stalls >= a.cfg.StallRetries {
				a.fail(&Error{Op: "read", Endpoint: ep, Attempts: stalls, Err: cerr})
				return
			}
			if a.halter != nil {
				if herr := a.halter.ClearHalt(ep); herr != nil {
					a.logger.Warn("Clear halt failed, retrying anyway",
						zap.String("endpoint", hexByte(ep)),
						zap.Error(herr),
					)
				}
			}
		default:
			a.fail(&Error{Op: "read", Endpoint: ep, Err: cerr})
			return
		}
	}
}

func (a *AsyncTransport) fail(err error) {
	a.logger.Error("Background reader stopped", zap.Error(err))
	a.mutex.Lock()
	a.err = err
	a.cond.Broadcast()
	a.mutex.Unlock()
}
