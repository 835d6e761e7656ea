// internal/transport/serial.go
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialPort is the part of serial.Port the transport needs.
type SerialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialTransport carries frames through a tty, for hosts where the kernel
// upd78f0730 driver already owns the bridge.
type SerialTransport struct {
	port    SerialPort
	name    string
	timeout time.Duration
	logger  *zap.Logger
	mutex   sync.Mutex
}

// OpenSerial opens portName at 9600 8N1, the target's power-on line setting.
func OpenSerial(portName string, timeout time.Duration, logger *zap.Logger) (serial.Port, *SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return port, NewSerialTransport(port, portName, timeout, logger), nil
}

// NewSerialTransport wraps an open port.
func NewSerialTransport(port SerialPort, name string, timeout time.Duration, logger *zap.Logger) *SerialTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SerialTransport{
		port:    port,
		name:    name,
		timeout: timeout,
		logger: logger.With(
			zap.String("component", "transport"),
			zap.String("mode", "serial"),
			zap.String("port", name),
		),
	}
}

// Write sends p to the tty.
func (s *SerialTransport) Write(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logTransfer(s.logger, "Serial write", DefaultOutEndpoint, p)
	n, err := s.port.Write(p)
	if err != nil {
		return n, &Error{Op: "write", Endpoint: DefaultOutEndpoint, Err: err}
	}
	if n != len(p) {
		return n, &Error{Op: "write", Endpoint: DefaultOutEndpoint,
			Err: fmt.Errorf("%w: wrote %d of %d bytes", ErrShortTransfer, n, len(p))}
	}
	return n, nil
}

// Read waits up to timeout for input. No input within timeout is ErrTimeout.
func (s *SerialTransport) Read(ctx context.Context, p []byte, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if timeout <= 0 {
		timeout = s.timeout
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.port.SetReadTimeout(timeout); err != nil {
		return 0, &Error{Op: "read", Endpoint: DefaultInEndpoint, Err: err}
	}
	n, err := s.port.Read(p)
	if err != nil {
		return n, &Error{Op: "read", Endpoint: DefaultInEndpoint, Err: err}
	}
	if n == 0 {
		return 0, &Error{Op: "read", Endpoint: DefaultInEndpoint, Err: ErrTimeout}
	}
	logTransfer(s.logger, "Serial read", DefaultInEndpoint, p[:n])
	return n, nil
}

// Close closes the port.
func (s *SerialTransport) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.port.Close()
}
