package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakePort struct {
	reads   [][]byte
	written bytes.Buffer
	timeout time.Duration
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, nil
	}
	n := copy(b, p.reads[0])
	p.reads = p.reads[1:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func TestSerialTransport(t *testing.T) {
	port := &fakePort{reads: [][]byte{{0x02, 0x01}, {0x06, 0xF9, 0x03}}}
	tr := NewSerialTransport(port, "/dev/ttyUSB0", time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	if _, err := tr.Write(ctx, []byte{0x01, 0x01, 0x00, 0xFF, 0x03}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if port.written.Len() != 5 {
		t.Errorf("written = %d bytes", port.written.Len())
	}

	buf := make([]byte, 5)
	if _, err := ReadFull(ctx, tr, buf, 250*time.Millisecond); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	if port.timeout != 250*time.Millisecond {
		t.Errorf("read timeout = %v", port.timeout)
	}

	if _, err := tr.Read(ctx, buf, 0); !IsTimeout(err) {
		t.Errorf("Read() on idle port error = %v, want timeout", err)
	}
	if port.timeout != time.Second {
		t.Errorf("default read timeout = %v, want 1s", port.timeout)
	}

	if err := tr.Close(); err != nil || !port.closed {
		t.Errorf("Close() = %v, closed = %v", err, port.closed)
	}
}

func TestSerialTransportCancelled(t *testing.T) {
	tr := NewSerialTransport(&fakePort{}, "tty", time.Second, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Write(ctx, []byte{0}); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v", err)
	}
}
