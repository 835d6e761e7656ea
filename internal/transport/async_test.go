package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap/zaptest"
)

func TestAsyncTransportDeliversChunks(t *testing.T) {
	in := newChanIn()
	tr := NewAsyncTransport(&recordingOut{}, in, nil, testConfig(), 4096, zaptest.NewLogger(t))
	defer tr.Close()

	in.steps <- readStep{data: []byte{0x02, 0x01}}
	in.steps <- readStep{data: []byte{0x06, 0xF9, 0x03}}

	buf := make([]byte, 5)
	n, err := ReadFull(context.Background(), tr, buf, time.Second)
	if err != nil || n != 5 {
		t.Fatalf("ReadFull() = %d, %v", n, err)
	}
	if !bytes.Equal(buf, []byte{0x02, 0x01, 0x06, 0xF9, 0x03}) {
		t.Errorf("ReadFull() = % x", buf)
	}
}

func TestAsyncTransportReadTimeout(t *testing.T) {
	tr := NewAsyncTransport(&recordingOut{}, newChanIn(), nil, testConfig(), 4096, zaptest.NewLogger(t))
	defer tr.Close()

	start := time.Now()
	_, err := tr.Read(context.Background(), make([]byte, 1), 30*time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("Read() error = %v, want timeout", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Errorf("Read() returned after %v, before the timeout", time.Since(start))
	}
}

func TestAsyncTransportStallRecovery(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		in := newChanIn()
		halter := &countingHalter{}
		for i := 0; i < 4; i++ {
			in.steps <- readStep{err: gousb.TransferStall}
		}
		in.steps <- readStep{data: []byte{0x06}}

		tr := NewAsyncTransport(&recordingOut{}, in, halter, testConfig(), 4096, zaptest.NewLogger(t))
		defer tr.Close()

		buf := make([]byte, 1)
		if _, err := tr.Read(context.Background(), buf, time.Second); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if halter.count() != 4 {
			t.Errorf("halts cleared = %d, want 4", halter.count())
		}
	})

	t.Run("clear halt fails", func(t *testing.T) {
		in := newChanIn()
		halter := &countingHalter{err: gousb.ErrorIO}
		in.steps <- readStep{err: gousb.TransferStall}
		in.steps <- readStep{data: []byte{0x06}}

		tr := NewAsyncTransport(&recordingOut{}, in, halter, testConfig(), 4096, zaptest.NewLogger(t))
		defer tr.Close()

		buf := make([]byte, 1)
		if _, err := tr.Read(context.Background(), buf, time.Second); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if buf[0] != 0x06 || halter.count() != 1 {
			t.Errorf("read % x after %d clears, want 06 after 1", buf, halter.count())
		}
	})

	t.Run("gives up", func(t *testing.T) {
		in := newChanIn()
		for i := 0; i < 5; i++ {
			in.steps <- readStep{err: gousb.TransferStall}
		}

		tr := NewAsyncTransport(&recordingOut{}, in, &countingHalter{}, testConfig(), 4096, zaptest.NewLogger(t))
		defer tr.Close()

		_, err := tr.Read(context.Background(), make([]byte, 1), time.Second)
		if !errors.Is(err, ErrStall) {
			t.Fatalf("Read() error = %v, want ErrStall", err)
		}
	})
}

func TestAsyncTransportCancel(t *testing.T) {
	tr := NewAsyncTransport(&recordingOut{}, newChanIn(), nil, testConfig(), 4096, zaptest.NewLogger(t))
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := tr.Read(ctx, make([]byte, 1), 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestAsyncTransportClose(t *testing.T) {
	tr := NewAsyncTransport(&recordingOut{}, newChanIn(), nil, testConfig(), 4096, zaptest.NewLogger(t))
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := tr.Read(context.Background(), make([]byte, 1), time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() error = %v, want ErrClosed", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestAsyncTransportWrite(t *testing.T) {
	out := &recordingOut{}
	tr := NewAsyncTransport(out, newChanIn(), nil, testConfig(), 4096, zaptest.NewLogger(t))
	defer tr.Close()

	if _, err := tr.Write(context.Background(), []byte{0x00}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(out.writes) != 1 {
		t.Errorf("writes = %d, want 1", len(out.writes))
	}
}
