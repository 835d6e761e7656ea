package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/gousb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestUSBTransportReadStallRecovery(t *testing.T) {
	ack := []byte{0x02, 0x01, 0x06, 0xF9, 0x03}

	tests := []struct {
		name        string
		stallCount  int
		wantErr     bool
		wantCleared int
	}{
		{"no stall", 0, false, 0},
		{"four stalls then data", 4, false, 4},
		{"five stalls", 5, true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &scriptedIn{steps: append(stalls(tt.stallCount), readStep{data: ack})}
			halter := &countingHalter{}
			tr := NewUSBTransport(&recordingOut{}, in, halter, testConfig(), zaptest.NewLogger(t))

			buf := make([]byte, 16)
			n, err := tr.Read(context.Background(), buf, 0)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Read() error = %v, wantErr %v", err, tt.wantErr)
			}
			if halter.count() != tt.wantCleared {
				t.Errorf("halts cleared = %d, want %d", halter.count(), tt.wantCleared)
			}
			for _, ep := range halter.cleared {
				if ep != DefaultInEndpoint {
					t.Errorf("cleared endpoint 0x%02x, want 0x81", ep)
				}
			}

			if tt.wantErr {
				var terr *Error
				if !errors.As(err, &terr) {
					t.Fatalf("error %T is not *Error", err)
				}
				if terr.Attempts != DefaultStallRetries || !errors.Is(err, ErrStall) {
					t.Errorf("error = %+v, want stall after %d attempts", terr, DefaultStallRetries)
				}
				return
			}
			if !bytes.Equal(buf[:n], ack) {
				t.Errorf("Read() = % x, want % x", buf[:n], ack)
			}
		})
	}
}

func TestUSBTransportWriteStallRecovery(t *testing.T) {
	out := &recordingOut{errs: []error{gousb.ErrorPipe, gousb.TransferStall, nil}}
	halter := &countingHalter{}
	tr := NewUSBTransport(out, &scriptedIn{}, halter, testConfig(), zaptest.NewLogger(t))

	frame := []byte{0x01, 0x01, 0x00, 0xFF, 0x03}
	n, err := tr.Write(context.Background(), frame)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(frame) {
		t.Errorf("Write() = %d, want %d", n, len(frame))
	}
	if halter.count() != 2 || halter.cleared[0] != DefaultOutEndpoint {
		t.Errorf("cleared = %v, want two clears of 0x02", halter.cleared)
	}
	if len(out.writes) != 1 || !bytes.Equal(out.writes[0], frame) {
		t.Errorf("writes = %x", out.writes)
	}
}

func TestUSBTransportNonStallErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantTimeout bool
	}{
		{"timed out", gousb.TransferTimedOut, true},
		{"libusb timeout", gousb.ErrorTimeout, true},
		{"no device", gousb.ErrorNoDevice, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &scriptedIn{steps: []readStep{{err: tt.err}, {data: []byte{1}}}}
			halter := &countingHalter{}
			tr := NewUSBTransport(&recordingOut{}, in, halter, testConfig(), zaptest.NewLogger(t))

			_, err := tr.Read(context.Background(), make([]byte, 4), 0)
			if err == nil {
				t.Fatal("Read() expected error")
			}
			if in.calls != 1 {
				t.Errorf("endpoint calls = %d, want 1", in.calls)
			}
			if halter.count() != 0 {
				t.Errorf("halts cleared = %d, want 0", halter.count())
			}
			if IsTimeout(err) != tt.wantTimeout {
				t.Errorf("IsTimeout(%v) = %v, want %v", err, IsTimeout(err), tt.wantTimeout)
			}
		})
	}
}

func TestUSBTransportShortWrite(t *testing.T) {
	out := &recordingOut{short: 1}
	tr := NewUSBTransport(out, &scriptedIn{}, nil, testConfig(), zaptest.NewLogger(t))

	_, err := tr.Write(context.Background(), []byte{1, 2, 3})
	if !errors.Is(err, ErrShortTransfer) {
		t.Errorf("Write() error = %v, want ErrShortTransfer", err)
	}
}

func TestUSBTransportKeepsSurplusBytes(t *testing.T) {
	in := &scriptedIn{steps: []readStep{{data: []byte{0x02, 0x01, 0x06, 0xF9, 0x03}}}}
	tr := NewUSBTransport(&recordingOut{}, in, nil, testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	head := make([]byte, 2)
	if n, err := tr.Read(ctx, head, 0); err != nil || n != 2 {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	rest := make([]byte, 3)
	if n, err := tr.Read(ctx, rest, 0); err != nil || n != 3 {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	if in.calls != 1 {
		t.Errorf("endpoint calls = %d, want 1", in.calls)
	}
	if !bytes.Equal(append(head, rest...), []byte{0x02, 0x01, 0x06, 0xF9, 0x03}) {
		t.Errorf("bytes = % x % x", head, rest)
	}
}

func TestReadFullSkipsEmptyReads(t *testing.T) {
	in := &scriptedIn{steps: []readStep{
		{data: []byte{0x06}},
		{data: []byte{}},
		{data: []byte{}},
		{data: []byte{0xF9, 0x03}},
	}}
	tr := NewUSBTransport(&recordingOut{}, in, nil, testConfig(), zaptest.NewLogger(t))

	buf := make([]byte, 3)
	n, err := ReadFull(context.Background(), tr, buf, 0)
	if err != nil || n != 3 {
		t.Fatalf("ReadFull() = %d, %v", n, err)
	}
	if !bytes.Equal(buf, []byte{0x06, 0xF9, 0x03}) {
		t.Errorf("ReadFull() = % x", buf)
	}
}

func TestUSBTransportClosed(t *testing.T) {
	tr := NewUSBTransport(&recordingOut{}, &scriptedIn{}, nil, testConfig(), zaptest.NewLogger(t))
	tr.Close()

	if _, err := tr.Write(context.Background(), []byte{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() error = %v, want ErrClosed", err)
	}
	if _, err := tr.Read(context.Background(), make([]byte, 1), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() error = %v, want ErrClosed", err)
	}
}

func TestUSBTransportClearHaltFailureKeepsRetrying(t *testing.T) {
	ack := []byte{0x02, 0x01, 0x06, 0xF9, 0x03}
	in := &scriptedIn{steps: append(stalls(2), readStep{data: ack})}
	halter := &countingHalter{err: gousb.ErrorIO}
	core, logs := observer.New(zapcore.WarnLevel)
	tr := NewUSBTransport(&recordingOut{}, in, halter, testConfig(), zap.New(core))

	buf := make([]byte, 16)
	n, err := tr.Read(context.Background(), buf, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(buf[:n], ack) {
		t.Errorf("Read() = % x, want % x", buf[:n], ack)
	}
	if halter.count() != 2 {
		t.Errorf("halts cleared = %d, want 2", halter.count())
	}
	if got := logs.FilterMessage("Clear halt failed, retrying anyway").Len(); got != 2 {
		t.Errorf("clear halt warnings = %d, want 2", got)
	}
}

func TestUSBTransportDefaultsChannel(t *testing.T) {
	in := &scriptedIn{steps: stalls(1)}
	halter := &countingHalter{}
	tr := NewUSBTransport(&recordingOut{}, in, halter, USBConfig{}, zaptest.NewLogger(t))

	if _, err := tr.Read(context.Background(), make([]byte, 4), 0); !IsTimeout(err) {
		t.Fatalf("Read() error = %v, want timeout after the stall", err)
	}
	if len(halter.cleared) != 1 || halter.cleared[0] != DefaultInEndpoint {
		t.Errorf("cleared = %v, want 0x81", halter.cleared)
	}

	tr.Close()
	_, err := tr.Write(context.Background(), []byte{1})
	var terr *Error
	if !errors.As(err, &terr) || terr.Endpoint != DefaultOutEndpoint {
		t.Errorf("Write() after Close error = %v, want error on 0x02", err)
	}
}
