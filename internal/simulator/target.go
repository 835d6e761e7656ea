// Package simulator emulates a V850ES/Jx3-L in flash mode behind a
// uPD78F0730 bridge. It implements both the transport and the bridge
// interfaces so a sequencer can run without hardware.
package simulator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"v850-service/internal/bridge"
	"v850-service/internal/frame"
	"v850-service/internal/transport"
)

// DefaultDeviceName is reported in the simulated silicon signature.
const DefaultDeviceName = "UPD70F3746"

// ControlCall records one bridge request.
type ControlCall struct {
	Request string
	Line    bridge.LineConfig
	DTR     bool
	RTS     bool
	Xon     byte
	Xoff    byte
	Open    bool
}

// Target is a simulated target. The zero value is not usable; call New.
type Target struct {
	mutex sync.Mutex

	signature []byte
	queued    map[frame.Command][]frame.Status
	silent    map[frame.Command]int

	// line state
	open       bool
	hostBaud   uint32
	targetBaud uint32

	inbuf    []byte
	outbuf   []byte
	pulses   int
	commands []frame.Command
	payloads [][]byte
	controls []ControlCall
	closed   bool

	logger *zap.Logger
}

// New creates a target at 9600 baud reporting DefaultDeviceName.
func New(logger *zap.Logger) *Target {
	return &Target{
		signature:  Signature(DefaultDeviceName),
		queued:     make(map[frame.Command][]frame.Status),
		silent:     make(map[frame.Command]int),
		hostBaud:   9600,
		targetBaud: 9600,
		logger:     logger.With(zap.String("component", "simulator")),
	}
}

// Signature builds a signature payload for name with parity bits set on
// odd-weight characters, as the real device does.
func Signature(name string) []byte {
	sig := []byte{
		0x10,             // VEN: NEC/Renesas
		0x7F, 0x04, 0x00, // MET, MSC, DEC
		0xFF, 0xFF, 0x03, // END: 0x03FFFF
	}
	dev := make([]byte, 10)
	for i := range dev {
		c := byte(' ')
		if i < len(name) {
			c = name[i]
		}
		dev[i] = withParity(c)
	}
	sig = append(sig, dev...)
	return append(sig, 0x00, 0x03) // SCF, BOT
}

func withParity(c byte) byte {
	ones := 0
	for b := c; b != 0; b >>= 1 {
		ones += int(b & 1)
	}
	if ones%2 == 1 {
		return c | 0x80
	}
	return c
}

// SetSignature replaces the signature payload.
func (t *Target) SetSignature(payload []byte) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.signature = append([]byte(nil), payload...)
}

// QueueStatus makes the next replies to cmd use statuses, in order. Once
// the queue is empty the target answers ACK.
func (t *Target) QueueStatus(cmd frame.Command, statuses ...frame.Status) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.queued[cmd] = append(t.queued[cmd], statuses...)
}

// Ignore makes the target drop the next n frames carrying cmd.
func (t *Target) Ignore(cmd frame.Command, n int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.silent[cmd] += n
}

// Pulses returns how many lone reset bytes were received.
func (t *Target) Pulses() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.pulses
}

// Commands returns the commands received so far.
func (t *Target) Commands() []frame.Command {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([]frame.Command(nil), t.commands...)
}

// Payloads returns the payloads of the commands received so far.
func (t *Target) Payloads() [][]byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([][]byte(nil), t.payloads...)
}

// Controls returns the bridge requests received so far.
func (t *Target) Controls() []ControlCall {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([]ControlCall(nil), t.controls...)
}

// BaudRates returns the host and target line rates.
func (t *Target) BaudRates() (host, target uint32) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.hostBaud, t.targetBaud
}

// Write accepts reset pulses and command frames.
func (t *Target) Write(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return 0, &transport.Error{Op: "write", Endpoint: transport.DefaultOutEndpoint, Err: transport.ErrClosed}
	}
	if len(t.inbuf) == 0 && len(p) == 1 && p[0] == 0x00 {
		t.pulses++
		return 1, nil
	}

	t.inbuf = append(t.inbuf, p...)
	t.consume()
	return len(p), nil
}

// Read returns pending reply bytes or times out immediately.
func (t *Target) Read(ctx context.Context, p []byte, _ time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return 0, &transport.Error{Op: "read", Endpoint: transport.DefaultInEndpoint, Err: transport.ErrClosed}
	}
	if len(t.outbuf) == 0 {
		return 0, &transport.Error{Op: "read", Endpoint: transport.DefaultInEndpoint, Err: transport.ErrTimeout}
	}
	n := copy(p, t.outbuf)
	t.outbuf = t.outbuf[n:]
	return n, nil
}

// Close marks the target closed.
func (t *Target) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.closed = true
	return nil
}

// consume decodes every complete frame in inbuf.
func (t *Target) consume() {
	for len(t.inbuf) > 0 {
		if t.inbuf[0] != frame.SOH {
			t.inbuf = t.inbuf[1:]
			continue
		}
		if len(t.inbuf) < 2 {
			return
		}
		n := int(t.inbuf[1])
		if n == 0 {
			n = 256
		}
		size := n + 4
		if len(t.inbuf) < size {
			return
		}

		raw := t.inbuf[:size]
		t.inbuf = t.inbuf[size:]

		cmd, payload, err := frame.DecodeCommand(raw)
		if err != nil {
			t.logger.Debug("Dropping malformed frame", zap.Error(err))
			t.reply(frame.StatusChecksumError)
			continue
		}
		t.handle(cmd, payload)
	}
}

func (t *Target) handle(cmd frame.Command, payload []byte) {
	t.commands = append(t.commands, cmd)
	t.payloads = append(t.payloads, payload)

	if t.silent[cmd] > 0 {
		t.silent[cmd]--
		return
	}
	// Bytes at the wrong rate never form a frame on the target side.
	if t.hostBaud != t.targetBaud || !t.open {
		return
	}

	status := frame.StatusACK
	if q := t.queued[cmd]; len(q) > 0 {
		status = q[0]
		t.queued[cmd] = q[1:]
	}
	t.reply(status)
	if status != frame.StatusACK {
		return
	}

	switch cmd {
	case frame.CmdSiliconSignature:
		t.data(t.signature)
	case frame.CmdBaudRateSet:
		if len(payload) == 1 {
			t.targetBaud = baudFromCode(payload[0])
		}
	}
}

func (t *Target) reply(status frame.Status) {
	t.data([]byte{byte(status)})
}

func (t *Target) data(payload []byte) {
	raw, err := frame.EncodeData(payload)
	if err != nil {
		t.logger.Error("Cannot encode reply", zap.Error(err))
		return
	}
	t.outbuf = append(t.outbuf, raw...)
}

func baudFromCode(code byte) uint32 {
	switch code {
	case 0x04:
		return 19200
	case 0x05:
		return 31250
	case 0x06:
		return 38400
	case 0x07:
		return 76800
	case 0x08:
		return 153600
	case 0x09:
		return 57600
	case 0x0A:
		return 115200
	case 0x0B:
		return 128000
	default:
		return 9600
	}
}

// SetLineControl records the host side line rate.
func (t *Target) SetLineControl(ctx context.Context, cfg bridge.LineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return t.control(ctx, ControlCall{Request: "line_control", Line: cfg}, func() {
		t.hostBaud = cfg.BaudRate
	})
}

// SetDTRRTS records the modem lines.
func (t *Target) SetDTRRTS(ctx context.Context, dtr, rts bool) error {
	return t.control(ctx, ControlCall{Request: "dtr_rts", DTR: dtr, RTS: rts}, nil)
}

// SetDTRRTSBits records the modem lines from a bit-field.
func (t *Target) SetDTRRTSBits(ctx context.Context, bits byte) error {
	return t.SetDTRRTS(ctx, bits&0x02 != 0, bits&0x01 != 0)
}

// SetXonXoffChars records the flow control characters.
func (t *Target) SetXonXoffChars(ctx context.Context, xon, xoff byte) error {
	return t.control(ctx, ControlCall{Request: "xon_xoff", Xon: xon, Xoff: xoff}, nil)
}

// SetOpenClose opens or closes the simulated UART.
func (t *Target) SetOpenClose(ctx context.Context, open bool) error {
	return t.control(ctx, ControlCall{Request: "open_close", Open: open}, func() {
		t.open = open
	})
}

// SetErrChar records the request.
func (t *Target) SetErrChar(ctx context.Context, enabled bool, ch byte) error {
	return t.control(ctx, ControlCall{Request: "err_char"}, nil)
}

func (t *Target) control(ctx context.Context, call ControlCall, apply func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.controls = append(t.controls, call)
	if apply != nil {
		apply()
	}
	return nil
}
