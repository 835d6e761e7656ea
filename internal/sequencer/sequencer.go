// internal/sequencer/sequencer.go
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"v850-service/internal/bridge"
	"v850-service/internal/frame"
	"v850-service/internal/retry"
	"v850-service/internal/transport"
)

// DefaultConfirmAttempts bounds the RESET/ACK exchanges after a baud switch.
const DefaultConfirmAttempts = 16

// Operation names used in errors and logs.
const (
	OpOpen          = "open"
	OpReset         = "reset"
	OpIdentify      = "silicon_signature"
	OpOscillatorSet = "oscillator_set"
	OpBaudRateSet   = "baud_rate_set"
	OpBringUp       = "bringup"
)

// Sequencer drives the target from power-on into the command phase.
type Sequencer struct {
	bridge          bridge.Bridge
	codec           *frame.Codec
	timing          Timing
	sleep           SleepFunc
	confirmAttempts int
	logger          *zap.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithSleep replaces the wait function.
func WithSleep(fn SleepFunc) Option {
	return func(s *Sequencer) { s.sleep = fn }
}

// WithConfirmAttempts sets the baud switch confirmation budget.
func WithConfirmAttempts(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.confirmAttempts = n
		}
	}
}

// WithTiming sets the oscillator-derived wait times.
func WithTiming(t Timing) Option {
	return func(s *Sequencer) { s.timing = t }
}

// New creates a sequencer over a bridge and a codec sharing one device.
func New(b bridge.Bridge, codec *frame.Codec, logger *zap.Logger, opts ...Option) *Sequencer {
	s := &Sequencer{
		bridge:          b,
		codec:           codec,
		timing:          NewTiming(DefaultOscillatorHz),
		sleep:           Sleep,
		confirmAttempts: DefaultConfirmAttempts,
		logger:          logger.With(zap.String("component", "sequencer")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timing returns the current wait times.
func (s *Sequencer) Timing() Timing {
	return s.timing
}

// Open runs the bridge power-on script: open the UART, pulse the modem
// lines, drain stale input and settle on 9600 8N1.
func (s *Sequencer) Open(ctx context.Context) error {
	s.logger.Info("Opening bridge UART")

	if err := s.bridge.SetOpenClose(ctx, true); err != nil {
		return fmt.Errorf("%s: %w", OpOpen, err)
	}
	if err := s.bridge.SetDTRRTS(ctx, true, true); err != nil {
		return fmt.Errorf("%s: %w", OpOpen, err)
	}
	s.drain(ctx)

	if err := s.runScript(ctx, powerOnScript(bridge.Line8N1(9600))); err != nil {
		return fmt.Errorf("%s: %w", OpOpen, err)
	}
	return nil
}

// Close closes the bridge UART.
func (s *Sequencer) Close(ctx context.Context) error {
	s.logger.Info("Closing bridge UART")
	if err := s.bridge.SetOpenClose(ctx, false); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Reset sends the two-byte low pulse followed by a RESET command.
func (s *Sequencer) Reset(ctx context.Context) error {
	s.logger.Info("Resetting target",
		zap.Duration("t12", s.timing.T12()),
		zap.Duration("t2C", s.timing.T2C()),
	)

	if err := s.sleep(ctx, s.timing.TCOM()); err != nil {
		return err
	}
	if err := s.pulse(ctx, "first"); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.timing.T12()); err != nil {
		return err
	}
	if err := s.pulse(ctx, "second"); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.timing.T2C()); err != nil {
		return err
	}

	_, err := s.expectACK(ctx, OpReset, frame.CmdReset, nil)
	return err
}

// Identify reads the silicon signature.
func (s *Sequencer) Identify(ctx context.Context) (*SiliconSignature, error) {
	if err := s.sleep(ctx, s.timing.TCOM()); err != nil {
		return nil, err
	}
	if _, err := s.expectACK(ctx, OpIdentify, frame.CmdSiliconSignature, nil); err != nil {
		return nil, err
	}

	f, err := s.codec.ReceiveDataFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpIdentify, err)
	}
	sig, err := ParseSiliconSignature(f.Payload)
	if err != nil {
		return nil, &ProtocolError{Operation: OpIdentify, Err: err}
	}

	s.logger.Info("Silicon signature",
		zap.String("device", sig.DeviceName),
		zap.Uint8("vendor", sig.VendorCode),
		zap.String("raw", sig.RawHex()),
	)
	return sig, nil
}

// SetOscillatorFrequency tells the target its oscillator frequency and
// rederives the wait times from it.
func (s *Sequencer) SetOscillatorFrequency(ctx context.Context, hz uint32) error {
	payload, err := EncodeOscillatorFrequency(hz)
	if err != nil {
		return err
	}

	if err := s.sleep(ctx, s.timing.TCOM()); err != nil {
		return err
	}
	if _, err := s.expectACK(ctx, OpOscillatorSet, frame.CmdOscFrequencySet, payload); err != nil {
		return err
	}

	s.timing = NewTiming(hz)
	s.logger.Info("Oscillator frequency set", zap.Uint32("hz", hz))
	return nil
}

// SetBaudRate switches the target and the bridge to rate, then keeps
// sending RESET until the target acknowledges at the new rate.
func (s *Sequencer) SetBaudRate(ctx context.Context, rate uint32) error {
	code := BaudRateCode(rate)
	if effective := EffectiveBaudRate(rate); effective != rate {
		s.logger.Warn("Unsupported baud rate, target will use 9600", zap.Uint32("requested", rate))
		rate = effective
	}

	if err := s.sleep(ctx, s.timing.TCOM()); err != nil {
		return err
	}
	if _, err := s.expectACK(ctx, OpBaudRateSet, frame.CmdBaudRateSet, []byte{code}); err != nil {
		return err
	}

	if err := s.runScript(ctx, baudSwitchScript(bridge.Line8N1(rate))); err != nil {
		return fmt.Errorf("%s: %w", OpBaudRateSet, err)
	}
	if err := s.sleep(ctx, s.timing.TWT10()); err != nil {
		return err
	}

	var last error
	err := retry.Do(ctx, s.confirmAttempts, retry.Always, func(ctx context.Context, attempt int) error {
		_, err := s.expectACK(ctx, OpBaudRateSet, frame.CmdReset, nil)
		if err != nil {
			last = err
			s.logger.Debug("Baud rate not confirmed yet", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if !errors.As(err, &exhausted) {
			return err
		}
		pe := &ProtocolError{Operation: OpBaudRateSet, Err: err}
		var lastPE *ProtocolError
		if errors.As(last, &lastPE) {
			pe.Status = lastPE.Status
		}
		return pe
	}

	s.logger.Info("Baud rate set", zap.Uint32("baud_rate", rate))
	return nil
}

// BringUpOptions selects the optional steps of BringUp.
type BringUpOptions struct {
	// OscillatorHz is announced to the target when non-zero.
	OscillatorHz uint32
	// BaudRate is switched to when non-zero and not 9600.
	BaudRate uint32
}

// Report summarizes a completed bring-up.
type Report struct {
	Signature    *SiliconSignature `json:"signature"`
	OscillatorHz uint32            `json:"oscillator_hz"`
	BaudRate     uint32            `json:"baud_rate"`
	Duration     time.Duration     `json:"duration"`
}

// BringUp takes a freshly powered target to an identified, ready state.
func (s *Sequencer) BringUp(ctx context.Context, opts BringUpOptions) (*Report, error) {
	start := time.Now()
	report := &Report{OscillatorHz: s.timing.OscillatorHz, BaudRate: 9600}

	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	if err := s.Reset(ctx); err != nil {
		return nil, err
	}
	if opts.OscillatorHz != 0 {
		if err := s.SetOscillatorFrequency(ctx, opts.OscillatorHz); err != nil {
			return nil, err
		}
		report.OscillatorHz = opts.OscillatorHz
	}
	if opts.BaudRate != 0 && opts.BaudRate != 9600 {
		if err := s.SetBaudRate(ctx, opts.BaudRate); err != nil {
			return nil, err
		}
		report.BaudRate = EffectiveBaudRate(opts.BaudRate)
	}

	sig, err := s.Identify(ctx)
	if err != nil {
		return nil, err
	}
	report.Signature = sig
	report.Duration = time.Since(start)
	return report, nil
}

// expectACK sends one command and requires an ACK status frame.
func (s *Sequencer) expectACK(ctx context.Context, op string, cmd frame.Command, payload []byte) (*frame.DataFrame, error) {
	if err := s.codec.SendCommand(ctx, cmd, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f, err := s.codec.ReceiveDataFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if f.Status() != frame.StatusACK {
		return f, &ProtocolError{Operation: op, Status: f.Status()}
	}
	return f, nil
}

func (s *Sequencer) pulse(ctx context.Context, which string) error {
	if _, err := s.codec.Transport().Write(ctx, []byte{0x00}); err != nil {
		return fmt.Errorf("%s: %s reset pulse: %w", OpReset, which, err)
	}
	return nil
}

// drain discards whatever the bridge buffered before the UART was configured.
func (s *Sequencer) drain(ctx context.Context) {
	buf := make([]byte, 0x200)
	n, err := s.codec.Transport().Read(ctx, buf, time.Millisecond)
	if err != nil && !transport.IsTimeout(err) {
		s.logger.Debug("Drain read failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("Discarded stale input", zap.Int("bytes", n))
	}
}
