// internal/bridge/serial.go
package bridge

import (
	"context"
	"fmt"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// ModemPort is the part of serial.Port used for line settings.
type ModemPort interface {
	SetMode(mode *serial.Mode) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// SerialController applies bridge requests through a tty when the kernel
// driver owns the chip. Requests the tty layer has no equivalent for are
// accepted and logged.
type SerialController struct {
	port   ModemPort
	logger *zap.Logger
}

// NewSerialController wraps an open port.
func NewSerialController(port ModemPort, logger *zap.Logger) *SerialController {
	return &SerialController{
		port:   port,
		logger: logger.With(zap.String("component", "bridge"), zap.String("mode", "serial")),
	}
}

// SetLineControl maps the configuration onto serial.Mode.
func (s *SerialController) SetLineControl(ctx context.Context, cfg LineConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mode, err := SerialMode(cfg)
	if err != nil {
		return fmt.Errorf("line control: %w", err)
	}
	if err := s.port.SetMode(mode); err != nil {
		return fmt.Errorf("line control: %w", err)
	}
	return nil
}

// SetDTRRTS sets both modem lines.
func (s *SerialController) SetDTRRTS(ctx context.Context, dtr, rts bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.port.SetDTR(dtr); err != nil {
		return fmt.Errorf("set DTR: %w", err)
	}
	if err := s.port.SetRTS(rts); err != nil {
		return fmt.Errorf("set RTS: %w", err)
	}
	return nil
}

// SetDTRRTSBits sets the modem lines from a raw bit-field.
func (s *SerialController) SetDTRRTSBits(ctx context.Context, bits byte) error {
	return s.SetDTRRTS(ctx, bits&dtrBit != 0, bits&rtsBit != 0)
}

// SetXonXoffChars has no tty equivalent.
func (s *SerialController) SetXonXoffChars(ctx context.Context, xon, xoff byte) error {
	s.logger.Debug("Ignoring XON/XOFF characters", zap.Uint8("xon", xon), zap.Uint8("xoff", xoff))
	return ctx.Err()
}

// SetOpenClose has no tty equivalent; the port is open while the file is.
func (s *SerialController) SetOpenClose(ctx context.Context, open bool) error {
	s.logger.Debug("Ignoring open/close", zap.Bool("open", open))
	return ctx.Err()
}

// SetErrChar has no tty equivalent.
func (s *SerialController) SetErrChar(ctx context.Context, enabled bool, ch byte) error {
	s.logger.Debug("Ignoring error character", zap.Bool("enabled", enabled), zap.Uint8("char", ch))
	return ctx.Err()
}

// SerialMode converts a LineConfig. Flow control is handled by the kernel
// driver and is not part of serial.Mode.
func SerialMode(cfg LineConfig) (*serial.Mode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: int(cfg.BaudRate),
		DataBits: int(cfg.DataSize),
	}

	switch cfg.Parity {
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	if cfg.StopBits == StopBits2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}

	return mode, nil
}
