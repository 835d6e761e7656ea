// internal/bridge/controller.go
package bridge

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// Vendor request addressing of the uPD78F0730.
const (
	RequestType = uint8(gousb.ControlOut) | uint8(gousb.ControlVendor) | uint8(gousb.ControlDevice)
	Request     = 0x00
)

// Bridge drives the UART side of the bridge chip.
type Bridge interface {
	SetLineControl(ctx context.Context, cfg LineConfig) error
	SetDTRRTS(ctx context.Context, dtr, rts bool) error
	SetDTRRTSBits(ctx context.Context, bits byte) error
	SetXonXoffChars(ctx context.Context, xon, xoff byte) error
	SetOpenClose(ctx context.Context, open bool) error
	SetErrChar(ctx context.Context, enabled bool, ch byte) error
}

// ControlDevice is satisfied by *gousb.Device.
type ControlDevice interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// Controller issues one vendor control transfer per call.
type Controller struct {
	dev    ControlDevice
	logger *zap.Logger
}

// NewController wraps a device handle.
func NewController(dev ControlDevice, logger *zap.Logger) *Controller {
	return &Controller{
		dev:    dev,
		logger: logger.With(zap.String("component", "bridge")),
	}
}

// SetLineControl sends the full UART configuration.
func (c *Controller) SetLineControl(ctx context.Context, cfg LineConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("line control: %w", err)
	}
	return c.send(ctx, "line_control", EncodeLineControl(cfg))
}

// SetDTRRTS sets both modem lines.
func (c *Controller) SetDTRRTS(ctx context.Context, dtr, rts bool) error {
	return c.send(ctx, "dtr_rts", EncodeDTRRTS(dtr, rts))
}

// SetDTRRTSBits sets the modem lines from a raw bit-field.
func (c *Controller) SetDTRRTSBits(ctx context.Context, bits byte) error {
	return c.send(ctx, "dtr_rts", EncodeDTRRTSBits(bits))
}

// SetXonXoffChars sets the software flow control characters.
func (c *Controller) SetXonXoffChars(ctx context.Context, xon, xoff byte) error {
	return c.send(ctx, "xon_xoff", EncodeXonXoff(xon, xoff))
}

// SetOpenClose opens or closes the UART.
func (c *Controller) SetOpenClose(ctx context.Context, open bool) error {
	return c.send(ctx, "open_close", EncodeOpenClose(open))
}

// SetErrChar configures error character substitution.
func (c *Controller) SetErrChar(ctx context.Context, enabled bool, ch byte) error {
	return c.send(ctx, "err_char", EncodeErrChar(enabled, ch))
}

func (c *Controller) send(ctx context.Context, name string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Debug("Control request",
		zap.String("request", name),
		zap.String("data", hex.EncodeToString(payload)),
	)

	n, err := c.dev.Control(RequestType, Request, 0, 0, payload)
	if err != nil {
		return fmt.Errorf("%s control transfer: %w", name, err)
	}
	if n != len(payload) {
		return fmt.Errorf("%s control transfer: sent %d of %d bytes", name, n, len(payload))
	}
	return nil
}
