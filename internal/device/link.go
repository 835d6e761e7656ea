// internal/device/link.go
package device

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"v850-service/internal/bridge"
	"v850-service/internal/config"
	"v850-service/internal/frame"
	"v850-service/internal/sequencer"
	"v850-service/internal/simulator"
	"v850-service/internal/transport"
)

// Selector narrows which bridge Connect opens. The zero value takes the
// configured defaults.
type Selector struct {
	Bus     int    `json:"bus,omitempty"`
	Address int    `json:"address,omitempty"`
	Port    string `json:"port,omitempty"`
}

// Link is an open channel to one bridge: the byte transport plus the
// control path for its UART.
type Link struct {
	Name      string
	Mode      string
	Transport transport.Transport
	Bridge    bridge.Bridge
	closers   []func() error
}

// Close releases everything the link opened, last opened first.
func (l *Link) Close() error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		errs = append(errs, l.closers[i]())
	}
	l.closers = nil
	return errors.Join(errs...)
}

// Connect opens a link in the configured transfer mode.
func Connect(cfg *config.USBConfig, sel Selector, logger *zap.Logger) (*Link, error) {
	switch cfg.TransferMode {
	case config.TransferModeSync, config.TransferModeAsync:
		return connectUSB(cfg, sel, logger)
	case config.TransferModeSerial:
		return connectSerial(cfg, sel, logger)
	case config.TransferModeSimulator:
		return NewSimulatorLink(simulator.New(logger)), nil
	default:
		return nil, fmt.Errorf("unsupported transfer mode: %s", cfg.TransferMode)
	}
}

// Resolve pins a USB selection to the bus and address Connect would open,
// so callers can key per-bridge state on it. Serial and simulator
// selections are returned as given.
func Resolve(cfg *config.USBConfig, sel Selector) (Selector, error) {
	if cfg.TransferMode != config.TransferModeSync && cfg.TransferMode != config.TransferModeAsync {
		return sel, nil
	}
	if sel.Bus != 0 && sel.Address != 0 {
		return sel, nil
	}
	bus, address, err := LocateUSB(USBOptions{
		VendorID:  cfg.VendorID,
		ProductID: cfg.ProductID,
		Bus:       sel.Bus,
		Address:   sel.Address,
	})
	if err != nil {
		return sel, err
	}
	return Selector{Bus: bus, Address: address}, nil
}

func connectUSB(cfg *config.USBConfig, sel Selector, logger *zap.Logger) (*Link, error) {
	dev, err := OpenUSB(USBOptions{
		VendorID:       cfg.VendorID,
		ProductID:      cfg.ProductID,
		Bus:            sel.Bus,
		Address:        sel.Address,
		OutEndpoint:    uint8(cfg.OutEndpoint),
		InEndpoint:     uint8(cfg.InEndpoint),
		ControlTimeout: cfg.ControlTimeout,
		Debug:          cfg.Debug,
	}, logger)
	if err != nil {
		return nil, err
	}

	out, in := dev.Endpoints()
	tcfg := transport.USBConfig{
		Channel: transport.Channel{
			Out:     uint8(cfg.OutEndpoint),
			In:      uint8(cfg.InEndpoint),
			Timeout: cfg.BulkTimeout,
		},
		StallRetries: cfg.StallRetries,
	}

	var t transport.Transport
	if cfg.TransferMode == config.TransferModeAsync {
		t = transport.NewAsyncTransport(out, in, dev, tcfg, cfg.AsyncBufferSize, logger)
	} else {
		t = transport.NewUSBTransport(out, in, dev, tcfg, logger)
	}

	return &Link{
		Name:      dev.String(),
		Mode:      cfg.TransferMode,
		Transport: t,
		Bridge:    bridge.NewController(dev, logger),
		closers:   []func() error{dev.Close, t.Close},
	}, nil
}

func connectSerial(cfg *config.USBConfig, sel Selector, logger *zap.Logger) (*Link, error) {
	name := sel.Port
	if name == "" {
		name = cfg.SerialPort
	}
	if name == "" {
		return nil, fmt.Errorf("serial transfer mode needs a port")
	}

	port, t, err := transport.OpenSerial(name, cfg.BulkTimeout, logger)
	if err != nil {
		return nil, err
	}
	return &Link{
		Name:      name,
		Mode:      config.TransferModeSerial,
		Transport: t,
		Bridge:    bridge.NewSerialController(port, logger),
		closers:   []func() error{t.Close},
	}, nil
}

// NewSimulatorLink wraps a simulated target.
func NewSimulatorLink(target *simulator.Target) *Link {
	return &Link{
		Name:      "simulator",
		Mode:      config.TransferModeSimulator,
		Transport: target,
		Bridge:    target,
		closers:   []func() error{target.Close},
	}
}

// NewSequencer builds a frame codec and a sequencer over the link using the
// target settings.
func NewSequencer(l *Link, cfg *config.Config, logger *zap.Logger, opts ...sequencer.Option) (*sequencer.Sequencer, error) {
	hz, err := cfg.OscillatorHz()
	if err != nil {
		return nil, err
	}

	codec := frame.NewCodec(l.Transport, logger,
		frame.WithTimeout(cfg.USB.BulkTimeout),
		frame.WithStrictChecksum(cfg.Target.StrictChecksum),
	)
	base := []sequencer.Option{
		sequencer.WithTiming(sequencer.NewTiming(hz)),
		sequencer.WithConfirmAttempts(cfg.Target.ConfirmAttempts),
	}
	return sequencer.New(l.Bridge, codec, logger.With(zap.String("device", l.Name)), append(base, opts...)...), nil
}
