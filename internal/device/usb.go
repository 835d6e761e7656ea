// internal/device/usb.go
package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// Standard request used to clear an endpoint halt.
const (
	requestClearFeature = 0x01
	featureEndpointHalt = 0x00
)

// ErrNotFound is returned when no bridge matches the selection.
var ErrNotFound = errors.New("bridge not found")

// USBOptions selects and configures a bridge on the bus.
type USBOptions struct {
	VendorID  string
	ProductID string
	// Bus and Address pick one device when several match; zero matches any.
	Bus            int
	Address        int
	OutEndpoint    uint8
	InEndpoint     uint8
	ControlTimeout time.Duration
	Debug          int
}

// USBDevice owns a libusb context, the device handle and its claimed
// interface.
type USBDevice struct {
	opts   USBOptions
	ctx    *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	done   func()
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
}

// OpenUSB finds the bridge, claims its default interface and clears any
// halt left on the bulk endpoints.
func OpenUSB(opts USBOptions, logger *zap.Logger) (*USBDevice, error) {
	vendorID, err := ParseHexID(opts.VendorID)
	if err != nil {
		return nil, fmt.Errorf("invalid vendor ID: %w", err)
	}
	productID, err := ParseHexID(opts.ProductID)
	if err != nil {
		return nil, fmt.Errorf("invalid product ID: %w", err)
	}

	d := &USBDevice{
		opts: opts,
		logger: logger.With(
			zap.String("component", "device"),
			zap.String("vendor_id", opts.VendorID),
			zap.String("product_id", opts.ProductID),
		),
	}

	d.logger.Info("Opening USB bridge",
		zap.Int("bus", opts.Bus),
		zap.Int("address", opts.Address),
	)

	d.ctx = gousb.NewContext()
	if opts.Debug > 0 {
		d.ctx.Debug(opts.Debug)
	}

	dev, err := d.findAndOpenDevice(vendorID, productID)
	if err != nil {
		d.ctx.Close()
		return nil, err
	}
	if err := dev.SetAutoDetach(true); err != nil {
		d.logger.Warn("Kernel driver auto-detach unavailable", zap.Error(err))
	}
	if opts.ControlTimeout > 0 {
		dev.ControlTimeout = opts.ControlTimeout
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		d.ctx.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	out, err := intf.OutEndpoint(int(opts.OutEndpoint & 0x0F))
	if err != nil {
		done()
		dev.Close()
		d.ctx.Close()
		return nil, fmt.Errorf("failed to get out endpoint %#02x: %w", opts.OutEndpoint, err)
	}
	in, err := intf.InEndpoint(int(opts.InEndpoint & 0x0F))
	if err != nil {
		done()
		dev.Close()
		d.ctx.Close()
		return nil, fmt.Errorf("failed to get in endpoint %#02x: %w", opts.InEndpoint, err)
	}

	d.dev = dev
	d.intf = intf
	d.done = done
	d.out = out
	d.in = in
	d.isOpen = true

	for _, ep := range []uint8{opts.OutEndpoint, opts.InEndpoint} {
		if err := d.ClearHalt(ep); err != nil {
			d.logger.Warn("Clear halt failed", zap.Uint8("endpoint", ep), zap.Error(err))
		}
	}

	d.logger.Info("USB bridge opened", zap.String("device", d.String()))
	return d, nil
}

// Endpoints returns the bulk endpoint pair.
func (d *USBDevice) Endpoints() (*gousb.OutEndpoint, *gousb.InEndpoint) {
	return d.out, d.in
}

// Control issues a control transfer on endpoint 0.
func (d *USBDevice) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.isOpen {
		return 0, fmt.Errorf("USB bridge not open")
	}
	return d.dev.Control(rType, request, val, idx, data)
}

// ClearHalt sends CLEAR_FEATURE(ENDPOINT_HALT) for endpoint.
func (d *USBDevice) ClearHalt(endpoint uint8) error {
	rType := uint8(gousb.ControlOut) | uint8(gousb.ControlStandard) | uint8(gousb.ControlEndpoint)
	if _, err := d.Control(rType, requestClearFeature, featureEndpointHalt, uint16(endpoint), nil); err != nil {
		return fmt.Errorf("clear halt on %#02x: %w", endpoint, err)
	}
	return nil
}

// String names the device by bus and address.
func (d *USBDevice) String() string {
	if d.dev == nil {
		return "usb"
	}
	return fmt.Sprintf("usb %d:%d", d.dev.Desc.Bus, d.dev.Desc.Address)
}

// Close releases the interface, the handle and the context.
func (d *USBDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.isOpen {
		return nil
	}

	var errs []error
	if d.done != nil {
		d.done()
		d.done = nil
	}
	if d.dev != nil {
		errs = append(errs, d.dev.Close())
		d.dev = nil
	}
	if d.ctx != nil {
		errs = append(errs, d.ctx.Close())
		d.ctx = nil
	}
	d.out = nil
	d.in = nil
	d.isOpen = false

	d.logger.Info("USB bridge closed")
	return errors.Join(errs...)
}

func (d *USBDevice) findAndOpenDevice(vendorID, productID gousb.ID) (*gousb.Device, error) {
	devices, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != vendorID || desc.Product != productID {
			return false
		}
		if d.opts.Bus != 0 && desc.Bus != d.opts.Bus {
			return false
		}
		if d.opts.Address != 0 && desc.Address != d.opts.Address {
			return false
		}
		return true
	})
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w (VID: %04X, PID: %04X)", ErrNotFound, uint16(vendorID), uint16(productID))
	}

	if len(devices) > 1 {
		for _, extra := range devices[1:] {
			extra.Close()
		}
		d.logger.Warn("Multiple matching bridges found, using first one",
			zap.Int("count", len(devices)),
		)
	}
	return devices[0], nil
}

// LocateUSB returns the bus and address of the bridge OpenUSB would pick,
// without opening it.
func LocateUSB(opts USBOptions) (bus, address int, err error) {
	vendorID, err := ParseHexID(opts.VendorID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor ID: %w", err)
	}
	productID, err := ParseHexID(opts.ProductID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product ID: %w", err)
	}

	ctx := gousb.NewContext()
	defer ctx.Close()

	found := false
	_, err = ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if found || desc.Vendor != vendorID || desc.Product != productID {
			return false
		}
		if (opts.Bus != 0 && desc.Bus != opts.Bus) || (opts.Address != 0 && desc.Address != opts.Address) {
			return false
		}
		found = true
		bus, address = desc.Bus, desc.Address
		return false
	})
	if !found {
		if err != nil {
			return 0, 0, fmt.Errorf("failed to enumerate USB devices: %w", err)
		}
		return 0, 0, fmt.Errorf("%w (VID: %04X, PID: %04X)", ErrNotFound, uint16(vendorID), uint16(productID))
	}
	return bus, address, nil
}

// ParseHexID parses a USB ID written as 0x0409 or 0409.
func ParseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hexStr)), "0x")
	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(id), nil
}
