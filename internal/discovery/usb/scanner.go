// 📁 internal/discovery/usb/scanner.go - USB bridge scanner
package usb

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"v850-service/internal/discovery"
)

// Scanner finds bridges through libusb.
type Scanner struct {
	logger       *zap.Logger
	knownDevices *discovery.DeviceDatabase
	config       *Config
}

// Config for USB scanner
type Config struct {
	ScanTimeout   time.Duration `json:"scan_timeout"`
	EnableDebug   bool          `json:"enable_debug"`
	MaxConcurrent int           `json:"max_concurrent"`
}

type deviceResult struct {
	bridge *discovery.DiscoveredBridge
	err    error
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{
			ScanTimeout:   10 * time.Second,
			MaxConcurrent: 4,
		}
	}

	return &Scanner{
		logger:       logger.With(zap.String("scanner", discovery.ScannerUSB)),
		knownDevices: discovery.NewDeviceDatabase(),
		config:       config,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return discovery.ScannerUSB
}

// IsAvailable reports whether libusb supports this OS.
func (s *Scanner) IsAvailable() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "windows", "freebsd":
		return true
	default:
		s.logger.Warn("USB scanning support unknown for OS", zap.String("os", runtime.GOOS))
		return false
	}
}

// Scan opens every known bridge long enough to read its serial number.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredBridge, error) {
	startTime := time.Now()
	s.logger.Info("Starting USB bridge scan")

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()
	if s.config.EnableDebug {
		usbCtx.Debug(3)
	}

	devices, err := usbCtx.OpenDevices(s.shouldExamineDevice)
	defer s.closeAllDevices(devices)
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if err != nil {
		// Some matches could not be opened, usually a permissions problem.
		s.logger.Warn("Some bridges could not be opened", zap.Error(err))
	}

	bridges, err := s.processDevicesConcurrently(scanCtx, devices)
	if err != nil {
		return nil, err
	}

	s.logger.Info("USB scan completed",
		zap.Int("bridges_found", len(bridges)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return bridges, nil
}

// shouldExamineDevice matches descriptors against the known bridge IDs.
func (s *Scanner) shouldExamineDevice(desc *gousb.DeviceDesc) bool {
	_, _, ok := s.knownDevices.Lookup(uint16(desc.Vendor), uint16(desc.Product))
	if ok {
		s.logger.Debug("Found known bridge",
			zap.String("vendor_id", discovery.FormatID(uint16(desc.Vendor))),
			zap.String("product_id", discovery.FormatID(uint16(desc.Product))),
			zap.Int("bus", desc.Bus),
			zap.Int("address", desc.Address),
		)
	}
	return ok
}

// processDevicesConcurrently reads string descriptors with a bounded
// worker pool.
func (s *Scanner) processDevicesConcurrently(ctx context.Context, devices []*gousb.Device) ([]*discovery.DiscoveredBridge, error) {
	bridges := []*discovery.DiscoveredBridge{}
	if len(devices) == 0 {
		return bridges, nil
	}

	maxWorkers := s.config.MaxConcurrent
	if maxWorkers <= 0 || maxWorkers > len(devices) {
		maxWorkers = len(devices)
	}

	deviceChan := make(chan *gousb.Device, len(devices))
	resultChan := make(chan deviceResult, len(devices))
	for _, device := range devices {
		deviceChan <- device
	}
	close(deviceChan)

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for device := range deviceChan {
				if ctx.Err() != nil {
					return
				}
				bridge, err := s.processDevice(device)
				resultChan <- deviceResult{bridge: bridge, err: err}
			}
		}()
	}
	wg.Wait()
	close(resultChan)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("usb scan: %w", err)
	}

	for result := range resultChan {
		if result.err != nil {
			s.logger.Warn("Bridge processing failed", zap.Error(result.err))
			continue
		}
		bridges = append(bridges, result.bridge)
	}
	discovery.SortByConfidence(bridges)
	return bridges, nil
}

func (s *Scanner) processDevice(device *gousb.Device) (*discovery.DiscoveredBridge, error) {
	desc := device.Desc
	if desc == nil {
		return nil, fmt.Errorf("device descriptor is nil")
	}

	bridge, ok := s.knownDevices.Describe(discovery.ScannerUSB, uint16(desc.Vendor), uint16(desc.Product))
	if !ok {
		return nil, fmt.Errorf("unknown bridge %04X:%04X", uint16(desc.Vendor), uint16(desc.Product))
	}
	bridge.Bus = desc.Bus
	bridge.Address = desc.Address
	bridge.Location = Location(desc.Bus, desc.Address)
	bridge.SerialNumber = s.getSerialNumber(device)
	return bridge, nil
}

// getSerialNumber reads the serial string descriptor, falling back to a
// synthetic value.
func (s *Scanner) getSerialNumber(device *gousb.Device) string {
	serial, err := device.SerialNumber()
	if err != nil {
		s.logger.Debug("Failed to read serial number", zap.Error(err))
	}
	if serial = strings.TrimSpace(serial); serial != "" {
		return serial
	}
	return fmt.Sprintf("USB-%04X%04X-%d", uint16(device.Desc.Vendor), uint16(device.Desc.Product), device.Desc.Address)
}

func (s *Scanner) closeAllDevices(devices []*gousb.Device) {
	for i, device := range devices {
		if device == nil {
			continue
		}
		if err := device.Close(); err != nil {
			s.logger.Warn("Failed to close USB device",
				zap.Int("device_index", i),
				zap.Error(err),
			)
		}
	}
}

// Location names a device the way the device package does.
func Location(bus, address int) string {
	return fmt.Sprintf("usb %d:%d", bus, address)
}
