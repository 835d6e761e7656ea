// 📁 internal/discovery/serial/scanner.go - tty bridge scanner
package serial

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"v850-service/internal/discovery"
)

// ListFunc enumerates serial ports with their USB details.
type ListFunc func() ([]*enumerator.PortDetails, error)

// Scanner finds bridges already bound to a kernel tty driver.
type Scanner struct {
	logger       *zap.Logger
	knownDevices *discovery.DeviceDatabase
	listPorts    ListFunc
}

// NewScanner creates a scanner over the system port list.
func NewScanner(logger *zap.Logger) *Scanner {
	return NewScannerWithLister(logger, enumerator.GetDetailedPortsList)
}

// NewScannerWithLister creates a scanner over list.
func NewScannerWithLister(logger *zap.Logger, list ListFunc) *Scanner {
	return &Scanner{
		logger:       logger.With(zap.String("scanner", discovery.ScannerSerial)),
		knownDevices: discovery.NewDeviceDatabase(),
		listPorts:    list,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return discovery.ScannerSerial
}

// IsAvailable always holds; the enumerator reports unsupported platforms
// as an error from Scan.
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists USB serial ports whose VID/PID belong to a known bridge.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredBridge, error) {
	startTime := time.Now()
	s.logger.Info("Starting serial port scan")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	bridges := []*discovery.DiscoveredBridge{}
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		vendorID, errV := parseID(port.VID)
		productID, errP := parseID(port.PID)
		if errV != nil || errP != nil {
			s.logger.Debug("Skipping port with unreadable USB IDs",
				zap.String("port", port.Name),
				zap.String("vid", port.VID),
				zap.String("pid", port.PID),
			)
			continue
		}

		bridge, ok := s.knownDevices.Describe(discovery.ScannerSerial, vendorID, productID)
		if !ok {
			continue
		}
		bridge.Port = port.Name
		bridge.SerialNumber = port.SerialNumber
		bridge.Location = port.Name
		bridges = append(bridges, bridge)
	}

	discovery.SortByConfidence(bridges)
	s.logger.Info("Serial scan completed",
		zap.Int("ports_examined", len(ports)),
		zap.Int("bridges_found", len(bridges)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return bridges, nil
}

// parseID reads the enumerator's four hex digit IDs.
func parseID(s string) (uint16, error) {
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(id), nil
}
