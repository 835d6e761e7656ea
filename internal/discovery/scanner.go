// 📁 internal/discovery/scanner.go - Bridge scanner interface
package discovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Scanner types.
const (
	ScannerUSB    = "usb"
	ScannerSerial = "serial"
)

// BridgeScanner finds attached bridges over one access path.
type BridgeScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredBridge, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredBridge describes one bridge found on the host.
type DiscoveredBridge struct {
	Scanner      string  `json:"scanner"`
	VendorID     string  `json:"vendor_id"`
	ProductID    string  `json:"product_id"`
	Vendor       string  `json:"vendor"`
	Model        string  `json:"model"`
	Board        string  `json:"board,omitempty"`
	Bus          int     `json:"bus,omitempty"`
	Address      int     `json:"address,omitempty"`
	Port         string  `json:"port,omitempty"`
	SerialNumber string  `json:"serial_number,omitempty"`
	Location     string  `json:"location"`
	Confidence   float64 `json:"confidence"` // 0.0-1.0
}

// ScannerManager runs every registered scanner.
type ScannerManager struct {
	scanners map[string]BridgeScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]BridgeScanner),
		logger:   logger.With(zap.String("component", "discovery")),
	}
}

// RegisterScanner registers a scanner under its type, replacing any
// previous one.
func (sm *ScannerManager) RegisterScanner(scanner BridgeScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll scans with every available scanner. A failing scanner is logged
// and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredBridge, error) {
	all := []*DiscoveredBridge{}

	for _, scannerType := range sm.types() {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		bridges, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		all = append(all, bridges...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("bridges_found", len(bridges)),
		)
	}

	SortByConfidence(all)
	return all, nil
}

// ScanByType scans with one scanner.
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredBridge, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}
	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	bridges, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	SortByConfidence(bridges)
	return bridges, nil
}

// GetAvailableScanners returns the available scanner types, sorted.
func (sm *ScannerManager) GetAvailableScanners() []string {
	available := []string{}
	for _, scannerType := range sm.types() {
		if sm.scanners[scannerType].IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}

func (sm *ScannerManager) types() []string {
	types := make([]string, 0, len(sm.scanners))
	for scannerType := range sm.scanners {
		types = append(types, scannerType)
	}
	sort.Strings(types)
	return types
}

// SortByConfidence orders bridges best match first, keeping scan order
// among equals.
func SortByConfidence(bridges []*DiscoveredBridge) {
	sort.SliceStable(bridges, func(i, j int) bool {
		return bridges[i].Confidence > bridges[j].Confidence
	})
}
