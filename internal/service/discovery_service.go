// internal/service/discovery_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"v850-service/internal/config"
	"v850-service/internal/discovery"
	"v850-service/internal/discovery/serial"
	"v850-service/internal/discovery/usb"
	"v850-service/internal/utils"
)

// Scan types accepted by ScanBridges.
const (
	ScanAll    = "all"
	ScanUSB    = discovery.ScannerUSB
	ScanSerial = discovery.ScannerSerial
)

// ErrUnsupportedScanType rejects a scan type with no scanner behind it.
var ErrUnsupportedScanType = errors.New("unsupported scan type")

// ScanResult is the outcome of one discovery run.
type ScanResult struct {
	ScanType  string                        `json:"scan_type"`
	Bridges   []*discovery.DiscoveredBridge `json:"bridges"`
	Scanners  []string                      `json:"scanners"`
	ScannedAt time.Time                     `json:"scanned_at"`
	Duration  string                        `json:"duration"`
}

// DiscoveryService finds attached bridges.
type DiscoveryService struct {
	scannerManager *discovery.ScannerManager
	config         *config.Config
	logger         *utils.ServiceLogger

	mutex    sync.RWMutex
	lastScan *ScanResult
}

// NewDiscoveryService registers the USB and tty scanners.
func NewDiscoveryService(cfg *config.Config, logger *zap.Logger) *DiscoveryService {
	sm := discovery.NewScannerManager(logger)
	sm.RegisterScanner(usb.NewScanner(logger, &usb.Config{
		ScanTimeout:   10 * time.Second,
		EnableDebug:   cfg.USB.Debug > 0,
		MaxConcurrent: 4,
	}))
	sm.RegisterScanner(serial.NewScanner(logger))
	return NewDiscoveryServiceWithManager(sm, cfg, logger)
}

// NewDiscoveryServiceWithManager uses an already populated manager.
func NewDiscoveryServiceWithManager(sm *discovery.ScannerManager, cfg *config.Config, logger *zap.Logger) *DiscoveryService {
	ds := &DiscoveryService{
		scannerManager: sm,
		config:         cfg,
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}
	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", sm.GetAvailableScanners()),
	)
	return ds
}

// ScanBridges runs one scan and remembers the result.
func (ds *DiscoveryService) ScanBridges(ctx context.Context, scanType string) (*ScanResult, error) {
	if scanType == "" {
		scanType = ScanAll
	}
	ds.logger.Info("Starting bridge scan", zap.String("type", scanType))
	start := time.Now()

	var bridges []*discovery.DiscoveredBridge
	var err error
	switch scanType {
	case ScanAll:
		bridges, err = ds.scannerManager.ScanAll(ctx)
	case ScanUSB, ScanSerial:
		bridges, err = ds.scannerManager.ScanByType(ctx, scanType)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScanType, scanType)
	}
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if bridges == nil {
		bridges = []*discovery.DiscoveredBridge{}
	}

	result := &ScanResult{
		ScanType:  scanType,
		Bridges:   bridges,
		Scanners:  ds.scannerManager.GetAvailableScanners(),
		ScannedAt: start,
		Duration:  time.Since(start).String(),
	}

	ds.mutex.Lock()
	ds.lastScan = result
	ds.mutex.Unlock()

	ds.logger.Info("Bridge scan completed",
		zap.Int("bridges_found", len(bridges)),
		zap.String("scan_type", scanType),
	)
	return result, nil
}

// LastScan returns the most recent result, or nil before the first scan.
func (ds *DiscoveryService) LastScan() *ScanResult {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return ds.lastScan
}

// AvailableScanners lists scanners usable on this host.
func (ds *DiscoveryService) AvailableScanners() []string {
	return ds.scannerManager.GetAvailableScanners()
}
