// internal/handler/discovery_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"v850-service/internal/service"
	"v850-service/internal/utils"
)

// DiscoveryHandler handles bridge discovery requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discovery := router.Group("/discovery")
	{
		discovery.GET("/scan", h.ScanBridges)
		discovery.GET("/last", h.LastScan)
		discovery.GET("/scanners", h.GetScanners)
	}
}

// ScanBridges scans for bridge chips
// @Summary Scan for bridges
// @Description Look for known bridge boards on raw USB and on serial ports
// @Tags Discovery
// @Produce json
// @Param type query string false "Scan type" Enums(all, usb, serial) default(all)
// @Success 200 {object} utils.APIResponse{data=service.ScanResult} "Bridge scan completed"
// @Failure 400 {object} utils.APIResponse "Unsupported scan type"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/scan [get]
func (h *DiscoveryHandler) ScanBridges(c *gin.Context) {
	scanType := c.DefaultQuery("type", service.ScanAll)

	result, err := h.discoveryService.ScanBridges(c.Request.Context(), scanType)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedScanType) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Unsupported scan type", err)
			return
		}
		h.logger.Error("Failed to scan bridges", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan bridges", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Bridge scan completed", result)
}

// LastScan returns the previous scan result
// @Summary Last scan result
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.ScanResult} "Last scan retrieved"
// @Failure 404 {object} utils.APIResponse "No scan yet"
// @Router /discovery/last [get]
func (h *DiscoveryHandler) LastScan(c *gin.Context) {
	result := h.discoveryService.LastScan()
	if result == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "No scan has run yet", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Last scan retrieved", result)
}

// GetScanners lists the scanners usable on this host
// @Summary Available scanners
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{scanners=[]string}} "Scanners retrieved"
// @Router /discovery/scanners [get]
func (h *DiscoveryHandler) GetScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved", gin.H{
		"scanners": h.discoveryService.AvailableScanners(),
	})
}
