// internal/handler/target_handler.go
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"v850-service/internal/config"
	"v850-service/internal/device"
	"v850-service/internal/model"
	"v850-service/internal/sequencer"
	"v850-service/internal/service"
	"v850-service/internal/transport"
	"v850-service/internal/utils"
)

// TargetHandler runs target operations over HTTP.
type TargetHandler struct {
	targetService *service.TargetService
	logger        *utils.ServiceLogger
}

// NewTargetHandler creates a new target handler
func NewTargetHandler(targetService *service.TargetService, logger *zap.Logger) *TargetHandler {
	return &TargetHandler{
		targetService: targetService,
		logger:        utils.NewServiceLogger(logger, "target-handler"),
	}
}

// RegisterRoutes registers target routes
func (h *TargetHandler) RegisterRoutes(router *gin.RouterGroup) {
	target := router.Group("/target")
	{
		target.POST("/bringup", h.BringUp)
		target.POST("/reset", h.Reset)
		target.POST("/signature", h.Signature)
		target.POST("/oscillator", h.SetOscillator)
		target.POST("/baud-rate", h.SetBaudRate)
	}
}

// SelectorRequest picks the bridge. All fields are optional.
type SelectorRequest struct {
	Bus     int    `json:"bus,omitempty" binding:"min=0"`
	Address int    `json:"address,omitempty" binding:"min=0"`
	Port    string `json:"port,omitempty"`
}

func (r SelectorRequest) selector() device.Selector {
	return device.Selector{Bus: r.Bus, Address: r.Address, Port: r.Port}
}

// BringUpRequest represents a bring-up request. Empty fields take the
// configured defaults.
type BringUpRequest struct {
	SelectorRequest
	OscillatorMHz string `json:"oscillator_mhz,omitempty" example:"5"`
	BaudRate      uint32 `json:"baud_rate,omitempty" example:"115200"`
}

// OscillatorRequest represents an oscillator announcement request
type OscillatorRequest struct {
	SelectorRequest
	OscillatorMHz string `json:"oscillator_mhz" binding:"required" example:"5"`
}

// BaudRateRequest represents a baud rate switch request
type BaudRateRequest struct {
	SelectorRequest
	BaudRate uint32 `json:"baud_rate" binding:"required" example:"115200"`
}

// BringUp runs the full bring-up sequence
// @Summary Bring up the target
// @Description Open the bridge, reset the target, read its signature, announce the oscillator and switch baud rate
// @Tags Target
// @Accept json
// @Produce json
// @Param request body BringUpRequest false "Bring-up request"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Bring-up completed"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 404 {object} utils.APIResponse "Bridge not found"
// @Failure 502 {object} utils.APIResponse{data=model.Session} "Target rejected a command"
// @Failure 504 {object} utils.APIResponse{data=model.Session} "Target did not answer"
// @Router /target/bringup [post]
func (h *TargetHandler) BringUp(c *gin.Context) {
	var req BringUpRequest
	if !bindOptional(c, &req) {
		return
	}

	var hz uint32
	if req.OscillatorMHz != "" {
		var err error
		if hz, err = config.ParseMHz(req.OscillatorMHz); err != nil {
			utils.ValidationErrorResponse(c, map[string]string{"oscillator_mhz": err.Error()})
			return
		}
	}

	session, err := h.targetService.BringUp(c.Request.Context(), req.selector(), hz, req.BaudRate)
	h.respond(c, "Bring-up completed", session, err)
}

// Reset resets the target
// @Summary Reset the target
// @Tags Target
// @Accept json
// @Produce json
// @Param request body SelectorRequest false "Bridge selector"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Target reset"
// @Router /target/reset [post]
func (h *TargetHandler) Reset(c *gin.Context) {
	var req SelectorRequest
	if !bindOptional(c, &req) {
		return
	}
	session, err := h.targetService.Reset(c.Request.Context(), req.selector())
	h.respond(c, "Target reset", session, err)
}

// Signature reads the silicon signature
// @Summary Read the silicon signature
// @Tags Target
// @Accept json
// @Produce json
// @Param request body SelectorRequest false "Bridge selector"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Signature read"
// @Router /target/signature [post]
func (h *TargetHandler) Signature(c *gin.Context) {
	var req SelectorRequest
	if !bindOptional(c, &req) {
		return
	}
	session, err := h.targetService.Signature(c.Request.Context(), req.selector())
	h.respond(c, "Signature read", session, err)
}

// SetOscillator announces the oscillator frequency
// @Summary Announce the oscillator frequency
// @Tags Target
// @Accept json
// @Produce json
// @Param request body OscillatorRequest true "Oscillator request"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Oscillator frequency set"
// @Router /target/oscillator [post]
func (h *TargetHandler) SetOscillator(c *gin.Context) {
	var req OscillatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	hz, err := config.ParseMHz(req.OscillatorMHz)
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"oscillator_mhz": err.Error()})
		return
	}
	session, err := h.targetService.SetOscillator(c.Request.Context(), req.selector(), hz)
	h.respond(c, "Oscillator frequency set", session, err)
}

// SetBaudRate switches the line rate
// @Summary Switch the baud rate
// @Tags Target
// @Accept json
// @Produce json
// @Param request body BaudRateRequest true "Baud rate request"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Baud rate set"
// @Router /target/baud-rate [post]
func (h *TargetHandler) SetBaudRate(c *gin.Context) {
	var req BaudRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	session, err := h.targetService.SetBaudRate(c.Request.Context(), req.selector(), req.BaudRate)
	h.respond(c, "Baud rate set", session, err)
}

func (h *TargetHandler) respond(c *gin.Context, message string, session *model.Session, err error) {
	if err == nil {
		utils.SuccessResponse(c, http.StatusOK, message, session)
		return
	}

	var ve *sequencer.ValidationError
	if errors.As(err, &ve) {
		utils.ValidationErrorResponse(c, map[string]string{ve.Field: ve.Reason})
		return
	}

	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Target operation failed", zap.Error(err), zap.Int("status", status))
	}
	if session != nil {
		utils.ErrorResponseWithData(c, status, "Target operation failed", err, session)
		return
	}
	utils.ErrorResponse(c, status, "Target operation failed", err)
}

// StatusForError maps a service error to an HTTP status.
func StatusForError(err error) int {
	switch {
	case service.IsValidation(err):
		return http.StatusBadRequest
	case service.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), transport.IsTimeout(err):
		return http.StatusGatewayTimeout
	case sequencer.IsProtocolError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// bindOptional binds a JSON body when one is present. It writes the error
// response and returns false on malformed input.
func bindOptional(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
	return false
}
