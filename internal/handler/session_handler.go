// internal/handler/session_handler.go
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"v850-service/internal/model"
	"v850-service/internal/repository"
	"v850-service/internal/service"
	"v850-service/internal/utils"
)

// SessionHandler serves recorded sessions.
type SessionHandler struct {
	targetService *service.TargetService
	logger        *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(targetService *service.TargetService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		targetService: targetService,
		logger:        utils.NewServiceLogger(logger, "session-handler"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.GET("/:session_id", h.GetSession)
	}
}

// ListSessions lists sessions, newest first
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param operation query string false "Operation" Enums(BRINGUP, RESET, SIGNATURE, OSCILLATOR_SET, BAUD_RATE_SET)
// @Param status query string false "Status" Enums(RUNNING, SUCCESS, FAILED)
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} utils.APIResponse "Sessions retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	filter := &repository.SessionFilter{}
	errs := map[string]string{}

	if raw := c.Query("operation"); raw != "" {
		op := model.OperationType(strings.ToUpper(raw))
		if !op.IsValid() {
			errs["operation"] = "unknown operation"
		}
		filter.Operation = &op
	}
	if raw := c.Query("status"); raw != "" {
		status := model.SessionStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			errs["status"] = "unknown status"
		}
		filter.Status = &status
	}
	filter.Page = queryInt(c, "page", errs)
	filter.PerPage = queryInt(c, "per_page", errs)
	if len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}
	filter.Normalize()

	sessions, total, err := h.targetService.ListSessions(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}

	utils.PaginatedResponse(c, "Sessions retrieved", "sessions", sessions,
		utils.NewPagination(filter.Page, filter.PerPage, total))
}

// GetSession returns one session
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Session retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid session ID"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{session_id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return
	}

	session, err := h.targetService.GetSession(c.Request.Context(), id)
	if err != nil {
		if service.IsNotFound(err) {
			utils.ErrorResponse(c, http.StatusNotFound, "Session not found", err)
			return
		}
		h.logger.Error("Failed to get session", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get session", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session retrieved", session)
}

func queryInt(c *gin.Context, key string, errs map[string]string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		errs[key] = "must be a positive integer"
		return 0
	}
	return n
}
