// internal/handler/scanner_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"scanner-service/internal/model"
	"scanner-service/internal/protocol"
	"scanner-service/internal/repository"
	"scanner-service/internal/scanner"
	"scanner-service/internal/service"
	"scanner-service/internal/utils"
)

// ScannerHandler handles port, detection and session HTTP requests
type ScannerHandler struct {
	scannerService *service.ScannerService
	logger         *utils.ServiceLogger
}

// NewScannerHandler creates a new scanner handler
func NewScannerHandler(scannerService *service.ScannerService, logger *zap.Logger) *ScannerHandler {
	return &ScannerHandler{
		scannerService: scannerService,
		logger:         utils.NewServiceLogger(logger, "scanner-handler"),
	}
}

// RegisterRoutes registers scanner routes
func (h *ScannerHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)
	router.POST("/detect", h.DetectBaudRate)

	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.RunSession)
		sessions.GET("", h.ListSessions)
		sessions.GET("/:session_id", h.GetSession)
	}
}

// ListPorts lists serial ports
// @Summary List serial ports
// @Description Enumerate the serial ports on this host, with USB identity where available
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]protocol.PortInfo} "Ports retrieved successfully"
// @Failure 500 {object} utils.APIResponse "Internal server error"
// @Router /ports [get]
func (h *ScannerHandler) ListPorts(c *gin.Context) {
	ports, err := h.scannerService.ListPorts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list ports", err)
		return
	}
	if ports == nil {
		ports = []protocol.PortInfo{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Ports retrieved successfully", ports)
}

// DetectBaudRate probes a port for its link speed
// @Summary Detect baud rate
// @Description Probe the scanner on a port at each candidate rate until it identifies itself
// @Tags Ports
// @Accept json
// @Produce json
// @Param request body service.DetectRequest false "Port and candidate rates; defaults come from configuration"
// @Success 200 {object} utils.APIResponse{data=scanner.Detection} "Baud rate detected"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Port is busy"
// @Failure 504 {object} utils.APIResponse "No candidate rate answered"
// @Router /detect [post]
func (h *ScannerHandler) DetectBaudRate(c *gin.Context) {
	var req service.DetectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	detection, err := h.scannerService.Detect(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Baud rate detection failed", err, nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Baud rate detected", detection)
}

// RunSession reads the scanner's system list
// @Summary Run a read session
// @Description Connect, enter programming mode, read every system record and exit programming mode. The baud rate is detected when neither given nor known.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body service.SessionRequest false "Port and optional baud rate"
// @Success 200 {object} utils.APIResponse{data=service.SessionResult} "Session completed"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Port is busy"
// @Failure 422 {object} utils.APIResponse{data=service.SessionResult} "Scanner refused a command"
// @Failure 502 {object} utils.APIResponse{data=service.SessionResult} "Protocol or transport failure"
// @Failure 504 {object} utils.APIResponse{data=service.SessionResult} "Scanner did not answer"
// @Router /sessions [post]
func (h *ScannerHandler) RunSession(c *gin.Context) {
	var req service.SessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.scannerService.RunSession(c.Request.Context(), &req)
	if err != nil {
		var data interface{}
		if result != nil {
			data = result
		}
		h.respondError(c, "Session failed", err, data)
		return
	}

	h.logger.Info("Session completed",
		zap.String("session_id", result.Run.ID.String()),
		zap.Int("systems", len(result.Systems)),
	)
	utils.SuccessResponse(c, http.StatusOK, "Session completed", result)
}

// ListSessions lists session history
// @Summary List sessions
// @Description Get session history with filtering and pagination
// @Tags Sessions
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param port query string false "Filter by port"
// @Param status query string false "Filter by status" Enums(RUNNING, COMPLETED, FAILED)
// @Success 200 {object} utils.APIResponse{data=service.SessionListResponse} "Sessions retrieved successfully"
// @Failure 500 {object} utils.APIResponse "Internal server error"
// @Router /sessions [get]
func (h *ScannerHandler) ListSessions(c *gin.Context) {
	filter := &repository.SessionRunFilter{Page: 1, PerPage: 20}

	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			filter.Page = p
		}
	}
	if perPage := c.Query("per_page"); perPage != "" {
		if pp, err := strconv.Atoi(perPage); err == nil && pp > 0 && pp <= 100 {
			filter.PerPage = pp
		}
	}
	if port := c.Query("port"); port != "" {
		filter.Port = &port
	}
	if status := c.Query("status"); status != "" {
		s := model.SessionRunStatus(status)
		filter.Status = &s
	}

	response, err := h.scannerService.ListSessions(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved successfully", response)
}

// GetSession gets one session history row
// @Summary Get session
// @Description Get the history row of one session
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} utils.APIResponse{data=model.SessionRun} "Session retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid session ID"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{session_id} [get]
func (h *ScannerHandler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return
	}

	run, err := h.scannerService.GetSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get session", err, nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session retrieved successfully", run)
}

func (h *ScannerHandler) respondError(c *gin.Context, message string, err error, data interface{}) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		utils.ValidationErrorResponse(c, map[string]string{verr.Field: verr.Message})
		return
	}

	status := StatusForError(err)
	logger := utils.LoggerWithRequestID(h.logger.Logger, c.GetString("request_id"))
	if status >= http.StatusInternalServerError {
		utils.LogError(logger, message, err, zap.Int("status", status))
	} else {
		logger.Warn(message, zap.Error(err), zap.Int("status", status))
	}
	utils.ErrorResponseWithData(c, status, message, err, data)
}

// StatusForError maps service and protocol errors to HTTP status codes
func StatusForError(err error) int {
	var (
		verr      *service.ValidationError
		rejected  *protocol.DeviceRejectedError
		mismatch  *protocol.ProtocolMismatchError
		transport *protocol.TransportError
		overrun   *scanner.ChainOverrunError
		format    *scanner.RecordFormatError
		state     *scanner.StateError
	)

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPortBusy):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scanner.ErrNoBaudRate),
		errors.Is(err, protocol.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &mismatch),
		errors.As(err, &transport),
		errors.As(err, &overrun),
		errors.As(err, &format),
		errors.Is(err, protocol.ErrIncompleteFrame):
		return http.StatusBadGateway
	case errors.As(err, &state):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// bindOptionalJSON binds a JSON body when one was sent
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}
