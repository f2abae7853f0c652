// Package api provides the HTTP handlers for the session management and
// system APIs.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/deskrelay/internal/domain"
	"github.com/xiaot623/deskrelay/internal/metrics"
	"github.com/xiaot623/deskrelay/internal/protocol"
	"github.com/xiaot623/deskrelay/internal/service"
	"github.com/xiaot623/deskrelay/internal/supervisor"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Screenshotter fetches a frame from the executor.
type Screenshotter interface {
	Screenshot(ctx context.Context, format string, quality int) (*protocol.ResponseFrame, error)
}

// Handler handles HTTP requests.
type Handler struct {
	service     *service.Service
	supervisor  *supervisor.Registry
	metrics     *metrics.Metrics
	screenshots Screenshotter
}

// NewHandler creates a new handler. supervisor and m may be nil.
func NewHandler(svc *service.Service, sup *supervisor.Registry, m *metrics.Metrics) *Handler {
	return &Handler{
		service:    svc,
		supervisor: sup,
		metrics:    m,
	}
}

// WithScreenshots enables GET /agents/:session_id/screenshot backed by s.
func (h *Handler) WithScreenshots(s Screenshotter) *Handler {
	h.screenshots = s
	return h
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session management
	e.POST("/agents", h.CreateAgent)
	e.POST("/agents/:session_id/start", h.StartAgent)
	e.POST("/agents/:session_id/interact", h.InteractAgent)
	e.GET("/agents/:session_id/status", h.AgentStatus)
	if h.screenshots != nil {
		e.GET("/agents/:session_id/screenshot", h.AgentScreenshot)
	}
	e.GET("/sessions", h.ListSessions)
	e.GET("/sessions/:session_id", h.GetSession)

	// Managed services
	if h.supervisor != nil {
		e.GET("/system/status", h.SystemStatus)
		e.POST("/system/start", h.SystemStart)
		e.POST("/system/stop", h.SystemStop)
	}

	e.GET("/health", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	if err := h.service.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// ErrorResponse is the body of every failed session API call.
type ErrorResponse struct {
	Error   bool        `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorResponse{Error: true, Message: message})
}

// writeServiceError maps coordinator errors onto status codes.
func writeServiceError(c echo.Context, err error) error {
	var bridgeErr *domain.BridgeError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "Session not found")
	case errors.Is(err, domain.ErrInvalidState):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &bridgeErr):
		resp := ErrorResponse{Error: true, Message: bridgeErr.Message}
		if len(bridgeErr.Detail) > 0 {
			resp.Details = bridgeErr.Detail
		}
		return c.JSON(http.StatusInternalServerError, resp)
	default:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
}
