package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/deskrelay/internal/supervisor"
)

// ServiceRequest names a managed service.
type ServiceRequest struct {
	Service string `json:"service"`
}

// ServiceResponse reports the outcome of a start or stop.
type ServiceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SystemStatus reports every managed service.
// GET /system/status
func (h *Handler) SystemStatus(c echo.Context) error {
	out := make(map[string]supervisor.Status)
	for name, status := range h.supervisor.StatusAll() {
		out[name+"_service"] = status
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) bindService(c echo.Context) (string, bool) {
	var req ServiceRequest
	if err := c.Bind(&req); err != nil || !h.supervisor.Known(req.Service) {
		return "", false
	}
	return req.Service, true
}

// SystemStart starts a managed service.
// POST /system/start
func (h *Handler) SystemStart(c echo.Context) error {
	name, ok := h.bindService(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ServiceResponse{Success: false, Message: "Invalid service specified"})
	}

	if err := h.supervisor.Start(name); err != nil {
		return c.JSON(http.StatusOK, ServiceResponse{Success: false, Message: "Failed to start service"})
	}
	return c.JSON(http.StatusOK, ServiceResponse{Success: true, Message: "Service started successfully"})
}

// SystemStop stops a managed service.
// POST /system/stop
func (h *Handler) SystemStop(c echo.Context) error {
	name, ok := h.bindService(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ServiceResponse{Success: false, Message: "Invalid service specified"})
	}

	if err := h.supervisor.Stop(c.Request().Context(), name); err != nil {
		return c.JSON(http.StatusOK, ServiceResponse{Success: false, Message: "Failed to stop service"})
	}
	return c.JSON(http.StatusOK, ServiceResponse{Success: true, Message: "Service stopped successfully"})
}
