package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/deskrelay/internal/domain"
	"github.com/xiaot623/deskrelay/internal/service"
)

// CreateAgentRequest is the request to create a configuration and session.
type CreateAgentRequest struct {
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// InteractRequest carries one user turn.
type InteractRequest struct {
	Input string `json:"input"`
}

// SessionStateResponse is returned by create and start.
type SessionStateResponse struct {
	SessionID string               `json:"session_id"`
	Status    domain.SessionStatus `json:"status"`
}

// SessionStatusResponse is returned by the status endpoint.
type SessionStatusResponse struct {
	SessionID    string               `json:"session_id"`
	Status       domain.SessionStatus `json:"status"`
	LastActiveAt time.Time            `json:"last_active_at"`
}

// CreateAgent creates a configuration and a session in created status.
// POST /agents
func (h *Handler) CreateAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateAgentRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return errorJSON(c, http.StatusBadRequest, "name is required")
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}

	session, err := h.service.Create(ctx, service.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Parameters:  req.Parameters,
	})
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(http.StatusOK, SessionStateResponse{
		SessionID: session.SessionID,
		Status:    session.Status,
	})
}

// StartAgent registers the session's agent with the backend.
// POST /agents/:session_id/start
func (h *Handler) StartAgent(c echo.Context) error {
	session, err := h.service.Start(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(http.StatusOK, SessionStateResponse{
		SessionID: session.SessionID,
		Status:    session.Status,
	})
}

// InteractAgent forwards input to the running agent and relays the backend
// result as is, including backend error bodies.
// POST /agents/:session_id/interact
func (h *Handler) InteractAgent(c echo.Context) error {
	var req InteractRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Input == "" {
		return errorJSON(c, http.StatusBadRequest, "input is required")
	}

	res, err := h.service.Interact(c.Request().Context(), c.Param("session_id"), req.Input)
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return errorJSON(c, http.StatusBadRequest, "Session is not running")
	case err != nil:
		return writeServiceError(c, err)
	}

	if !res.OK() {
		bridgeErr := res.Err()
		resp := ErrorResponse{Error: true, Message: bridgeErr.Message}
		if len(bridgeErr.Detail) > 0 {
			resp.Details = bridgeErr.Detail
		}
		return c.JSON(http.StatusOK, resp)
	}
	return c.JSONBlob(http.StatusOK, res.Payload())
}

// AgentStatus returns the session status.
// GET /agents/:session_id/status
func (h *Handler) AgentStatus(c echo.Context) error {
	session, err := h.service.Status(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(http.StatusOK, SessionStatusResponse{
		SessionID:    session.SessionID,
		Status:       session.Status,
		LastActiveAt: session.LastActiveAt,
	})
}

// ListSessions lists sessions, most recently active first.
// GET /sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.service.List(c.Request().Context())
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// GetSession returns one session with its configuration.
// GET /sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	detail, err := h.service.Get(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}
