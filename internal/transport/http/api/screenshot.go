package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ScreenshotFailure is returned when the executor cannot supply a frame.
type ScreenshotFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AgentScreenshot pulls a frame straight from the executor so viewers do not
// wait on the agent backend.
// GET /agents/:session_id/screenshot
func (h *Handler) AgentScreenshot(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := h.service.Status(ctx, c.Param("session_id")); err != nil {
		return writeServiceError(c, err)
	}

	quality := 0
	if q := c.QueryParam("quality"); q != "" {
		var err error
		if quality, err = strconv.Atoi(q); err != nil {
			return c.JSON(http.StatusBadRequest, ScreenshotFailure{Error: "quality must be an integer"})
		}
	}

	resp, err := h.screenshots.Screenshot(ctx, c.QueryParam("format"), quality)
	if err != nil {
		return c.JSON(http.StatusOK, ScreenshotFailure{Error: "Failed to get screenshot from executor: " + err.Error()})
	}
	if !resp.Success {
		return c.JSON(http.StatusOK, ScreenshotFailure{Error: resp.Error})
	}
	return c.JSON(http.StatusOK, resp)
}
