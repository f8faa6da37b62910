package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// runGC triggers an out-of-cycle GC pass, sharing the scheduler's run_lock
// with the periodic loop so the two never run concurrently.
func (h *Handler) runGC(c echo.Context) error {
	results := h.gcScheduler.RunOnce(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}
