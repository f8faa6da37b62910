package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shipyard-neo/bay/internal/apperror"
)

type execRequest struct {
	Code    string `json:"code"`
	Command string `json:"command"`
	Script  string `json:"script"`
}

func (h *Handler) execPython(c echo.Context) error {
	var req execRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	if req.Code == "" {
		return apperror.New(apperror.KindValidation, "code must not be empty")
	}
	result, err := h.router.ExecPython(c.Request().Context(), c.Param("id"), req.Code)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) execShell(c echo.Context) error {
	var req execRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	if req.Command == "" {
		return apperror.New(apperror.KindValidation, "command must not be empty")
	}
	result, err := h.router.ExecShell(c.Request().Context(), c.Param("id"), req.Command)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) execBrowser(c echo.Context) error {
	var req execRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	if req.Script == "" {
		return apperror.New(apperror.KindValidation, "script must not be empty")
	}
	result, err := h.router.ExecBrowser(c.Request().Context(), c.Param("id"), req.Script)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
