package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/model"
)

type createSandboxRequest struct {
	ProfileName string `json:"profile_name"`
	TTLSeconds  *int64 `json:"ttl_seconds,omitempty"`
}

type sandboxResponse struct {
	ID          string     `json:"id"`
	ProfileName string     `json:"profile_name"`
	Status      string     `json:"status"`
	TTLSeconds  *int64     `json:"ttl_seconds,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func sandboxToResponse(sb *model.Sandbox) sandboxResponse {
	return sandboxResponse{
		ID:          sb.ID,
		ProfileName: sb.ProfileName,
		Status:      string(sb.ComputeStatus(time.Now())),
		TTLSeconds:  sb.TTLSeconds,
		ExpiresAt:   sb.ExpiresAt,
		CreatedAt:   sb.CreatedAt,
	}
}

func (h *Handler) createSandbox(c echo.Context) error {
	var req createSandboxRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	if req.ProfileName == "" {
		req.ProfileName = "default"
	}

	sb, err := h.sandboxes.Create(c.Request().Context(), ownerID(c), req.ProfileName, req.TTLSeconds)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sandboxToResponse(sb))
}

func (h *Handler) getSandbox(c echo.Context) error {
	sb, err := h.sandboxes.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sandboxToResponse(sb))
}

func (h *Handler) listSandboxes(c echo.Context) error {
	rows, err := h.sandboxes.List(c.Request().Context(), ownerID(c))
	if err != nil {
		return err
	}
	out := make([]sandboxResponse, 0, len(rows))
	for _, sb := range rows {
		out = append(out, sandboxToResponse(sb))
	}
	return c.JSON(http.StatusOK, map[string]any{"sandboxes": out})
}

func (h *Handler) deleteSandbox(c echo.Context) error {
	if err := h.sandboxes.Delete(c.Request().Context(), c.Param("id"), h.sessions); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type extendTTLRequest struct {
	ExtendBySeconds int64 `json:"extend_by_seconds"`
}

func (h *Handler) extendTTL(c echo.Context) error {
	var req extendTTLRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	if err := h.sandboxes.ExtendTTL(c.Request().Context(), c.Param("id"), req.ExtendBySeconds); err != nil {
		return err
	}
	sb, err := h.sandboxes.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sandboxToResponse(sb))
}
