package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/model"
)

type createCargoRequest struct {
	Name string `json:"name"`
}

type cargoResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Managed    bool      `json:"managed"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func cargoToResponse(c *model.Cargo) cargoResponse {
	return cargoResponse{
		ID:         c.ID,
		Name:       c.Name,
		Managed:    c.IsManaged(),
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
	}
}

func (h *Handler) createCargo(c echo.Context) error {
	var req createCargoRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	if req.Name == "" {
		return apperror.New(apperror.KindValidation, "name must not be empty")
	}
	cargo, err := h.cargos.Create(c.Request().Context(), ownerID(c), req.Name, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cargoToResponse(cargo))
}

func (h *Handler) listCargos(c echo.Context) error {
	rows, err := h.cargos.List(c.Request().Context(), ownerID(c))
	if err != nil {
		return err
	}
	out := make([]cargoResponse, 0, len(rows))
	for _, cargo := range rows {
		out = append(out, cargoToResponse(cargo))
	}
	return c.JSON(http.StatusOK, map[string]any{"cargos": out})
}

func (h *Handler) deleteCargo(c echo.Context) error {
	force := c.QueryParam("force") == "true"
	if err := h.cargos.Delete(c.Request().Context(), ownerID(c), c.Param("name"), force); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
