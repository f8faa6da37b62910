package api

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/validate"
)

type pathRequest struct {
	Path string `json:"path"`
}

type writeFileRequest struct {
	Path          string `json:"path"`
	ContentBase64 string `json:"content_base64"`
}

func (h *Handler) readFile(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	path, err := validate.RelativePath(req.Path)
	if err != nil {
		return err
	}
	content, err := h.router.ReadFile(c.Request().Context(), c.Param("id"), path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"path":           path,
		"content_base64": base64.StdEncoding.EncodeToString(content),
	})
}

func (h *Handler) writeFile(c echo.Context) error {
	var req writeFileRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	path, err := validate.RelativePath(req.Path)
	if err != nil {
		return err
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		return apperror.New(apperror.KindValidation, "content_base64 is not valid base64")
	}
	if err := h.router.WriteFile(c.Request().Context(), c.Param("id"), path, content); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) listFiles(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	path, err := validate.OptionalRelativePath(req.Path, ".")
	if err != nil {
		return err
	}
	entries, err := h.router.ListFiles(c.Request().Context(), c.Param("id"), path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) deleteFile(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.KindValidation, "invalid request body")
	}
	path, err := validate.RelativePath(req.Path)
	if err != nil {
		return err
	}
	if err := h.router.DeleteFile(c.Request().Context(), c.Param("id"), path); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// uploadFile accepts a raw binary body (unlike the other fs endpoints,
// which are JSON) so large files avoid base64 inflation. The target path
// is given as a query parameter.
func (h *Handler) uploadFile(c echo.Context) error {
	path, err := validate.RelativePath(c.QueryParam("path"))
	if err != nil {
		return err
	}
	content, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, err, "failed to read upload body")
	}
	if err := h.router.UploadFile(c.Request().Context(), c.Param("id"), path, content); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) downloadFile(c echo.Context) error {
	path, err := validate.RelativePath(c.QueryParam("path"))
	if err != nil {
		return err
	}
	content, err := h.router.DownloadFile(c.Request().Context(), c.Param("id"), path)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/octet-stream", content)
}
