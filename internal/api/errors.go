package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shipyard-neo/bay/internal/apperror"
)

// errorMiddleware centralizes apperror.Kind -> HTTP status mapping so
// individual handlers only ever return errors, never call c.JSON for the
// error case themselves.
func (h *Handler) errorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err == nil {
			return nil
		}
		if herr, ok := err.(*echo.HTTPError); ok {
			return herr
		}

		status := statusFor(apperror.KindOf(err))
		h.log.Warn().Err(err).Str("path", c.Path()).Int("status", status).Msg("request failed")
		body := map[string]any{
			"kind":    string(apperror.KindOf(err)),
			"message": err.Error(),
		}
		var aerr *apperror.Error
		if errors.As(err, &aerr) && aerr.Details != nil {
			body["details"] = aerr.Details
		}
		return c.JSON(status, map[string]any{"error": body})
	}
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindNotFound, apperror.KindFileNotFound:
		return http.StatusNotFound
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindValidation, apperror.KindInvalidPath:
		return http.StatusBadRequest
	case apperror.KindConflict, apperror.KindSandboxTTLInfinite:
		return http.StatusConflict
	case apperror.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case apperror.KindSessionNotReady:
		return http.StatusServiceUnavailable
	case apperror.KindTimeout:
		return http.StatusGatewayTimeout
	case apperror.KindCapabilityNotSupported:
		return http.StatusNotImplemented
	case apperror.KindSandboxExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
