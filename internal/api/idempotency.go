package api

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shipyard-neo/bay/internal/idempotency"
)

const idempotencyKeyHeader = "Idempotency-Key"

// withIdempotency wraps a write handler so that a request carrying an
// Idempotency-Key header either replays the cached response for a
// previously seen (owner, key, fingerprint) or executes fn and caches its
// outcome. Requests without the header always execute.
func (h *Handler) withIdempotency(fn echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(idempotencyKeyHeader)
		if key == "" {
			return fn(c)
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		c.Request().Body = io.NopCloser(bytes.NewReader(body))

		owner := ownerID(c)
		fingerprint := idempotency.Fingerprint(c.Request().Method, c.Request().URL.Path, body)

		cached, err := h.idempotency.Lookup(c.Request().Context(), owner, key, fingerprint)
		if err != nil {
			return err
		}
		if cached != nil {
			return c.Blob(cached.ResponseCode, echo.MIMEApplicationJSON, []byte(cached.ResponseBody))
		}

		rec := &responseRecorder{ResponseWriter: c.Response().Writer, buf: &bytes.Buffer{}, status: http.StatusOK}
		c.Response().Writer = rec

		if err := fn(c); err != nil {
			return err
		}

		return h.idempotency.Store(c.Request().Context(), owner, key, fingerprint, rec.status, rec.buf.String())
	}
}

type responseRecorder struct {
	http.ResponseWriter
	buf    *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
