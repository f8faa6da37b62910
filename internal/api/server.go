// Package api wires the orchestrator's managers to an echo HTTP server:
// route registration, auth, idempotency, and error-to-status mapping.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/cargomgr"
	"github.com/shipyard-neo/bay/internal/config"
	"github.com/shipyard-neo/bay/internal/gc"
	"github.com/shipyard-neo/bay/internal/idempotency"
	"github.com/shipyard-neo/bay/internal/router"
	"github.com/shipyard-neo/bay/internal/sandboxmgr"
	"github.com/shipyard-neo/bay/internal/store"
)

// Handler holds the dependencies every route needs.
type Handler struct {
	sandboxes   *sandboxmgr.Manager
	sessions    *store.SessionStore
	cargos      *cargomgr.Manager
	router      *router.Router
	idempotency *idempotency.Service
	gcScheduler *gc.Scheduler
	security    config.SecurityConfig
	log         zerolog.Logger
}

func NewHandler(
	sandboxes *sandboxmgr.Manager,
	sessions *store.SessionStore,
	cargos *cargomgr.Manager,
	rt *router.Router,
	idem *idempotency.Service,
	gcScheduler *gc.Scheduler,
	security config.SecurityConfig,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		sandboxes:   sandboxes,
		sessions:    sessions,
		cargos:      cargos,
		router:      rt,
		idempotency: idem,
		gcScheduler: gcScheduler,
		security:    security,
		log:         log.With().Str("component", "api").Logger(),
	}
}

// NewServer builds an echo instance with every route, the auth
// middleware, and /metrics registered.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/v1")
	if h.security.APIKey != "" {
		v1.Use(h.authMiddleware)
	}
	v1.Use(h.errorMiddleware)

	v1.POST("/sandboxes", h.withIdempotency(h.createSandbox))
	v1.GET("/sandboxes", h.listSandboxes)
	v1.GET("/sandboxes/:id", h.getSandbox)
	v1.DELETE("/sandboxes/:id", h.withIdempotency(h.deleteSandbox))
	v1.POST("/sandboxes/:id/ttl", h.withIdempotency(h.extendTTL))

	v1.POST("/sandboxes/:id/ipython/exec", h.execPython)
	v1.POST("/sandboxes/:id/shell/exec", h.execShell)
	v1.POST("/sandboxes/:id/browser/exec", h.execBrowser)
	v1.GET("/sandboxes/:id/browser/interact", h.interactBrowser)

	v1.POST("/sandboxes/:id/fs/read", h.readFile)
	v1.POST("/sandboxes/:id/fs/write", h.writeFile)
	v1.POST("/sandboxes/:id/fs/list", h.listFiles)
	v1.POST("/sandboxes/:id/fs/delete", h.deleteFile)
	v1.POST("/sandboxes/:id/fs/upload", h.uploadFile)
	v1.GET("/sandboxes/:id/fs/download", h.downloadFile)

	v1.POST("/cargos", h.withIdempotency(h.createCargo))
	v1.GET("/cargos", h.listCargos)
	v1.DELETE("/cargos/:name", h.withIdempotency(h.deleteCargo))

	v1.POST("/admin/gc/run", h.runGC)

	return e
}

func (h *Handler) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get("X-Bay-API-Key")
		if key == "" {
			key = c.QueryParam("api_key")
		}
		if key != h.security.APIKey {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
		}
		return next(c)
	}
}

// ownerID resolves the caller's owner identity from the X-Bay-Owner-ID
// header, falling back to the shared owner "default" when the header is
// absent. API keys are not mapped to owners.
func ownerID(c echo.Context) string {
	if owner := c.Request().Header.Get("X-Bay-Owner-ID"); owner != "" {
		return owner
	}
	return "default"
}
