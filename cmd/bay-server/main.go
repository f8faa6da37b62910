// Package main is the entry point for the Bay orchestrator server.
//
// Bay provisions, manages, and routes capability calls to ephemeral
// containerized sandboxes.
//
// Usage:
//
//	bay-server [flags]
//
// Flags:
//
//	--config string   Path to config file (default: discovered via BAY_CONFIG_FILE/config.yaml)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shipyard-neo/bay/internal/adapterpool"
	"github.com/shipyard-neo/bay/internal/api"
	"github.com/shipyard-neo/bay/internal/cargomgr"
	"github.com/shipyard-neo/bay/internal/config"
	"github.com/shipyard-neo/bay/internal/db"
	"github.com/shipyard-neo/bay/internal/driver"
	"github.com/shipyard-neo/bay/internal/driver/cluster"
	"github.com/shipyard-neo/bay/internal/driver/docker"
	"github.com/shipyard-neo/bay/internal/gc"
	"github.com/shipyard-neo/bay/internal/gc/tasks"
	"github.com/shipyard-neo/bay/internal/idempotency"
	"github.com/shipyard-neo/bay/internal/metrics"
	"github.com/shipyard-neo/bay/internal/router"
	"github.com/shipyard-neo/bay/internal/sandboxlock"
	"github.com/shipyard-neo/bay/internal/sandboxmgr"
	"github.com/shipyard-neo/bay/internal/sessionmgr"
	"github.com/shipyard-neo/bay/internal/store"
)

// Version information (set via ldflags at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if os.Getenv("BAY_ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	log.Info().
		Str("version", Version).
		Str("commit", GitCommit).
		Str("built", BuildDate).
		Msg("Bay orchestrator starting")

	settings, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	sqlDB, err := db.Open(settings.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer sqlDB.Close()

	drv, err := newDriver(settings, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize driver")
	}
	defer drv.Close()

	healthCtx, healthCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := drv.Healthy(healthCtx); err != nil {
		log.Fatal().Err(err).Str("driver", drv.DriverName()).Msg("driver health check failed")
	}
	healthCancel()

	sandboxStore := store.NewSandboxStore(sqlDB)
	sessionStore := store.NewSessionStore(sqlDB)
	cargoStore := store.NewCargoStore(sqlDB)
	idempotencyStore := store.NewIdempotencyStore(sqlDB)

	locks := sandboxlock.NewRegistry()

	connectMode := driver.ConnectMode(settings.Driver.Docker.ConnectMode)
	if settings.Driver.Type == cluster.Name {
		connectMode = driver.ConnectContainerNetwork
	}
	readyTimeout := settings.Driver.K8s.PodStartupTimeout
	if readyTimeout == 0 {
		readyTimeout = 60 * time.Second
	}

	sessionMgr := sessionmgr.New(sessionStore, drv, connectMode, settings.Driver.Docker.HostAddress, readyTimeout, settings.GC.GetInstanceID(), log.Logger)
	sandboxMgr := sandboxmgr.New(sandboxStore, sessionMgr, locks, settings, log.Logger)
	cargoMgr := cargomgr.New(cargoStore, sandboxStore, drv, settings.Cargo.MaxPerOwner, log.Logger)

	pool := adapterpool.New()
	rt := router.New(sandboxMgr, sessionStore, pool, log.Logger)
	idem := idempotency.New(idempotencyStore, settings.Idempotency.TTL)

	metrics.Register()

	gcTasks := buildGCTasks(settings, sandboxStore, sessionStore, cargoStore, sessionMgr, cargoMgr, locks, drv, log.Logger)
	scheduler := gc.NewScheduler(gcTasks, settings.GC.Interval, gc.NoopCoordinator{}, settings.GC.GetInstanceID(), log.Logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	handler := api.NewHandler(sandboxMgr, sessionStore, cargoMgr, rt, idem, scheduler, settings.Security, log.Logger)
	e := api.NewServer(handler)

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
		log.Info().Str("addr", addr).Str("driver", drv.DriverName()).Msg("server listening")
		if err := e.Start(addr); err != nil && err != echo.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("server startup failed")
	}
}

func newDriver(settings *config.Settings, logger zerolog.Logger) (driver.Driver, error) {
	switch settings.Driver.Type {
	case docker.Name:
		return docker.New(settings.Driver.Docker, logger)
	case cluster.Name:
		return cluster.New(settings.Driver.K8s, logger)
	default:
		return nil, fmt.Errorf("unknown driver type %q", settings.Driver.Type)
	}
}

func buildGCTasks(
	settings *config.Settings,
	sandboxStore *store.SandboxStore,
	sessionStore *store.SessionStore,
	cargoStore *store.CargoStore,
	sessionMgr *sessionmgr.Manager,
	cargoMgr *cargomgr.Manager,
	locks *sandboxlock.Registry,
	drv driver.Driver,
	logger zerolog.Logger,
) []gc.Task {
	var out []gc.Task
	if settings.GC.IdleSession.Enabled {
		out = append(out, tasks.NewIdleSessionGC(sandboxStore, sessionStore, sessionMgr, locks, logger))
	}
	if settings.GC.ExpiredSandbox.Enabled {
		out = append(out, tasks.NewExpiredSandboxGC(sandboxStore, sessionStore, sessionMgr, cargoMgr, locks, settings.GC.ExpiredSandbox.GraceDuration, logger))
	}
	if settings.GC.OrphanCargo.Enabled {
		out = append(out, tasks.NewOrphanCargoGC(cargoStore, cargoMgr, settings.GC.OrphanCargo.GraceDuration))
	}
	if settings.GC.OrphanContainer.Enabled {
		out = append(out, tasks.NewOrphanContainerGC(drv, sessionStore, settings.GC.GetInstanceID()))
	}
	return out
}
