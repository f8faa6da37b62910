// Package sessionmgr implements the Session Manager: materializing a
// profile's containers for a sandbox, probing them for readiness, and
// tearing them down.
package sessionmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/config"
	"github.com/shipyard-neo/bay/internal/driver"
	"github.com/shipyard-neo/bay/internal/model"
	"github.com/shipyard-neo/bay/internal/store"
)

// Manager owns Session materialization against a Driver, following the
// profile's ContainerSpec list and StartupConfig.
type Manager struct {
	store       *store.SessionStore
	drv         driver.Driver
	connectMode driver.ConnectMode
	hostAddress string
	readyTimeout time.Duration
	instanceID  string
	log         zerolog.Logger
}

func New(st *store.SessionStore, drv driver.Driver, connectMode driver.ConnectMode, hostAddress string, readyTimeout time.Duration, instanceID string, log zerolog.Logger) *Manager {
	return &Manager{
		store:        st,
		drv:          drv,
		connectMode:  connectMode,
		hostAddress:  hostAddress,
		readyTimeout: readyTimeout,
		instanceID:   instanceID,
		log:          log.With().Str("component", "sessionmgr").Logger(),
	}
}

func newSessionID() string {
	return "ses-" + uuid.New().String()[:12]
}

// Materialize creates a new Session for sandboxID using the given profile
// and a resolver that turns a ContainerSpec's cargo mounts into
// driver-level volume mounts (cargoVolumes maps cargo name -> volume name).
func (m *Manager) Materialize(ctx context.Context, sandboxID string, profile *config.ProfileConfig, cargoVolumes map[string]string, cargoID *string) (*model.Session, error) {
	sessionID := newSessionID()
	sess := &model.Session{
		ID:          sessionID,
		SandboxID:   sandboxID,
		ProfileName: profile.Name,
		Status:      model.SessionPending,
		CreatedAt:   time.Now(),
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	if err := m.store.UpdateStatus(ctx, sessionID, model.SessionStarting, ""); err != nil {
		return nil, err
	}

	containers := profile.GetContainers()
	results := make([]model.ContainerRuntime, len(containers))
	created := make([]string, 0, len(containers))

	rollback := func(cause error) error {
		for _, id := range created {
			_ = m.drv.StopContainer(context.Background(), id)
		}
		m.store.UpdateStatus(ctx, sessionID, model.SessionFailed, cause.Error())
		return apperror.Wrap(apperror.KindRuntimeError, cause, "failed to materialize session")
	}

	cargoIDLabel := ""
	if cargoID != nil {
		cargoIDLabel = *cargoID
	}

	run := func(i int, spec config.ContainerSpec) error {
		name := fmt.Sprintf("%s%s-%s", driver.ContainerNamePrefix, sessionID, spec.Name)

		var mounts []driver.Mount
		for cargoName, volName := range cargoVolumes {
			mounts = append(mounts, driver.Mount{VolumeName: volName, Target: "/cargo/" + cargoName})
		}

		dspec := driver.ContainerSpec{
			Name:    spec.Name,
			Image:   spec.Image,
			Env:     spec.Env,
			WorkDir: spec.WorkDir,
			Resources: driver.ResourceSpec{
				CPUCores: spec.Resources.CPUCores,
				MemoryMB: spec.Resources.MemoryMB,
			},
			Mounts: mounts,
			Labels: map[string]string{
				driver.LabelSessionID:  sessionID,
				driver.LabelSandboxID:  sandboxID,
				driver.LabelCargoID:    cargoIDLabel,
				driver.LabelInstanceID: m.instanceID,
			},
			EnableNetworking: true,
		}

		id, err := m.drv.CreateContainer(ctx, name, dspec)
		if err != nil {
			return err
		}
		created = append(created, id)

		if err := m.drv.StartContainer(ctx, id); err != nil {
			return err
		}

		insp, err := m.waitReady(ctx, id)
		if err != nil {
			return err
		}

		endpoint, err := driver.ResolveEndpoint(m.connectMode, *insp, m.hostAddress)
		if err != nil {
			return err
		}

		results[i] = model.ContainerRuntime{
			Name:         spec.Name,
			ContainerID:  id,
			Endpoint:     endpoint,
			Capabilities: spec.Capabilities,
			PrimaryFor:   spec.PrimaryFor,
			Healthy:      true,
		}
		return nil
	}

	var runErr error
	if profile.Startup.Order == "sequential" {
		for i, spec := range containers {
			if err := run(i, spec); err != nil {
				runErr = err
				break
			}
		}
	} else {
		var wg sync.WaitGroup
		errs := make([]error, len(containers))
		for i, spec := range containers {
			wg.Add(1)
			go func(i int, spec config.ContainerSpec) {
				defer wg.Done()
				errs[i] = run(i, spec)
			}(i, spec)
		}
		wg.Wait()
		for _, e := range errs {
			if e != nil {
				runErr = e
				break
			}
		}
	}

	if runErr != nil {
		if profile.Startup.RollbackOnFail || profile.Startup.WaitForAll {
			return nil, rollback(runErr)
		}
		m.store.UpdateStatus(ctx, sessionID, model.SessionDegraded, runErr.Error())
	}

	if err := sess.SetContainers(results); err != nil {
		return nil, err
	}
	if err := m.store.SetContainers(ctx, sessionID, sess.ContainersJSON); err != nil {
		return nil, err
	}

	if runErr == nil {
		if err := m.store.MarkReady(ctx, sessionID, time.Now()); err != nil {
			return nil, err
		}
		sess.Status = model.SessionRunning
	} else {
		sess.Status = model.SessionDegraded
	}

	return sess, nil
}

// waitReady polls InspectContainer until the container reports running or
// the readiness deadline elapses.
func (m *Manager) waitReady(ctx context.Context, id string) (*driver.InspectResult, error) {
	deadline := time.Now().Add(m.readyTimeout)
	backoff := 500 * time.Millisecond

	for {
		insp, err := m.drv.InspectContainer(ctx, id)
		if err != nil {
			return nil, err
		}
		if insp.State == driver.ContainerRunning {
			return insp, nil
		}
		if insp.State == driver.ContainerError {
			return nil, fmt.Errorf("container %s entered error state: %s", id, insp.Error)
		}
		if time.Now().After(deadline) {
			return nil, apperror.New(apperror.KindTimeout, "container did not become ready in time")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Destroy stops every container of a session and marks it stopped.
func (m *Manager) Destroy(ctx context.Context, sess *model.Session) error {
	containers, err := sess.Containers()
	if err != nil {
		return err
	}
	for _, c := range containers {
		if err := m.drv.StopContainer(ctx, c.ContainerID); err != nil {
			m.log.Warn().Err(err).Str("container_id", c.ContainerID).Msg("failed to stop container")
		}
	}
	return m.store.MarkStopped(ctx, sess.ID, time.Now())
}
