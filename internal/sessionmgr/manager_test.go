package sessionmgr

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-neo/bay/internal/config"
	"github.com/shipyard-neo/bay/internal/db"
	"github.com/shipyard-neo/bay/internal/driver"
	"github.com/shipyard-neo/bay/internal/model"
	"github.com/shipyard-neo/bay/internal/store"
)

// fakeDriver is an in-memory driver.Driver whose containers become
// running immediately, so waitReady never has to actually poll.
type fakeDriver struct {
	nextID        int
	containers    map[string]*driver.InspectResult
	failCreate    bool
	failStart     map[string]bool
	stoppedCount  int
	lastSpec      driver.ContainerSpec
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{containers: map[string]*driver.InspectResult{}, failStart: map[string]bool{}}
}

func (f *fakeDriver) CreateContainer(ctx context.Context, name string, spec driver.ContainerSpec) (string, error) {
	if f.failCreate {
		return "", driver.ErrResourceExhausted
	}
	f.nextID++
	f.lastSpec = spec
	id := name
	f.containers[id] = &driver.InspectResult{ID: id, State: driver.ContainerCreating, ContainerIP: "10.0.0.1", ContainerPort: 8000}
	return id, nil
}

func (f *fakeDriver) StartContainer(ctx context.Context, id string) error {
	if f.failStart[id] {
		return driver.ErrConnectionFailed
	}
	f.containers[id].State = driver.ContainerRunning
	return nil
}

func (f *fakeDriver) StopContainer(ctx context.Context, id string) error {
	f.stoppedCount++
	delete(f.containers, id)
	return nil
}

func (f *fakeDriver) InspectContainer(ctx context.Context, id string) (*driver.InspectResult, error) {
	insp, ok := f.containers[id]
	if !ok {
		return nil, driver.ErrContainerNotFound
	}
	return insp, nil
}

func (f *fakeDriver) ListContainers(ctx context.Context, labelFilter map[string]string) ([]*driver.InspectResult, error) {
	var out []*driver.InspectResult
	for _, insp := range f.containers {
		out = append(out, insp)
	}
	return out, nil
}

func (f *fakeDriver) Exec(ctx context.Context, id string, cmd []string) (io.ReadWriteCloser, error) {
	panic("not used")
}
func (f *fakeDriver) ListFiles(ctx context.Context, id, path string) ([]*driver.FileEntry, error) {
	panic("not used")
}
func (f *fakeDriver) PutFile(ctx context.Context, id, path string, content io.Reader) error {
	panic("not used")
}
func (f *fakeDriver) GetFile(ctx context.Context, id, path string) (io.ReadCloser, error) {
	panic("not used")
}
func (f *fakeDriver) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	panic("not used")
}
func (f *fakeDriver) RemoveVolume(ctx context.Context, name string) error { panic("not used") }
func (f *fakeDriver) ListVolumes(ctx context.Context, labelFilter map[string]string) ([]driver.VolumeInfo, error) {
	panic("not used")
}
func (f *fakeDriver) DriverName() string               { return "fake" }
func (f *fakeDriver) Healthy(ctx context.Context) error { return nil }
func (f *fakeDriver) Close() error                      { return nil }

func newTestManager(t *testing.T) (*Manager, *fakeDriver) {
	t.Helper()
	sqlDB, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	drv := newFakeDriver()
	mgr := New(store.NewSessionStore(sqlDB), drv, driver.ConnectContainerNetwork, "", 2*time.Second, "test-instance", zerolog.Nop())
	return mgr, drv
}

func singleContainerProfile() *config.ProfileConfig {
	p := &config.ProfileConfig{
		Name: "default",
		Containers: []config.ContainerSpec{
			{Name: "main", Image: "python:3.11-slim", Capabilities: []string{"exec_python", "fs"}, PrimaryFor: []string{"exec_python", "fs"}},
		},
		Startup: config.StartupConfig{Order: "parallel", WaitForAll: true, RollbackOnFail: true},
	}
	return p
}

func multiContainerProfile() *config.ProfileConfig {
	return &config.ProfileConfig{
		Name: "browser",
		Containers: []config.ContainerSpec{
			{Name: "main", Image: "python:3.11-slim", Capabilities: []string{"exec_python"}, PrimaryFor: []string{"exec_python"}},
			{Name: "browser", Image: "bay/browser:latest", Capabilities: []string{"exec_browser"}, PrimaryFor: []string{"exec_browser"}},
		},
		Startup: config.StartupConfig{Order: "sequential", WaitForAll: true, RollbackOnFail: true},
	}
}

func TestMaterializeSingleContainerSucceeds(t *testing.T) {
	mgr, _ := newTestManager(t)
	sess, err := mgr.Materialize(t.Context(), "sbx-1", singleContainerProfile(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, sess.Status)

	containers, err := sess.Containers()
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "http://10.0.0.1:8000", containers[0].Endpoint)
}

func TestMaterializeSequentialMultiContainer(t *testing.T) {
	mgr, drv := newTestManager(t)
	sess, err := mgr.Materialize(t.Context(), "sbx-1", multiContainerProfile(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, sess.Status)
	assert.Len(t, drv.containers, 2)
}

func TestMaterializeRollsBackOnFailureWhenConfigured(t *testing.T) {
	mgr, drv := newTestManager(t)
	drv.failCreate = true

	_, err := mgr.Materialize(t.Context(), "sbx-1", singleContainerProfile(), nil, nil)
	require.Error(t, err)
	assert.Empty(t, drv.containers)
}

func TestMaterializeDegradesWhenRollbackDisabled(t *testing.T) {
	mgr, drv := newTestManager(t)
	profile := singleContainerProfile()
	profile.Startup.RollbackOnFail = false
	profile.Startup.WaitForAll = false

	drv.failCreate = true
	sess, err := mgr.Materialize(t.Context(), "sbx-1", profile, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SessionDegraded, sess.Status)
}

func TestMaterializeMountsCargoVolumes(t *testing.T) {
	mgr, drv := newTestManager(t)
	sess, err := mgr.Materialize(t.Context(), "sbx-1", singleContainerProfile(), map[string]string{"data": "bay-cargo-cgo-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, sess.Status)
	assert.Equal(t, []driver.Mount{{VolumeName: "bay-cargo-cgo-1", Target: "/cargo/data"}}, drv.lastSpec.Mounts)
}

func TestDestroyStopsAllContainersAndMarksStopped(t *testing.T) {
	mgr, drv := newTestManager(t)
	sess, err := mgr.Materialize(t.Context(), "sbx-1", multiContainerProfile(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Destroy(t.Context(), sess))
	assert.Equal(t, 2, drv.stoppedCount)

	got, err := mgr.store.Get(t.Context(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStopped, got.Status)
}
