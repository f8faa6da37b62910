package cargomgr

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/db"
	"github.com/shipyard-neo/bay/internal/driver"
	"github.com/shipyard-neo/bay/internal/model"
	"github.com/shipyard-neo/bay/internal/store"
)

// fakeDriver is a minimal driver.Driver stub covering only the volume
// operations Cargo Manager calls; container methods panic if reached.
type fakeDriver struct {
	volumes         map[string]bool
	failCreateNames map[string]bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{volumes: map[string]bool{}, failCreateNames: map[string]bool{}}
}

func (f *fakeDriver) CreateContainer(ctx context.Context, name string, spec driver.ContainerSpec) (string, error) {
	panic("not used")
}
func (f *fakeDriver) StartContainer(ctx context.Context, id string) error   { panic("not used") }
func (f *fakeDriver) StopContainer(ctx context.Context, id string) error    { panic("not used") }
func (f *fakeDriver) InspectContainer(ctx context.Context, id string) (*driver.InspectResult, error) {
	panic("not used")
}
func (f *fakeDriver) ListContainers(ctx context.Context, labelFilter map[string]string) ([]*driver.InspectResult, error) {
	panic("not used")
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
	if f.failCreateNames[name] {
		return assert.AnError
	}
	f.volumes[name] = true
	return nil
}

func (f *fakeDriver) RemoveVolume(ctx context.Context, name string) error {
	delete(f.volumes, name)
	return nil
}

func (f *fakeDriver) ListVolumes(ctx context.Context, labelFilter map[string]string) ([]driver.VolumeInfo, error) {
	out := make([]driver.VolumeInfo, 0, len(f.volumes))
	for name := range f.volumes {
		out = append(out, driver.VolumeInfo{Name: name})
	}
	return out, nil
}

func (f *fakeDriver) DriverName() string             { return "fake" }
func (f *fakeDriver) Healthy(ctx context.Context) error { return nil }
func (f *fakeDriver) Close() error                    { return nil }

func newTestManager(t *testing.T, maxPerOwner int) (*Manager, *store.SandboxStore, *fakeDriver) {
	t.Helper()
	sqlDB, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	drv := newFakeDriver()
	sandboxes := store.NewSandboxStore(sqlDB)
	mgr := New(store.NewCargoStore(sqlDB), sandboxes, drv, maxPerOwner, zerolog.Nop())
	return mgr, sandboxes, drv
}

func TestManagerCreateProvisionsVolumeAndRow(t *testing.T) {
	mgr, _, drv := newTestManager(t, 10)

	c, err := mgr.Create(t.Context(), "owner-1", "data", nil)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", c.OwnerID)
	assert.True(t, drv.volumes[c.VolumeName])

	got, err := mgr.Get(t.Context(), "owner-1", "data")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestManagerCreateRejectsDuplicateName(t *testing.T) {
	mgr, _, _ := newTestManager(t, 10)
	_, err := mgr.Create(t.Context(), "owner-1", "data", nil)
	require.NoError(t, err)

	_, err = mgr.Create(t.Context(), "owner-1", "data", nil)
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestManagerCreateEnforcesQuota(t *testing.T) {
	mgr, _, _ := newTestManager(t, 1)
	_, err := mgr.Create(t.Context(), "owner-1", "first", nil)
	require.NoError(t, err)

	_, err = mgr.Create(t.Context(), "owner-1", "second", nil)
	require.Error(t, err)
	assert.Equal(t, apperror.KindQuotaExceeded, apperror.KindOf(err))
}

func TestManagerDeleteRemovesVolumeAndSoftDeletesRow(t *testing.T) {
	mgr, _, drv := newTestManager(t, 10)
	c, err := mgr.Create(t.Context(), "owner-1", "data", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(t.Context(), "owner-1", "data", false))
	assert.False(t, drv.volumes[c.VolumeName])

	_, err = mgr.Get(t.Context(), "owner-1", "data")
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestManagerDeleteInternalByID(t *testing.T) {
	mgr, _, drv := newTestManager(t, 10)
	c, err := mgr.Create(t.Context(), "owner-1", "data", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteInternalByID(t.Context(), c.ID, false))
	assert.False(t, drv.volumes[c.VolumeName])
}

func TestManagerTouchUpdatesLastUsed(t *testing.T) {
	mgr, _, _ := newTestManager(t, 10)
	c, err := mgr.Create(t.Context(), "owner-1", "data", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Touch(t.Context(), c.ID))
}

func TestManagerDeleteRejectsExternalCargoReferencedByLiveSandbox(t *testing.T) {
	mgr, sandboxes, drv := newTestManager(t, 10)
	c, err := mgr.Create(t.Context(), "owner-1", "data", nil)
	require.NoError(t, err)

	now := time.Now()
	sb := &model.Sandbox{
		ID: "sbx-1", OwnerID: "owner-1", ProfileName: "default", State: model.SandboxStateIdle,
		CargoID: &c.ID, LastActivityAt: now, CreatedAt: now,
	}
	require.NoError(t, sandboxes.Create(t.Context(), sb))

	err = mgr.Delete(t.Context(), "owner-1", "data", false)
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.True(t, drv.volumes[c.VolumeName])

	require.NoError(t, mgr.Delete(t.Context(), "owner-1", "data", true))
	assert.False(t, drv.volumes[c.VolumeName])
}

func TestManagerDeleteRejectsManagedCargoWithLiveOwner(t *testing.T) {
	mgr, sandboxes, drv := newTestManager(t, 10)
	sandboxID := "sbx-1"
	c, err := mgr.Create(t.Context(), "owner-1", "managed", &sandboxID)
	require.NoError(t, err)

	now := time.Now()
	sb := &model.Sandbox{
		ID: sandboxID, OwnerID: "owner-1", ProfileName: "default", State: model.SandboxStateIdle,
		CargoID: &c.ID, LastActivityAt: now, CreatedAt: now,
	}
	require.NoError(t, sandboxes.Create(t.Context(), sb))

	err = mgr.DeleteInternalByID(t.Context(), c.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.True(t, drv.volumes[c.VolumeName])
}

func TestManagerDeleteAllowsManagedCargoWithTombstonedOwner(t *testing.T) {
	mgr, sandboxes, drv := newTestManager(t, 10)
	sandboxID := "sbx-1"
	c, err := mgr.Create(t.Context(), "owner-1", "managed", &sandboxID)
	require.NoError(t, err)

	now := time.Now()
	sb := &model.Sandbox{
		ID: sandboxID, OwnerID: "owner-1", ProfileName: "default", State: model.SandboxStateIdle,
		CargoID: &c.ID, LastActivityAt: now, CreatedAt: now,
	}
	require.NoError(t, sandboxes.Create(t.Context(), sb))
	require.NoError(t, sandboxes.SoftDelete(t.Context(), nil, sandboxID, now))

	require.NoError(t, mgr.DeleteInternalByID(t.Context(), c.ID, false))
	assert.False(t, drv.volumes[c.VolumeName])
}

func TestManagerDeleteAllowsManagedCargoWithAbsentOwner(t *testing.T) {
	mgr, _, drv := newTestManager(t, 10)
	sandboxID := "sbx-does-not-exist"
	c, err := mgr.Create(t.Context(), "owner-1", "managed", &sandboxID)
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteInternalByID(t.Context(), c.ID, false))
	assert.False(t, drv.volumes[c.VolumeName])
}
