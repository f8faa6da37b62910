package sandboxmgr

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/config"
	"github.com/shipyard-neo/bay/internal/db"
	"github.com/shipyard-neo/bay/internal/driver"
	"github.com/shipyard-neo/bay/internal/model"
	"github.com/shipyard-neo/bay/internal/sandboxlock"
	"github.com/shipyard-neo/bay/internal/sessionmgr"
	"github.com/shipyard-neo/bay/internal/store"
)

// fakeDriver stands in for a real backend across one sandbox's
// materialize/destroy cycle; containers become running as soon as they
// are created.
type fakeDriver struct {
	containers map[string]*driver.InspectResult
	failCreate bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{containers: map[string]*driver.InspectResult{}}
}

func (f *fakeDriver) CreateContainer(ctx context.Context, name string, spec driver.ContainerSpec) (string, error) {
	if f.failCreate {
		return "", driver.ErrResourceExhausted
	}
	f.containers[name] = &driver.InspectResult{ID: name, State: driver.ContainerCreating, ContainerIP: "10.0.0.5", ContainerPort: 9000}
	return name, nil
}
func (f *fakeDriver) StartContainer(ctx context.Context, id string) error {
	f.containers[id].State = driver.ContainerRunning
	return nil
}
func (f *fakeDriver) StopContainer(ctx context.Context, id string) error {
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
	return nil, nil
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

func newTestManager(t *testing.T) (*Manager, *store.SandboxStore, *store.SessionStore, *fakeDriver) {
	t.Helper()
	sqlDB, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	sandboxes := store.NewSandboxStore(sqlDB)
	sessions := store.NewSessionStore(sqlDB)
	drv := newFakeDriver()
	sessionMgr := sessionmgr.New(sessions, drv, driver.ConnectContainerNetwork, "", 2*time.Second, "test-instance", zerolog.Nop())

	settings := &config.Settings{
		Profiles: map[string]*config.ProfileConfig{
			"default": {
				Name: "default",
				Containers: []config.ContainerSpec{
					{Name: "main", Image: "python:3.11-slim", Capabilities: []string{"exec_python"}, PrimaryFor: []string{"exec_python"}},
				},
				Startup: config.StartupConfig{Order: "parallel", WaitForAll: true, RollbackOnFail: true},
			},
		},
	}

	mgr := New(sandboxes, sessionMgr, sandboxlock.NewRegistry(), settings, zerolog.Nop())
	return mgr, sandboxes, sessions, drv
}

func TestManagerCreateRequiresKnownProfile(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	_, err := mgr.Create(t.Context(), "owner-1", "nope", nil)
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestManagerCreateAndGet(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)
	assert.Equal(t, model.SandboxStateIdle, sb.State)

	got, err := mgr.Get(t.Context(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, sb.ID, got.ID)
}

func TestManagerGetHidesSoftDeletedAsNotFound(t *testing.T) {
	mgr, _, sessions, _ := newTestManager(t)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Delete(t.Context(), sb.ID, sessions))

	_, err = mgr.Get(t.Context(), sb.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestManagerEnsureSessionMaterializesOnFirstUse(t *testing.T) {
	mgr, _, sessions, drv := newTestManager(t)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)

	sess, err := mgr.EnsureSession(t.Context(), sb.ID, sessions)
	require.NoError(t, err)
	assert.True(t, sess.IsReady())
	assert.Len(t, drv.containers, 1)

	got, err := mgr.Get(t.Context(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SandboxStateReady, got.State)
}

func TestManagerEnsureSessionReusesExistingReadySession(t *testing.T) {
	mgr, _, sessions, drv := newTestManager(t)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)

	first, err := mgr.EnsureSession(t.Context(), sb.ID, sessions)
	require.NoError(t, err)

	second, err := mgr.EnsureSession(t.Context(), sb.ID, sessions)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, drv.containers, 1)
}

func TestManagerEnsureSessionFailsSandboxOnMaterializeError(t *testing.T) {
	mgr, _, sessions, drv := newTestManager(t)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)

	drv.failCreate = true
	_, err = mgr.EnsureSession(t.Context(), sb.ID, sessions)
	require.Error(t, err)

	got, err := mgr.Get(t.Context(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SandboxStateFailed, got.State)
}

func TestManagerExtendTTLAddsToExistingDeadline(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	ttl := int64(60)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", &ttl)
	require.NoError(t, err)
	require.NotNil(t, sb.ExpiresAt)
	before := *sb.ExpiresAt

	require.NoError(t, mgr.ExtendTTL(t.Context(), sb.ID, 600))

	got, err := mgr.Get(t.Context(), sb.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, before.Add(600*time.Second), *got.ExpiresAt, time.Second)
}

func TestManagerExtendTTLRejectsNonPositive(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	ttl := int64(60)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", &ttl)
	require.NoError(t, err)

	err = mgr.ExtendTTL(t.Context(), sb.ID, 0)
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	err = mgr.ExtendTTL(t.Context(), sb.ID, -5)
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestManagerExtendTTLRejectsInfiniteTTL(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)

	err = mgr.ExtendTTL(t.Context(), sb.ID, 600)
	require.Error(t, err)
	assert.Equal(t, apperror.KindSandboxTTLInfinite, apperror.KindOf(err))
}

func TestManagerExtendTTLRejectsAlreadyExpired(t *testing.T) {
	mgr, sandboxes, _, _ := newTestManager(t)
	ttl := int64(1)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", &ttl)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, sandboxes.SetExpiresAt(t.Context(), sb.ID, past, sb.Version+1))

	err = mgr.ExtendTTL(t.Context(), sb.ID, 600)
	require.Error(t, err)
	assert.Equal(t, apperror.KindSandboxExpired, apperror.KindOf(err))
}

func TestManagerEnsureSessionSetsIdleExpiresAt(t *testing.T) {
	mgr, sandboxes, sessions, _ := newTestManager(t)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)
	assert.Nil(t, sb.IdleExpiresAt)

	_, err = mgr.EnsureSession(t.Context(), sb.ID, sessions)
	require.NoError(t, err)

	got, err := sandboxes.Get(t.Context(), sb.ID)
	require.NoError(t, err)
	require.NotNil(t, got.IdleExpiresAt)
	assert.True(t, got.IdleExpiresAt.After(time.Now()))
}

func TestManagerTouchNeverMovesExpiresAt(t *testing.T) {
	mgr, sandboxes, _, _ := newTestManager(t)
	ttl := int64(3600)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", &ttl)
	require.NoError(t, err)
	before := *sb.ExpiresAt

	require.NoError(t, mgr.Touch(t.Context(), sb.ID))

	got, err := sandboxes.Get(t.Context(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, before, *got.ExpiresAt)
	require.NotNil(t, got.IdleExpiresAt)
}

func TestManagerDeleteTearsDownSession(t *testing.T) {
	mgr, _, sessions, drv := newTestManager(t)
	sb, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)
	_, err = mgr.EnsureSession(t.Context(), sb.ID, sessions)
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(t.Context(), sb.ID, sessions))
	assert.Empty(t, drv.containers)

	_, err = mgr.Get(t.Context(), sb.ID)
	require.Error(t, err)
}

func TestManagerListReturnsOnlyActiveForOwner(t *testing.T) {
	mgr, _, sessions, _ := newTestManager(t)
	a, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)
	b, err := mgr.Create(t.Context(), "owner-1", "default", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Delete(t.Context(), b.ID, sessions))

	list, err := mgr.List(t.Context(), "owner-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
}
