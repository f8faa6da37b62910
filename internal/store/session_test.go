package store

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-neo/bay/internal/db"
	"github.com/shipyard-neo/bay/internal/model"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	sqlDB, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	return NewSessionStore(newTestDB(t))
}

func TestSessionStoreActiveForSandbox(t *testing.T) {
	s := newTestSessionStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	sess := &model.Session{ID: "ses-1", SandboxID: "sbx-1", ProfileName: "default", Status: model.SessionRunning, CreatedAt: now}
	require.NoError(t, s.Create(t.Context(), sess))

	got, err := s.ActiveForSandbox(t.Context(), "sbx-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ses-1", got.ID)

	none, err := s.ActiveForSandbox(t.Context(), "sbx-none")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSessionStoreActiveForSandboxExcludesTerminal(t *testing.T) {
	s := newTestSessionStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	sess := &model.Session{ID: "ses-1", SandboxID: "sbx-1", ProfileName: "default", Status: model.SessionStopped, CreatedAt: now}
	require.NoError(t, s.Create(t.Context(), sess))

	got, err := s.ActiveForSandbox(t.Context(), "sbx-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStoreMarkReadyAndStopped(t *testing.T) {
	s := newTestSessionStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	sess := &model.Session{ID: "ses-1", SandboxID: "sbx-1", ProfileName: "default", Status: model.SessionStarting, CreatedAt: now}
	require.NoError(t, s.Create(t.Context(), sess))

	require.NoError(t, s.MarkReady(t.Context(), "ses-1", now))
	got, err := s.Get(t.Context(), "ses-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, got.Status)
	require.NotNil(t, got.ReadyAt)

	require.NoError(t, s.MarkStopped(t.Context(), "ses-1", now))
	got, err = s.Get(t.Context(), "ses-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStopped, got.Status)
}

func TestSessionStoreExistsWithID(t *testing.T) {
	sqlDB := newTestDB(t)
	s := NewSessionStore(sqlDB)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.Create(t.Context(), &model.Session{ID: "ses-1", SandboxID: "sbx-1", ProfileName: "default", Status: model.SessionStopped, CreatedAt: now}))

	exists, err := s.ExistsWithID(t.Context(), "ses-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.ExistsWithID(t.Context(), "ses-gone")
	require.NoError(t, err)
	assert.False(t, exists)
}
