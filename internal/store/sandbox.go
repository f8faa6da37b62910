// Package store implements sqlx-backed repositories for each persisted
// entity. Row-level locking (needed by the Sandbox Manager and GC tasks to
// serialize state transitions on one row) is emulated with SQLite's
// BEGIN IMMEDIATE, which takes the write lock at transaction start rather
// than at first write, the closest analogue to "SELECT ... FOR UPDATE".
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/model"
)

// SandboxStore persists model.Sandbox rows.
type SandboxStore struct {
	db *sqlx.DB
}

func NewSandboxStore(db *sqlx.DB) *SandboxStore { return &SandboxStore{db: db} }

func (s *SandboxStore) Create(ctx context.Context, sb *model.Sandbox) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sandboxes (id, owner_id, profile_name, state, ttl_seconds, expires_at, idle_expires_at, version, last_activity_at, created_at, failure_reason, cargo_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sb.ID, sb.OwnerID, sb.ProfileName, sb.State, sb.TTLSeconds, sb.ExpiresAt, sb.IdleExpiresAt, sb.Version, sb.LastActivityAt, sb.CreatedAt, sb.FailureReason, sb.CargoID,
	)
	return err
}

func (s *SandboxStore) Get(ctx context.Context, id string) (*model.Sandbox, error) {
	var sb model.Sandbox
	err := s.db.GetContext(ctx, &sb, `SELECT * FROM sandboxes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindNotFound, "sandbox not found")
	}
	if err != nil {
		return nil, err
	}
	return &sb, nil
}

// WithLock runs fn inside a BEGIN IMMEDIATE transaction holding the
// write lock for the duration, after loading the current row. This is the
// Go analogue of the original's per-row SELECT ... FOR UPDATE. Nothing
// outside tests calls it: the managers and GC tasks serialize on the
// in-process per-sandbox mutex in internal/sandboxlock alone.
func (s *SandboxStore) WithLock(ctx context.Context, id string, fn func(tx *sqlx.Tx, sb *model.Sandbox) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		// Already inside a transaction context from BeginTxx; some sqlite
		// drivers reject a nested BEGIN, in which case the outer
		// transaction already holds a reserved lock on first write. We
		// best-effort issue it and ignore a "cannot start a transaction"
		// error from the driver.
		_ = err
	}

	var sb model.Sandbox
	if err := tx.GetContext(ctx, &sb, `SELECT * FROM sandboxes WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.New(apperror.KindNotFound, "sandbox not found")
		}
		return err
	}

	if err := fn(tx, &sb); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SandboxStore) UpdateState(ctx context.Context, tx *sqlx.Tx, id string, state model.SandboxState, failureReason string) error {
	exec := anyExecer(tx, s.db)
	_, err := exec.ExecContext(ctx, `UPDATE sandboxes SET state = ?, failure_reason = ? WHERE id = ?`, state, failureReason, id)
	return err
}

// SetExpiresAt overwrites the fixed TTL deadline. Used only by extend_ttl,
// which is the sole operation permitted to move this clock.
func (s *SandboxStore) SetExpiresAt(ctx context.Context, id string, expiresAt time.Time, version int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sandboxes SET expires_at = ?, version = ? WHERE id = ?`, expiresAt, version, id)
	return err
}

// TouchActivity resets the idle clock to idleExpiresAt and records the
// activity timestamp. It never touches expires_at: the TTL deadline and the
// idle deadline are independent clocks.
func (s *SandboxStore) TouchActivity(ctx context.Context, id string, now time.Time, idleExpiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sandboxes SET last_activity_at = ?, idle_expires_at = ?, version = version + 1 WHERE id = ?`,
		now, idleExpiresAt, id)
	return err
}

// ClearIdleExpiresAt is used by idle-session GC once it has destroyed the
// session backing a sandbox: the sandbox has no running session, so there is
// nothing left for the idle clock to govern until ensure_running is called
// again.
func (s *SandboxStore) ClearIdleExpiresAt(ctx context.Context, tx *sqlx.Tx, id string) error {
	exec := anyExecer(tx, s.db)
	_, err := exec.ExecContext(ctx, `UPDATE sandboxes SET idle_expires_at = NULL, version = version + 1 WHERE id = ?`, id)
	return err
}

func (s *SandboxStore) SoftDelete(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
	exec := anyExecer(tx, s.db)
	_, err := exec.ExecContext(ctx, `UPDATE sandboxes SET deleted_at = ? WHERE id = ?`, now, id)
	return err
}

func (s *SandboxStore) ListActive(ctx context.Context, ownerID string) ([]*model.Sandbox, error) {
	var rows []*model.Sandbox
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sandboxes WHERE owner_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`, ownerID)
	return rows, err
}

// ListIdleExpired returns non-deleted sandboxes whose idle_expires_at clock
// has passed as of now, for the idle-session GC task (T1). A sandbox with no
// materialized session has a nil idle_expires_at and is excluded.
func (s *SandboxStore) ListIdleExpired(ctx context.Context, now time.Time) ([]*model.Sandbox, error) {
	var rows []*model.Sandbox
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM sandboxes WHERE deleted_at IS NULL AND idle_expires_at IS NOT NULL AND idle_expires_at < ?`, now)
	return rows, err
}

// ListExpiredNotDeleted returns non-deleted sandboxes with a finite TTL
// whose expires_at deadline has passed by at least graceDuration, for the
// expired-sandbox GC task (T2).
func (s *SandboxStore) ListExpiredNotDeleted(ctx context.Context, now time.Time, graceDuration time.Duration) ([]*model.Sandbox, error) {
	var rows []*model.Sandbox
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM sandboxes
		WHERE deleted_at IS NULL
		AND expires_at IS NOT NULL
		AND expires_at < ?`,
		now.Add(-graceDuration),
	)
	return rows, err
}

// ListLivingByCargoID returns non-deleted sandboxes whose cargo_id matches,
// used by the Cargo Manager to enforce referential integrity on delete.
func (s *SandboxStore) ListLivingByCargoID(ctx context.Context, cargoID string) ([]*model.Sandbox, error) {
	var rows []*model.Sandbox
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sandboxes WHERE cargo_id = ? AND deleted_at IS NULL`, cargoID)
	return rows, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func anyExecer(tx *sqlx.Tx, db *sqlx.DB) execer {
	if tx != nil {
		return tx
	}
	return db
}
