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

// CargoStore persists model.Cargo rows.
type CargoStore struct {
	db *sqlx.DB
}

func NewCargoStore(db *sqlx.DB) *CargoStore { return &CargoStore{db: db} }

func (s *CargoStore) Create(ctx context.Context, c *model.Cargo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cargos (id, owner_id, name, managed_by_sandbox_id, volume_name, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, c.ManagedBySandboxID, c.VolumeName, c.CreatedAt, c.LastUsedAt,
	)
	return err
}

func (s *CargoStore) Get(ctx context.Context, ownerID, name string) (*model.Cargo, error) {
	var c model.Cargo
	err := s.db.GetContext(ctx, &c, `SELECT * FROM cargos WHERE owner_id = ? AND name = ? AND deleted_at IS NULL`, ownerID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindNotFound, "cargo not found")
	}
	return &c, err
}

func (s *CargoStore) GetByID(ctx context.Context, id string) (*model.Cargo, error) {
	var c model.Cargo
	err := s.db.GetContext(ctx, &c, `SELECT * FROM cargos WHERE id = ? AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindNotFound, "cargo not found")
	}
	return &c, err
}

func (s *CargoStore) List(ctx context.Context, ownerID string) ([]*model.Cargo, error) {
	var rows []*model.Cargo
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM cargos WHERE owner_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`, ownerID)
	return rows, err
}

func (s *CargoStore) CountForOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM cargos WHERE owner_id = ? AND deleted_at IS NULL`, ownerID)
	return n, err
}

func (s *CargoStore) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cargos SET last_used_at = ? WHERE id = ?`, now, id)
	return err
}

// SoftDelete marks a cargo deleted. delete_internal_by_id in the original
// is the same operation without the owner-scoped Get first; GC tasks reach
// it through cargomgr.Manager.DeleteInternalByID.
func (s *CargoStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cargos SET deleted_at = ? WHERE id = ?`, now, id)
	return err
}

// ListOrphanedUnmanaged returns cargos with no managed_by_sandbox_id whose
// last_used_at precedes cutoff: cargos nobody has touched in a long time
// and which were never tied to a sandbox's lifecycle.
func (s *CargoStore) ListOrphanedUnmanaged(ctx context.Context, cutoff time.Time) ([]*model.Cargo, error) {
	var rows []*model.Cargo
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM cargos
		WHERE deleted_at IS NULL AND managed_by_sandbox_id IS NULL AND last_used_at < ?`, cutoff)
	return rows, err
}

// ListOrphanedManagedBySoftDeletedSandbox returns managed cargos whose
// owning sandbox has been soft-deleted.
func (s *CargoStore) ListOrphanedManagedBySoftDeletedSandbox(ctx context.Context) ([]*model.Cargo, error) {
	var rows []*model.Cargo
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.* FROM cargos c
		JOIN sandboxes b ON b.id = c.managed_by_sandbox_id
		WHERE c.deleted_at IS NULL AND b.deleted_at IS NOT NULL`)
	return rows, err
}
