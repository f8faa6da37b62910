// Package cargomgr implements the Cargo Manager: creation, lookup, and
// deletion of durable volumes, independent of any running sandbox.
package cargomgr

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/driver"
	"github.com/shipyard-neo/bay/internal/model"
	"github.com/shipyard-neo/bay/internal/store"
)

// Manager owns the Cargo entity's lifecycle: creating its backing volume,
// tracking use, and tearing it down.
type Manager struct {
	store       *store.CargoStore
	sandboxes   *store.SandboxStore
	drv         driver.Driver
	maxPerOwner int
	log         zerolog.Logger
}

func New(st *store.CargoStore, sandboxes *store.SandboxStore, drv driver.Driver, maxPerOwner int, log zerolog.Logger) *Manager {
	return &Manager{store: st, sandboxes: sandboxes, drv: drv, maxPerOwner: maxPerOwner, log: log.With().Str("component", "cargomgr").Logger()}
}

func newCargoID() string {
	return "cgo-" + uuid.New().String()[:12]
}

// Create provisions a new cargo. If managedBySandboxID is non-nil, the
// cargo's lifecycle is bound to that sandbox and will be garbage collected
// once the sandbox is soft-deleted (see internal/gc's orphan cargo task).
func (m *Manager) Create(ctx context.Context, ownerID, name string, managedBySandboxID *string) (*model.Cargo, error) {
	count, err := m.store.CountForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if count >= m.maxPerOwner {
		return nil, apperror.Newf(apperror.KindQuotaExceeded, "owner already has %d cargos (max %d)", count, m.maxPerOwner)
	}

	if _, err := m.store.Get(ctx, ownerID, name); err == nil {
		return nil, apperror.Newf(apperror.KindConflict, "cargo %q already exists", name)
	}

	id := newCargoID()
	volumeName := driver.VolumeNamePrefix + id
	now := time.Now()

	c := &model.Cargo{
		ID:                 id,
		OwnerID:            ownerID,
		Name:               name,
		ManagedBySandboxID: managedBySandboxID,
		VolumeName:         volumeName,
		CreatedAt:          now,
		LastUsedAt:         now,
	}

	labels := map[string]string{driver.LabelCargoID: id, "bay.owner": ownerID}
	if err := m.drv.CreateVolume(ctx, volumeName, labels); err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, c); err != nil {
		_ = m.drv.RemoveVolume(ctx, volumeName)
		return nil, err
	}

	m.log.Info().Str("cargo_id", id).Str("owner", ownerID).Msg("cargo created")
	return c, nil
}

func (m *Manager) Get(ctx context.Context, ownerID, name string) (*model.Cargo, error) {
	return m.store.Get(ctx, ownerID, name)
}

func (m *Manager) GetByID(ctx context.Context, id string) (*model.Cargo, error) {
	return m.store.GetByID(ctx, id)
}

func (m *Manager) List(ctx context.Context, ownerID string) ([]*model.Cargo, error) {
	return m.store.List(ctx, ownerID)
}

func (m *Manager) Touch(ctx context.Context, id string) error {
	return m.store.Touch(ctx, id, time.Now())
}

// Delete removes a cargo's DB record and its backing volume, honoring the
// referential rules for managed vs. external cargos (see deleteInternal).
// force bypasses those rules.
func (m *Manager) Delete(ctx context.Context, ownerID, name string, force bool) error {
	c, err := m.store.Get(ctx, ownerID, name)
	if err != nil {
		return err
	}
	return m.deleteInternal(ctx, c, force)
}

// DeleteInternalByID is used by GC tasks, which discover orphaned cargos
// by ID via a join rather than an (owner, name) lookup.
func (m *Manager) DeleteInternalByID(ctx context.Context, id string, force bool) error {
	c, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return m.deleteInternal(ctx, c, force)
}

// deleteInternal enforces referential integrity before touching the
// driver: an external cargo refuses deletion while any living
// sandbox references it (blocking ids are attached to the error); a
// managed cargo refuses deletion unless its owning sandbox is absent,
// tombstoned, or force is set.
func (m *Manager) deleteInternal(ctx context.Context, c *model.Cargo, force bool) error {
	if !force {
		if c.IsManaged() {
			owner, err := m.sandboxes.Get(ctx, *c.ManagedBySandboxID)
			if err != nil && apperror.KindOf(err) != apperror.KindNotFound {
				return err
			}
			if err == nil && owner.DeletedAt == nil {
				return apperror.Newf(apperror.KindConflict, "cargo %q is still owned by live sandbox %s", c.Name, owner.ID).
					WithDetails(map[string]any{"blocking_sandbox_ids": []string{owner.ID}})
			}
		} else {
			living, err := m.sandboxes.ListLivingByCargoID(ctx, c.ID)
			if err != nil {
				return err
			}
			if len(living) > 0 {
				ids := make([]string, len(living))
				for i, sb := range living {
					ids[i] = sb.ID
				}
				return apperror.Newf(apperror.KindConflict, "cargo %q is referenced by %d live sandbox(es)", c.Name, len(living)).
					WithDetails(map[string]any{"blocking_sandbox_ids": ids})
			}
		}
	}

	if err := m.drv.RemoveVolume(ctx, c.VolumeName); err != nil {
		return err
	}
	if err := m.store.SoftDelete(ctx, c.ID, time.Now()); err != nil {
		return err
	}
	m.log.Info().Str("cargo_id", c.ID).Msg("cargo deleted")
	return nil
}
