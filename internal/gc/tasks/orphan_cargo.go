package tasks

import (
	"context"
	"time"

	"github.com/shipyard-neo/bay/internal/cargomgr"
	"github.com/shipyard-neo/bay/internal/gc"
	"github.com/shipyard-neo/bay/internal/store"
)

// OrphanCargoGC deletes two distinct classes of cargo nobody can reach
// anymore: unmanaged cargos untouched for longer than GraceDuration, and
// managed cargos whose owning sandbox has already been soft-deleted. These
// require two separate queries since "orphaned" means something different
// for each (see store.CargoStore's ListOrphanedUnmanaged and
// ListOrphanedManagedBySoftDeletedSandbox).
type OrphanCargoGC struct {
	cargos        *store.CargoStore
	cargoMgr      *cargomgr.Manager
	graceDuration time.Duration
}

func NewOrphanCargoGC(cargos *store.CargoStore, cargoMgr *cargomgr.Manager, graceDuration time.Duration) *OrphanCargoGC {
	return &OrphanCargoGC{cargos: cargos, cargoMgr: cargoMgr, graceDuration: graceDuration}
}

func (t *OrphanCargoGC) Name() string { return "orphan_cargo" }

func (t *OrphanCargoGC) Run(ctx context.Context) gc.Result {
	result := gc.Result{TaskName: t.Name()}

	cutoff := time.Now().Add(-t.graceDuration)
	unmanaged, err := t.cargos.ListOrphanedUnmanaged(ctx, cutoff)
	if err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		for _, c := range unmanaged {
			if err := t.cargoMgr.DeleteInternalByID(ctx, c.ID, true); err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			result.Cleaned++
		}
	}

	orphanedByDeletion, err := t.cargos.ListOrphanedManagedBySoftDeletedSandbox(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}
	for _, c := range orphanedByDeletion {
		if err := t.cargoMgr.DeleteInternalByID(ctx, c.ID, true); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Cleaned++
	}
	return result
}
