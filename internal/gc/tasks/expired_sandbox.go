package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/cargomgr"
	"github.com/shipyard-neo/bay/internal/gc"
	"github.com/shipyard-neo/bay/internal/sandboxlock"
	"github.com/shipyard-neo/bay/internal/sessionmgr"
	"github.com/shipyard-neo/bay/internal/store"
)

// ExpiredSandboxGC soft-deletes sandboxes whose TTL deadline passed more
// than GraceDuration ago, stopping any running session first. The grace
// period absorbs clock skew between the request that last touched the
// sandbox and this task's own clock. If the sandbox had a managed cargo,
// it is force-deleted as the final step of the cascade; a failure there is
// logged, not surfaced as a task error, since the sandbox itself is
// already gone and a later orphan-cargo GC cycle will pick up the cargo
// regardless.
type ExpiredSandboxGC struct {
	sandboxes     *store.SandboxStore
	sessions      *store.SessionStore
	sessionMgr    *sessionmgr.Manager
	cargoMgr      *cargomgr.Manager
	locks         *sandboxlock.Registry
	graceDuration time.Duration
	log           zerolog.Logger
}

func NewExpiredSandboxGC(sandboxes *store.SandboxStore, sessions *store.SessionStore, sessionMgr *sessionmgr.Manager, cargoMgr *cargomgr.Manager, locks *sandboxlock.Registry, graceDuration time.Duration, log zerolog.Logger) *ExpiredSandboxGC {
	return &ExpiredSandboxGC{
		sandboxes:     sandboxes,
		sessions:      sessions,
		sessionMgr:    sessionMgr,
		cargoMgr:      cargoMgr,
		locks:         locks,
		graceDuration: graceDuration,
		log:           log.With().Str("component", "gc.expired_sandbox").Logger(),
	}
}

func (t *ExpiredSandboxGC) Name() string { return "expired_sandbox" }

func (t *ExpiredSandboxGC) Run(ctx context.Context) gc.Result {
	result := gc.Result{TaskName: t.Name()}

	now := time.Now()
	candidates, err := t.sandboxes.ListExpiredNotDeleted(ctx, now, t.graceDuration)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	for _, sb := range candidates {
		cleaned, err := t.reap(ctx, sb.ID)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if cleaned {
			result.Cleaned++
		}
	}
	return result
}

// reap acquires the per-sandbox lock, re-fetches the row, and skips if a
// concurrent extend_ttl moved expires_at into the future since the list
// query ran. The cascade order is session destroy, then sandbox
// soft-delete, then managed-cargo force-delete, matching the ordering
// spec'd for this task: an interrupt at any point leaves a state this task
// (or T3, for the cargo) can complete on its next cycle.
func (t *ExpiredSandboxGC) reap(ctx context.Context, sandboxID string) (bool, error) {
	cleaned := false
	var cargoID *string
	err := t.locks.WithLock(sandboxID, func() error {
		sb, err := t.sandboxes.Get(ctx, sandboxID)
		if err != nil {
			return err
		}
		now := time.Now()
		if sb.DeletedAt != nil || !sb.IsExpired(now) {
			return nil
		}

		sess, err := t.sessions.ActiveForSandbox(ctx, sandboxID)
		if err != nil {
			return err
		}
		if sess != nil {
			if err := t.sessionMgr.Destroy(ctx, sess); err != nil {
				return err
			}
		}
		if err := t.sandboxes.SoftDelete(ctx, nil, sandboxID, now); err != nil {
			return err
		}
		cargoID = sb.CargoID
		cleaned = true
		return nil
	})
	if err != nil || !cleaned {
		return cleaned, err
	}

	if cargoID != nil {
		c, err := t.cargoMgr.GetByID(ctx, *cargoID)
		if err != nil {
			t.log.Warn().Err(err).Str("sandbox_id", sandboxID).Str("cargo_id", *cargoID).Msg("failed to look up cargo for cascade delete")
			return cleaned, nil
		}
		if !c.IsManaged() || *c.ManagedBySandboxID != sandboxID {
			return cleaned, nil
		}
		if err := t.cargoMgr.DeleteInternalByID(ctx, *cargoID, true); err != nil {
			t.log.Warn().Err(err).Str("sandbox_id", sandboxID).Str("cargo_id", *cargoID).Msg("failed to cascade-delete managed cargo")
		}
	}
	return cleaned, nil
}
