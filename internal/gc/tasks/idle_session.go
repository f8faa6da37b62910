// Package tasks implements the four garbage collection tasks run each
// cycle by internal/gc's Scheduler.
package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/gc"
	"github.com/shipyard-neo/bay/internal/model"
	"github.com/shipyard-neo/bay/internal/sandboxlock"
	"github.com/shipyard-neo/bay/internal/sessionmgr"
	"github.com/shipyard-neo/bay/internal/store"
)

// IdleSessionGC stops sessions belonging to sandboxes whose idle_expires_at
// clock has passed. The sandbox itself is left alone (it returns to idle
// and will be re-materialized on next use); only its running session is
// torn down, and the idle clock is cleared since there is nothing left for
// it to govern until ensure_running runs again.
type IdleSessionGC struct {
	sandboxes  *store.SandboxStore
	sessions   *store.SessionStore
	sessionMgr *sessionmgr.Manager
	locks      *sandboxlock.Registry
	log        zerolog.Logger
}

func NewIdleSessionGC(sandboxes *store.SandboxStore, sessions *store.SessionStore, sessionMgr *sessionmgr.Manager, locks *sandboxlock.Registry, log zerolog.Logger) *IdleSessionGC {
	return &IdleSessionGC{
		sandboxes:  sandboxes,
		sessions:   sessions,
		sessionMgr: sessionMgr,
		locks:      locks,
		log:        log.With().Str("component", "gc.idle_session").Logger(),
	}
}

func (t *IdleSessionGC) Name() string { return "idle_session" }

func (t *IdleSessionGC) Run(ctx context.Context) gc.Result {
	result := gc.Result{TaskName: t.Name()}

	now := time.Now()
	candidates, err := t.sandboxes.ListIdleExpired(ctx, now)
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

// reap acquires the per-sandbox lock and re-fetches the row before acting,
// so a concurrent keepalive or capability dispatch that moved
// idle_expires_at into the future between the list query and here wins the
// race instead of being reaped anyway.
func (t *IdleSessionGC) reap(ctx context.Context, sandboxID string) (bool, error) {
	cleaned := false
	err := t.locks.WithLock(sandboxID, func() error {
		sb, err := t.sandboxes.Get(ctx, sandboxID)
		if err != nil {
			return err
		}
		now := time.Now()
		if sb.DeletedAt != nil || !sb.IsIdleExpired(now) {
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
		if err := t.sandboxes.UpdateState(ctx, nil, sandboxID, model.SandboxStateIdle, ""); err != nil {
			return err
		}
		if err := t.sandboxes.ClearIdleExpiresAt(ctx, nil, sandboxID); err != nil {
			return err
		}
		cleaned = true
		return nil
	})
	return cleaned, err
}
