// Package sandboxmgr implements the Sandbox Manager: the state machine
// that owns a Sandbox's lifecycle (idle -> starting -> ready -> ...) and
// coordinates with the Session Manager to lazily materialize sessions on
// first use.
package sandboxmgr

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/config"
	"github.com/shipyard-neo/bay/internal/model"
	"github.com/shipyard-neo/bay/internal/sandboxlock"
	"github.com/shipyard-neo/bay/internal/sessionmgr"
	"github.com/shipyard-neo/bay/internal/store"
)

// Manager owns the Sandbox entity's lifecycle.
type Manager struct {
	sandboxes *store.SandboxStore
	sessions  *sessionmgr.Manager
	locks     *sandboxlock.Registry
	settings  *config.Settings
	log       zerolog.Logger
}

func New(sandboxes *store.SandboxStore, sessions *sessionmgr.Manager, locks *sandboxlock.Registry, settings *config.Settings, log zerolog.Logger) *Manager {
	return &Manager{sandboxes: sandboxes, sessions: sessions, locks: locks, settings: settings, log: log.With().Str("component", "sandboxmgr").Logger()}
}

func newSandboxID() string {
	return "sbx-" + uuid.New().String()[:12]
}

// Create registers a new sandbox in the idle state. No container is
// started until the first capability call arrives.
func (m *Manager) Create(ctx context.Context, ownerID, profileName string, ttlSeconds *int64) (*model.Sandbox, error) {
	if _, ok := m.settings.GetProfile(profileName); !ok {
		return nil, apperror.Newf(apperror.KindValidation, "unknown profile %q", profileName)
	}

	now := time.Now()
	var expiresAt *time.Time
	if ttlSeconds != nil {
		t := now.Add(time.Duration(*ttlSeconds) * time.Second)
		expiresAt = &t
	}
	sb := &model.Sandbox{
		ID:             newSandboxID(),
		OwnerID:        ownerID,
		ProfileName:    profileName,
		State:          model.SandboxStateIdle,
		TTLSeconds:     ttlSeconds,
		ExpiresAt:      expiresAt,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := m.sandboxes.Create(ctx, sb); err != nil {
		return nil, err
	}
	m.log.Info().Str("sandbox_id", sb.ID).Str("owner", ownerID).Msg("sandbox created")
	return sb, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*model.Sandbox, error) {
	sb, err := m.sandboxes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb.ComputeStatus(time.Now()) == model.SandboxDeleted {
		return nil, apperror.New(apperror.KindNotFound, "sandbox not found")
	}
	return sb, nil
}

func (m *Manager) List(ctx context.Context, ownerID string) ([]*model.Sandbox, error) {
	return m.sandboxes.ListActive(ctx, ownerID)
}

// EnsureSession returns a live, ready Session for sandboxID, materializing
// one if the sandbox is currently idle. Concurrent callers for the same
// sandbox serialize on the in-process per-sandbox lock so only one
// Session Manager call is in flight at a time.
func (m *Manager) EnsureSession(ctx context.Context, id string, sessionStore *store.SessionStore) (*model.Session, error) {
	var result *model.Session
	err := m.locks.WithLock(id, func() error {
		sb, err := m.sandboxes.Get(ctx, id)
		if err != nil {
			return err
		}
		if sb.ComputeStatus(time.Now()) != model.SandboxIdle && sb.ComputeStatus(time.Now()) != model.SandboxReady && sb.ComputeStatus(time.Now()) != model.SandboxStarting {
			return apperror.Newf(apperror.KindSandboxExpired, "sandbox %s is not usable (status %s)", id, sb.ComputeStatus(time.Now()))
		}

		existing, err := sessionStore.ActiveForSandbox(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsReady() {
			result = existing
			return nil
		}

		profile, ok := m.settings.GetProfile(sb.ProfileName)
		if !ok {
			return apperror.Newf(apperror.KindValidation, "unknown profile %q", sb.ProfileName)
		}

		if err := m.sandboxes.UpdateState(ctx, nil, id, model.SandboxStateStarting, ""); err != nil {
			return err
		}

		sess, err := m.sessions.Materialize(ctx, id, profile, nil, sb.CargoID)
		if err != nil {
			m.sandboxes.UpdateState(ctx, nil, id, model.SandboxStateFailed, err.Error())
			return err
		}

		if err := m.sandboxes.UpdateState(ctx, nil, id, model.SandboxStateReady, ""); err != nil {
			return err
		}
		idleTimeout := profile.IdleTimeout
		if idleTimeout <= 0 {
			idleTimeout = config.DefaultIdleTimeout
		}
		idleExpiresAt := time.Now().Add(idleTimeout)
		if err := m.sandboxes.TouchActivity(ctx, id, time.Now(), idleExpiresAt); err != nil {
			return err
		}
		result = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Touch refreshes a sandbox's idle clock, resetting it to now plus its
// profile's idle_timeout. It never moves expires_at: the TTL deadline is
// fixed at creation and only extend_ttl may move it. Called by the router
// each time a capability call resolves to a ready session, before the call
// is dispatched; EnsureSession sets the same clock itself.
func (m *Manager) Touch(ctx context.Context, id string) error {
	sb, err := m.sandboxes.Get(ctx, id)
	if err != nil {
		return err
	}
	profile, ok := m.settings.GetProfile(sb.ProfileName)
	idleTimeout := config.DefaultIdleTimeout
	if ok && profile.IdleTimeout > 0 {
		idleTimeout = profile.IdleTimeout
	}
	now := time.Now()
	return m.sandboxes.TouchActivity(ctx, id, now, now.Add(idleTimeout))
}

// ExtendTTL adds extendBy seconds to a sandbox's current expires_at
// deadline. extendBy must be positive; a sandbox with an infinite TTL
// (nil expires_at) cannot be extended, since there is no deadline to move;
// an already-expired sandbox cannot be extended either, since it is subject
// to reaping.
func (m *Manager) ExtendTTL(ctx context.Context, id string, extendBy int64) error {
	if extendBy <= 0 {
		return apperror.New(apperror.KindValidation, "extend_by must be positive")
	}
	return m.locks.WithLock(id, func() error {
		sb, err := m.sandboxes.Get(ctx, id)
		if err != nil {
			return err
		}
		now := time.Now()
		if sb.ExpiresAt == nil {
			return apperror.New(apperror.KindSandboxTTLInfinite, "sandbox has no TTL to extend")
		}
		if sb.IsExpired(now) {
			return apperror.New(apperror.KindSandboxExpired, "sandbox has already expired")
		}
		newExpiresAt := sb.ExpiresAt.Add(time.Duration(extendBy) * time.Second)
		return m.sandboxes.SetExpiresAt(ctx, id, newExpiresAt, sb.Version+1)
	})
}

// Delete soft-deletes a sandbox and tears down its session, if any.
func (m *Manager) Delete(ctx context.Context, id string, sessionStore *store.SessionStore) error {
	return m.locks.WithLock(id, func() error {
		sess, err := sessionStore.ActiveForSandbox(ctx, id)
		if err != nil {
			return err
		}
		if sess != nil {
			if err := m.sessions.Destroy(ctx, sess); err != nil {
				m.log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to destroy session during sandbox delete")
			}
		}
		return m.sandboxes.SoftDelete(ctx, nil, id, time.Now())
	})
}
