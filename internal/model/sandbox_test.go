package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(t time.Time) *time.Time { return &t }

func TestSandboxComputeStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("deleted wins over everything", func(t *testing.T) {
		deletedAt := now.Add(-time.Hour)
		sb := Sandbox{State: SandboxStateReady, DeletedAt: &deletedAt}
		assert.Equal(t, SandboxDeleted, sb.ComputeStatus(now))
	})

	t.Run("expired when expires_at deadline passed", func(t *testing.T) {
		sb := Sandbox{
			State:     SandboxStateReady,
			ExpiresAt: at(now.Add(-time.Minute)),
		}
		assert.Equal(t, SandboxExpired, sb.ComputeStatus(now))
	})

	t.Run("not yet expired reports persisted state", func(t *testing.T) {
		sb := Sandbox{
			State:     SandboxStateStarting,
			ExpiresAt: at(now.Add(9 * time.Minute)),
		}
		assert.Equal(t, SandboxStarting, sb.ComputeStatus(now))
	})

	t.Run("nil expires_at never expires", func(t *testing.T) {
		sb := Sandbox{State: SandboxStateIdle, LastActivityAt: now.Add(-365 * 24 * time.Hour)}
		assert.Equal(t, SandboxIdle, sb.ComputeStatus(now))
	})

	t.Run("touching idle_expires_at never moves expires_at", func(t *testing.T) {
		sb := Sandbox{
			State:         SandboxStateReady,
			ExpiresAt:     at(now.Add(time.Hour)),
			IdleExpiresAt: at(now.Add(-time.Minute)),
		}
		assert.Equal(t, SandboxReady, sb.ComputeStatus(now))
	})

	t.Run("every persisted state maps through", func(t *testing.T) {
		for state, want := range map[SandboxState]SandboxStatus{
			SandboxStateIdle:     SandboxIdle,
			SandboxStateStarting: SandboxStarting,
			SandboxStateReady:    SandboxReady,
			SandboxStateFailed:   SandboxFailed,
		} {
			sb := Sandbox{State: state, LastActivityAt: now}
			assert.Equal(t, want, sb.ComputeStatus(now))
		}
	})
}

func TestSandboxIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	sb := Sandbox{ExpiresAt: nil}
	assert.False(t, sb.IsExpired(now))

	sb2 := Sandbox{ExpiresAt: at(now.Add(-time.Minute))}
	assert.True(t, sb2.IsExpired(now))

	sb3 := Sandbox{ExpiresAt: at(now.Add(5 * time.Minute))}
	assert.False(t, sb3.IsExpired(now))
}

func TestSandboxIsIdleExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	sb := Sandbox{IdleExpiresAt: nil}
	assert.False(t, sb.IsIdleExpired(now))

	sb2 := Sandbox{IdleExpiresAt: at(now.Add(-time.Second))}
	assert.True(t, sb2.IsIdleExpired(now))

	sb3 := Sandbox{IdleExpiresAt: at(now.Add(time.Minute))}
	assert.False(t, sb3.IsIdleExpired(now))
}
