// Package model holds the persisted entities of the orchestrator: Sandbox,
// Session, Cargo, and IdempotencyKey, plus the status enums and derived
// status computations shared by the store and the managers.
package model

import "time"

// SandboxStatus is the lifecycle state of a Sandbox as reported to clients.
// It is partly stored (SandboxState) and partly derived at read time
// (expired/deleted depend on "now").
type SandboxStatus string

const (
	SandboxIdle     SandboxStatus = "idle"
	SandboxStarting SandboxStatus = "starting"
	SandboxReady    SandboxStatus = "ready"
	SandboxFailed   SandboxStatus = "failed"
	SandboxExpired  SandboxStatus = "expired"
	SandboxDeleted  SandboxStatus = "deleted"
)

// SandboxState is the persisted column backing SandboxStatus before the
// time-dependent expired/deleted derivation is applied.
type SandboxState string

const (
	SandboxStateIdle     SandboxState = "idle"
	SandboxStateStarting SandboxState = "starting"
	SandboxStateReady    SandboxState = "ready"
	SandboxStateFailed   SandboxState = "failed"
)

// Sandbox is the top-level unit of ownership: a user-facing execution
// context that may, over its lifetime, spin up zero or more Sessions.
//
// Two independent clocks govern a sandbox's lifetime: ExpiresAt is the
// absolute TTL deadline, fixed at creation and only ever moved by
// extend_ttl; IdleExpiresAt is the activity deadline, reset on every
// capability dispatch and on ensure_running. Touching one must never move
// the other.
type Sandbox struct {
	ID             string       `db:"id"`
	OwnerID        string       `db:"owner_id"`
	ProfileName    string       `db:"profile_name"`
	State          SandboxState `db:"state"`
	TTLSeconds     *int64       `db:"ttl_seconds"`      // informational: the TTL requested at creation, nil means infinite
	ExpiresAt      *time.Time   `db:"expires_at"`       // nil means infinite TTL; only extend_ttl moves this
	IdleExpiresAt  *time.Time   `db:"idle_expires_at"`  // nil until ensure_running first materializes a session
	Version        int64        `db:"version"`          // bumped on every mutating write, for optimistic locking
	LastActivityAt time.Time    `db:"last_activity_at"`
	CreatedAt      time.Time    `db:"created_at"`
	DeletedAt      *time.Time   `db:"deleted_at"`
	FailureReason  string       `db:"failure_reason"`
	CargoID        *string      `db:"cargo_id"` // the cargo attached to this sandbox, managed or external
}

// ComputeStatus derives the externally visible status of the sandbox as of
// "now". Deleted always wins; then TTL expiry against the fixed ExpiresAt
// deadline; then the persisted state is reported as-is.
func (s *Sandbox) ComputeStatus(now time.Time) SandboxStatus {
	if s.DeletedAt != nil {
		return SandboxDeleted
	}
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return SandboxExpired
	}
	switch s.State {
	case SandboxStateIdle:
		return SandboxIdle
	case SandboxStateStarting:
		return SandboxStarting
	case SandboxStateReady:
		return SandboxReady
	case SandboxStateFailed:
		return SandboxFailed
	default:
		return SandboxIdle
	}
}

// IsExpired reports whether the sandbox's TTL deadline has passed as of
// now. A nil ExpiresAt means the sandbox never expires on its own.
func (s *Sandbox) IsExpired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

// IsIdleExpired reports whether the sandbox's idle deadline has passed as
// of now. A nil IdleExpiresAt means no session has ever been materialized,
// so there is nothing for idle-session GC to reap.
func (s *Sandbox) IsIdleExpired(now time.Time) bool {
	if s.IdleExpiresAt == nil {
		return false
	}
	return now.After(*s.IdleExpiresAt)
}
