package model

import "time"

// Cargo is a named, durable volume that can be mounted into a sandbox's
// session. It may be "managed" (its lifecycle is tied to the owning
// sandbox and it is deleted by GC once that sandbox is gone) or external
// (created independently of any sandbox and outliving all of them).
type Cargo struct {
	ID                 string     `db:"id"`
	OwnerID            string     `db:"owner_id"`
	Name               string     `db:"name"`
	ManagedBySandboxID *string    `db:"managed_by_sandbox_id"`
	VolumeName         string     `db:"volume_name"`
	CreatedAt          time.Time  `db:"created_at"`
	LastUsedAt         time.Time  `db:"last_used_at"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

// MountPath is the canonical in-container mount point for a cargo, derived
// from its name.
func (c *Cargo) MountPath() string {
	return "/cargo/" + c.Name
}

// IsManaged reports whether this cargo's lifecycle is bound to a sandbox.
func (c *Cargo) IsManaged() bool {
	return c.ManagedBySandboxID != nil
}
