package model

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a Session (one materialized
// profile instance: one or more containers/pods backing a Sandbox).
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionStarting SessionStatus = "starting"
	SessionRunning  SessionStatus = "running"
	SessionDegraded SessionStatus = "degraded"
	SessionStopping SessionStatus = "stopping"
	SessionStopped  SessionStatus = "stopped"
	SessionFailed   SessionStatus = "failed"
)

// ContainerRuntime is the runtime-assigned identity and endpoint of one
// container/pod within a (possibly multi-container) session, keyed by the
// ContainerSpec.Name it was materialized from.
type ContainerRuntime struct {
	Name         string            `json:"name"`
	ContainerID  string            `json:"container_id"`
	Endpoint     string            `json:"endpoint"`
	Capabilities []string          `json:"capabilities"`
	PrimaryFor   []string          `json:"primary_for,omitempty"`
	Healthy      bool              `json:"healthy"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// Session is one live instantiation of a Sandbox's profile.
type Session struct {
	ID          string        `db:"id"`
	SandboxID   string        `db:"sandbox_id"`
	ProfileName string        `db:"profile_name"`
	Status      SessionStatus `db:"status"`
	ContainersJSON string     `db:"containers_json"`
	CreatedAt   time.Time     `db:"created_at"`
	ReadyAt     *time.Time    `db:"ready_at"`
	StoppedAt   *time.Time    `db:"stopped_at"`
	FailureReason string      `db:"failure_reason"`
}

// Containers decodes the persisted container runtime records.
func (s *Session) Containers() ([]ContainerRuntime, error) {
	if s.ContainersJSON == "" {
		return nil, nil
	}
	var out []ContainerRuntime
	if err := json.Unmarshal([]byte(s.ContainersJSON), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetContainers encodes and stores container runtime records.
func (s *Session) SetContainers(containers []ContainerRuntime) error {
	b, err := json.Marshal(containers)
	if err != nil {
		return err
	}
	s.ContainersJSON = string(b)
	return nil
}

// IsReady reports whether the session can serve capability dispatch.
func (s *Session) IsReady() bool {
	return s.Status == SessionRunning
}

// IsRunning reports whether the session is in any live (non-terminal)
// state, used to decide whether GC may reap it or a new one must be
// materialized.
func (s *Session) IsRunning() bool {
	switch s.Status {
	case SessionPending, SessionStarting, SessionRunning, SessionDegraded:
		return true
	default:
		return false
	}
}

// IsMultiContainer reports whether this session's profile fans out to more
// than one container.
func (s *Session) IsMultiContainer() bool {
	containers, err := s.Containers()
	if err != nil {
		return false
	}
	return len(containers) > 1
}

// ContainerForCapability returns the container runtime record that serves
// the given capability, preferring an explicit PrimaryFor match.
func (s *Session) ContainerForCapability(capability string) (*ContainerRuntime, bool) {
	containers, err := s.Containers()
	if err != nil {
		return nil, false
	}
	for i := range containers {
		for _, c := range containers[i].PrimaryFor {
			if c == capability {
				return &containers[i], true
			}
		}
	}
	for i := range containers {
		for _, c := range containers[i].Capabilities {
			if c == capability {
				return &containers[i], true
			}
		}
	}
	return nil, false
}

// Endpoint returns the endpoint of the container serving capability, or
// empty string if none does.
func (s *Session) Endpoint(capability string) string {
	c, ok := s.ContainerForCapability(capability)
	if !ok {
		return ""
	}
	return c.Endpoint
}
