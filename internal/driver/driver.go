// Package driver defines the abstraction layer between the orchestrator
// core and the backend that actually runs containers: a local Docker
// engine or a Kubernetes-style cluster. Session Manager and the Garbage
// Collector depend only on this interface, never on a concrete backend.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Errors returned by Driver implementations. Managers translate these into
// apperror.Kind values; the driver package itself stays error-taxonomy
// agnostic beyond these few sentinels, since they encode conditions every
// backend can hit (missing resource, wrong state, exhausted capacity).
var (
	ErrContainerNotFound     = errors.New("container not found")
	ErrContainerNotRunning   = errors.New("container not running")
	ErrVolumeNotFound        = errors.New("volume not found")
	ErrConnectionFailed      = errors.New("failed to connect to container")
	ErrResourceExhausted     = errors.New("resource limit exhausted")
	ErrInvalidSpec           = errors.New("invalid container specification")
)

// Label keys applied to every container this orchestrator creates. Orphan
// GC (driver-agnostic, see internal/gc) trusts these to distinguish
// bay-managed resources from anything else sharing the backend.
const (
	LabelManaged   = "bay.managed"
	LabelSessionID = "bay.session_id"
	LabelSandboxID = "bay.sandbox_id"
	LabelCargoID   = "bay.cargo_id"
	LabelInstanceID = "bay.instance_id"
)

const ContainerNamePrefix = "bay-session-"
const VolumeNamePrefix = "bay-cargo-"

// ResourceSpec bounds a container's CPU and memory.
type ResourceSpec struct {
	CPUCores float64
	MemoryMB int64
}

// Mount describes a volume mount inside a container.
type Mount struct {
	VolumeName string
	Target     string
	ReadOnly   bool
}

// ContainerSpec is the backend-agnostic description of a container to
// create. SessionManager builds one per config.ContainerSpec entry of the
// profile being materialized.
type ContainerSpec struct {
	Name      string // logical name within the session, e.g. "main", "browser"
	Image     string
	Env       map[string]string
	WorkDir   string
	Resources ResourceSpec
	Mounts    []Mount
	Labels    map[string]string
	EnableNetworking bool
}

// Validate applies defaults and rejects nonsensical specs.
func (c *ContainerSpec) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidSpec)
	}
	if c.Resources.MemoryMB <= 0 {
		c.Resources.MemoryMB = 512
	}
	if c.Resources.CPUCores <= 0 {
		c.Resources.CPUCores = 1.0
	}
	if c.Resources.MemoryMB > 16384 {
		return fmt.Errorf("%w: memory cannot exceed 16GB", ErrInvalidSpec)
	}
	if c.Resources.CPUCores > 8.0 {
		return fmt.Errorf("%w: CPU cannot exceed 8 cores", ErrInvalidSpec)
	}
	return nil
}

// ContainerState is the backend-reported run state of a container.
type ContainerState string

const (
	ContainerCreating ContainerState = "creating"
	ContainerRunning  ContainerState = "running"
	ContainerStopped  ContainerState = "stopped"
	ContainerError    ContainerState = "error"
)

// InspectResult is what a backend reports about a running container, used
// as input to the pure endpoint-resolution function below.
type InspectResult struct {
	ID              string
	Name            string // backend-reported name, e.g. "bay-session-ses-abc123"
	State           ContainerState
	ContainerIP     string
	ContainerPort   int
	HostPort        int // 0 if not published
	Labels          map[string]string
	CreatedAt       time.Time
	Error           string
}

// ConnectMode selects how callers resolve a reachable endpoint for a
// container from an InspectResult.
type ConnectMode string

const (
	// ConnectContainerNetwork addresses the container directly by its
	// network IP, as would be reachable from another container on the
	// same network (or from the orchestrator itself when co-located).
	ConnectContainerNetwork ConnectMode = "container_network"
	// ConnectHostPort addresses the container via a published host port,
	// as used when the orchestrator runs outside the container network.
	ConnectHostPort ConnectMode = "host_port"
	// ConnectAuto prefers a container-network address when one is
	// present and falls back to a host port otherwise.
	ConnectAuto ConnectMode = "auto"
)

// ResolveEndpoint is a pure function: given a connect mode, an inspection
// record, and the configured host address to use for published ports, it
// returns the endpoint string a capability adapter should dial.
//
// It performs no I/O and makes no backend calls, so it is independently
// unit-testable against table-driven InspectResult fixtures.
func ResolveEndpoint(mode ConnectMode, insp InspectResult, hostAddress string) (string, error) {
	switch mode {
	case ConnectContainerNetwork:
		if insp.ContainerIP == "" {
			return "", fmt.Errorf("%w: no container network address available", ErrConnectionFailed)
		}
		return fmt.Sprintf("http://%s:%d", insp.ContainerIP, insp.ContainerPort), nil

	case ConnectHostPort:
		if insp.HostPort == 0 {
			return "", fmt.Errorf("%w: no published host port available", ErrConnectionFailed)
		}
		addr := hostAddress
		if addr == "" {
			addr = "127.0.0.1"
		}
		return fmt.Sprintf("http://%s:%d", addr, insp.HostPort), nil

	case ConnectAuto, "":
		if insp.ContainerIP != "" {
			return ResolveEndpoint(ConnectContainerNetwork, insp, hostAddress)
		}
		return ResolveEndpoint(ConnectHostPort, insp, hostAddress)

	default:
		return "", fmt.Errorf("%w: unknown connect mode %q", ErrInvalidSpec, mode)
	}
}

// FileEntry describes one file or directory inside a container.
type FileEntry struct {
	Name         string
	Path         string
	Size         int64
	Mode         int64
	IsDir        bool
	LastModified time.Time
}

// Driver is the abstraction interface for container/volume backends.
// Implementations must be safe for concurrent use. All methods accept a
// context.Context for timeout/cancellation.
type Driver interface {
	// CreateContainer provisions (but does not necessarily start) a
	// container and returns its backend-assigned ID.
	CreateContainer(ctx context.Context, name string, spec ContainerSpec) (id string, err error)

	// StartContainer boots a previously created container.
	StartContainer(ctx context.Context, id string) error

	// StopContainer force-stops and removes a container and its
	// ephemeral resources. Idempotent.
	StopContainer(ctx context.Context, id string) error

	// InspectContainer returns current state for a single container.
	InspectContainer(ctx context.Context, id string) (*InspectResult, error)

	// ListContainers returns containers carrying LabelManaged=true,
	// optionally filtered by additional label equality matches.
	ListContainers(ctx context.Context, labelFilter map[string]string) ([]*InspectResult, error)

	// Exec runs a command inside a running container and returns a
	// bidirectional stream to it (stdin write, stdout read, Docker
	// multiplexing already stripped). Stderr is not part of the stream.
	Exec(ctx context.Context, id string, cmd []string) (io.ReadWriteCloser, error)

	// ListFiles, PutFile, GetFile implement the filesystem capability
	// against a container's filesystem.
	ListFiles(ctx context.Context, id, path string) ([]*FileEntry, error)
	PutFile(ctx context.Context, id, path string, content io.Reader) error
	GetFile(ctx context.Context, id, path string) (io.ReadCloser, error)

	// CreateVolume provisions a durable volume for a Cargo. Idempotent:
	// calling it again for an existing name is a no-op.
	CreateVolume(ctx context.Context, name string, labels map[string]string) error

	// RemoveVolume deletes a volume. Idempotent.
	RemoveVolume(ctx context.Context, name string) error

	// ListVolumes returns volumes carrying LabelManaged=true.
	ListVolumes(ctx context.Context, labelFilter map[string]string) ([]VolumeInfo, error)

	// DriverName identifies this backend ("docker", "cluster").
	DriverName() string

	// Healthy performs a connectivity check against the backend.
	Healthy(ctx context.Context) error

	// Close releases resources held by the driver itself.
	Close() error
}

// VolumeInfo describes a durable volume as reported by the backend.
type VolumeInfo struct {
	Name      string
	Labels    map[string]string
	CreatedAt time.Time
}

// Factory creates a Driver instance from decoded config.
type Factory func(cfg any) (Driver, error)

var registry = make(map[string]Factory)

// Register registers a driver factory under name, called from the
// implementation package's init().
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New creates a Driver instance using the registered factory for name.
func New(name string, cfg any) (Driver, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver: %s", name)
	}
	return factory(cfg)
}

// Available returns the names of all registered drivers.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
