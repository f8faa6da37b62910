// Package config loads and normalizes the orchestrator's settings using
// viper: defaults, then an optional YAML file, then BAY_-prefixed
// environment variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ResourceSpec bounds CPU/memory for a single container.
type ResourceSpec struct {
	CPUCores float64 `mapstructure:"cpu_cores" yaml:"cpu_cores"`
	MemoryMB int64   `mapstructure:"memory_mb" yaml:"memory_mb"`
}

// ContainerSpec describes one container within a profile.
type ContainerSpec struct {
	Name         string            `mapstructure:"name" yaml:"name"`
	Image        string            `mapstructure:"image" yaml:"image"`
	Capabilities []string          `mapstructure:"capabilities" yaml:"capabilities"`
	PrimaryFor   []string          `mapstructure:"primary_for" yaml:"primary_for"`
	Resources    ResourceSpec      `mapstructure:"resources" yaml:"resources"`
	Env          map[string]string `mapstructure:"env" yaml:"env"`
	WorkDir      string            `mapstructure:"work_dir" yaml:"work_dir"`
}

// StartupConfig controls how a multi-container session is brought up.
type StartupConfig struct {
	Order          string `mapstructure:"order" yaml:"order"` // "parallel" | "sequential"
	WaitForAll     bool   `mapstructure:"wait_for_all" yaml:"wait_for_all"`
	RollbackOnFail bool   `mapstructure:"rollback_on_fail" yaml:"rollback_on_fail"`
}

// ProfileConfig is a named template for materializing sessions. A profile
// specified with the legacy single-container shorthand (Image set
// directly, Containers empty) is normalized into a one-element Containers
// slice by Normalize.
type ProfileConfig struct {
	Name              string          `mapstructure:"name" yaml:"name"`
	Image             string          `mapstructure:"image" yaml:"image"`
	Containers        []ContainerSpec `mapstructure:"containers" yaml:"containers"`
	Startup           StartupConfig   `mapstructure:"startup" yaml:"startup"`
	DefaultTTLSeconds *int64          `mapstructure:"default_ttl_seconds" yaml:"default_ttl_seconds"`
	IdleTimeout       time.Duration   `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// DefaultIdleTimeout is used for any profile that does not set idle_timeout
// explicitly.
const DefaultIdleTimeout = 30 * time.Minute

// Normalize applies the single-container-shorthand expansion. It must be
// called once after decoding, since viper/mapstructure has no equivalent
// of a post-init hook.
func (p *ProfileConfig) Normalize() {
	if len(p.Containers) == 0 && p.Image != "" {
		p.Containers = []ContainerSpec{{
			Name:         "main",
			Image:        p.Image,
			Capabilities: []string{"exec_python", "exec_shell", "fs"},
			PrimaryFor:   []string{"exec_python", "exec_shell", "fs"},
		}}
	}
	if p.Startup.Order == "" {
		p.Startup.Order = "parallel"
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = DefaultIdleTimeout
	}
}

// GetContainers returns the profile's container specs.
func (p *ProfileConfig) GetContainers() []ContainerSpec {
	return p.Containers
}

// GetPrimaryContainer returns the first container spec, which by
// convention hosts the profile's default capabilities when none declare an
// explicit PrimaryFor match.
func (p *ProfileConfig) GetPrimaryContainer() (ContainerSpec, bool) {
	if len(p.Containers) == 0 {
		return ContainerSpec{}, false
	}
	return p.Containers[0], true
}

// FindContainerForCapability returns the container spec declaring the
// given capability, preferring an explicit PrimaryFor entry over a mere
// Capabilities listing.
func (p *ProfileConfig) FindContainerForCapability(capability string) (ContainerSpec, bool) {
	for _, c := range p.Containers {
		for _, cap := range c.PrimaryFor {
			if cap == capability {
				return c, true
			}
		}
	}
	for _, c := range p.Containers {
		for _, cap := range c.Capabilities {
			if cap == capability {
				return c, true
			}
		}
	}
	return ContainerSpec{}, false
}

// GetAllCapabilities returns the union of capabilities across all
// containers in the profile.
func (p *ProfileConfig) GetAllCapabilities() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range p.Containers {
		for _, cap := range c.Capabilities {
			if !seen[cap] {
				seen[cap] = true
				out = append(out, cap)
			}
		}
	}
	return out
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DatabaseConfig controls the sqlite-backed store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DockerConfig controls the local driver.
type DockerConfig struct {
	Host              string `mapstructure:"host" yaml:"host"`
	NetworkName       string `mapstructure:"network_name" yaml:"network_name"`
	ConnectMode       string `mapstructure:"connect_mode" yaml:"connect_mode"` // container_network|host_port|auto
	HostAddress       string `mapstructure:"host_address" yaml:"host_address"`
}

// K8sConfig controls the cluster driver.
type K8sConfig struct {
	Namespace          string        `mapstructure:"namespace" yaml:"namespace"`
	Kubeconfig         string        `mapstructure:"kubeconfig" yaml:"kubeconfig"`
	PodStartupTimeout  time.Duration `mapstructure:"pod_startup_timeout" yaml:"pod_startup_timeout"`
	StorageClass       string        `mapstructure:"storage_class" yaml:"storage_class"`
}

// DriverConfig selects and configures the active Driver backend.
type DriverConfig struct {
	Type   string       `mapstructure:"type" yaml:"type"` // "docker" | "cluster"
	Docker DockerConfig `mapstructure:"docker" yaml:"docker"`
	K8s    K8sConfig    `mapstructure:"k8s" yaml:"k8s"`
}

// CargoConfig controls cargo volume naming and quotas.
type CargoConfig struct {
	MaxPerOwner int `mapstructure:"max_per_owner" yaml:"max_per_owner"`
}

// IdempotencyConfig controls idempotency-key caching.
type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// GCTaskConfig controls one GC task's cadence and thresholds. idle_session
// has no idle_timeout here: idle timeouts are per-profile (ProfileConfig's
// IdleTimeout), since different workloads idle out at different rates.
type GCTaskConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	GraceDuration time.Duration `mapstructure:"grace_duration" yaml:"grace_duration"`
}

// GCConfig controls the garbage collector scheduler.
type GCConfig struct {
	Interval    time.Duration           `mapstructure:"interval" yaml:"interval"`
	InstanceID  string                  `mapstructure:"instance_id" yaml:"instance_id"`
	IdleSession GCTaskConfig            `mapstructure:"idle_session" yaml:"idle_session"`
	ExpiredSandbox GCTaskConfig         `mapstructure:"expired_sandbox" yaml:"expired_sandbox"`
	OrphanCargo GCTaskConfig            `mapstructure:"orphan_cargo" yaml:"orphan_cargo"`
	OrphanContainer GCTaskConfig        `mapstructure:"orphan_container" yaml:"orphan_container"`
}

// GetInstanceID resolves the GC coordinator's instance identity: explicit
// config, then the host name, then the fixed string "bay".
func (g *GCConfig) GetInstanceID() string {
	if g.InstanceID != "" {
		return g.InstanceID
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "bay"
}

// SecurityConfig controls API authentication.
type SecurityConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// Settings is the fully decoded, normalized configuration tree.
type Settings struct {
	Env         string                    `mapstructure:"env" yaml:"env"`
	Server      ServerConfig              `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig            `mapstructure:"database" yaml:"database"`
	Driver      DriverConfig              `mapstructure:"driver" yaml:"driver"`
	Cargo       CargoConfig               `mapstructure:"cargo" yaml:"cargo"`
	Idempotency IdempotencyConfig         `mapstructure:"idempotency" yaml:"idempotency"`
	GC          GCConfig                  `mapstructure:"gc" yaml:"gc"`
	Security    SecurityConfig            `mapstructure:"security" yaml:"security"`
	Profiles    map[string]*ProfileConfig `mapstructure:"profiles" yaml:"profiles"`
}

// GetProfile looks up a named profile.
func (s *Settings) GetProfile(name string) (*ProfileConfig, bool) {
	p, ok := s.Profiles[name]
	return p, ok
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "./bay.db")
	v.SetDefault("driver.type", "docker")
	v.SetDefault("driver.docker.connect_mode", "auto")
	v.SetDefault("driver.docker.network_name", "bay")
	v.SetDefault("driver.k8s.namespace", "bay")
	v.SetDefault("driver.k8s.pod_startup_timeout", 60*time.Second)
	v.SetDefault("cargo.max_per_owner", 20)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("gc.interval", 60*time.Second)
	v.SetDefault("gc.idle_session.enabled", true)
	v.SetDefault("gc.expired_sandbox.enabled", true)
	v.SetDefault("gc.expired_sandbox.grace_duration", 5*time.Minute)
	v.SetDefault("gc.orphan_cargo.enabled", true)
	v.SetDefault("gc.orphan_cargo.grace_duration", 24*time.Hour)
	v.SetDefault("gc.orphan_container.enabled", true)
	v.SetDefault("gc.orphan_container.grace_duration", 10*time.Minute)
}

// Load builds Settings from defaults, an optional YAML file, and
// environment variables. configFile may be empty; BAY_CONFIG_FILE,
// ./config.yaml and /etc/bay/config.yaml are consulted as fallbacks in
// that order.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	path := resolveConfigFile(configFile)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	for _, p := range s.Profiles {
		p.Normalize()
	}
	if len(s.Profiles) == 0 {
		s.Profiles = defaultProfiles()
	}

	return &s, nil
}

func resolveConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("BAY_CONFIG_FILE"); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	if _, err := os.Stat("/etc/bay/config.yaml"); err == nil {
		return "/etc/bay/config.yaml"
	}
	return ""
}

func defaultProfiles() map[string]*ProfileConfig {
	p := &ProfileConfig{
		Name:  "default",
		Image: "bay-runtime:latest",
	}
	p.Normalize()
	return map[string]*ProfileConfig{"default": p}
}
