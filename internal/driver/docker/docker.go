// Package docker implements internal/driver.Driver against a local Docker
// engine, for the orchestrator's "driver.type: docker" mode.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/config"
	"github.com/shipyard-neo/bay/internal/driver"
)

const Name = "docker"

// Driver implements driver.Driver using the Docker engine API.
type Driver struct {
	cli         *client.Client
	log         zerolog.Logger
	networkName string
	connectMode driver.ConnectMode
	hostAddress string
}

// New constructs a Docker driver. It does not look for or remove
// containers left behind by earlier runs.
func New(cfg config.DockerConfig, log zerolog.Logger) (*Driver, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	d := &Driver{
		cli:         cli,
		log:         log.With().Str("component", "driver.docker").Logger(),
		networkName: cfg.NetworkName,
		connectMode: driver.ConnectMode(cfg.ConnectMode),
		hostAddress: cfg.HostAddress,
	}
	return d, nil
}

func init() {
	driver.Register(Name, func(cfg any) (driver.Driver, error) {
		dc, ok := cfg.(config.DockerConfig)
		if !ok {
			return nil, fmt.Errorf("docker driver: unexpected config type %T", cfg)
		}
		return New(dc, zerolog.Nop())
	})
}

func (d *Driver) DriverName() string { return Name }

func (d *Driver) Healthy(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

func (d *Driver) Close() error { return d.cli.Close() }

func (d *Driver) CreateContainer(ctx context.Context, name string, spec driver.ContainerSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	nanoCPUs := int64(spec.Resources.CPUCores * 1e9)
	memoryBytes := spec.Resources.MemoryMB * 1024 * 1024

	var mounts []mount.Mount
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeVolume,
			Source:   m.VolumeName,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	mounts = append(mounts, mount.Mount{Type: mount.TypeTmpfs, Target: "/tmp"})

	hostConfig := &container.HostConfig{
		Resources: container.Resources{NanoCPUs: nanoCPUs, Memory: memoryBytes},
		Mounts:    mounts,
	}
	if d.networkName != "" {
		hostConfig.NetworkMode = container.NetworkMode(d.networkName)
	}
	if !spec.EnableNetworking && d.networkName == "" {
		hostConfig.NetworkMode = "none"
	}
	if d.connectMode == driver.ConnectHostPort || d.connectMode == driver.ConnectAuto {
		hostConfig.PublishAllPorts = true
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[driver.LabelManaged] = "true"

	if _, _, err := d.cli.ImageInspectWithRaw(ctx, spec.Image); client.IsErrNotFound(err) {
		d.log.Info().Str("image", spec.Image).Msg("image not found locally, pulling")
		reader, perr := d.cli.ImagePull(ctx, spec.Image, types.ImagePullOptions{})
		if perr != nil {
			return "", fmt.Errorf("pulling image %s: %w", spec.Image, perr)
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	} else if err != nil {
		return "", fmt.Errorf("inspecting image %s: %w", spec.Image, err)
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      spec.Image,
			Cmd:        []string{"tail", "-f", "/dev/null"},
			Env:        env,
			Labels:     labels,
			WorkingDir: spec.WorkDir,
		},
		hostConfig, nil, nil, name,
	)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	return resp.ID, nil
}

func (d *Driver) StartContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return driver.ErrContainerNotFound
		}
		return fmt.Errorf("starting container: %w", err)
	}
	return nil
}

func (d *Driver) StopContainer(ctx context.Context, id string) error {
	opts := types.ContainerRemoveOptions{Force: true, RemoveVolumes: false}
	if err := d.cli.ContainerRemove(ctx, id, opts); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("stopping container: %w", err)
	}
	return nil
}

func (d *Driver) InspectContainer(ctx context.Context, id string) (*driver.InspectResult, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, driver.ErrContainerNotFound
		}
		return nil, err
	}
	return inspectToResult(info), nil
}

func inspectToResult(info types.ContainerJSON) *driver.InspectResult {
	state := driver.ContainerStopped
	errMsg := ""
	switch {
	case info.State.Running:
		state = driver.ContainerRunning
	case info.State.Dead, info.State.OOMKilled:
		state = driver.ContainerError
		errMsg = info.State.Error
	}

	created, _ := time.Parse(time.RFC3339Nano, info.Created)

	var hostPort int
	for _, bindings := range info.NetworkSettings.Ports {
		for _, b := range bindings {
			fmt.Sscanf(b.HostPort, "%d", &hostPort)
			break
		}
		if hostPort != 0 {
			break
		}
	}

	return &driver.InspectResult{
		ID:            info.ID,
		Name:          strings.TrimPrefix(info.Name, "/"),
		State:         state,
		ContainerIP:   info.NetworkSettings.IPAddress,
		ContainerPort: 8080,
		HostPort:      hostPort,
		Labels:        info.Config.Labels,
		CreatedAt:     created,
		Error:         errMsg,
	}
}

func (d *Driver) ListContainers(ctx context.Context, labelFilter map[string]string) ([]*driver.InspectResult, error) {
	args := filters.NewArgs(filters.Arg("label", driver.LabelManaged+"=true"))
	for k, v := range labelFilter {
		args.Add("label", fmt.Sprintf("%s=%s", k, v))
	}
	list, err := d.cli.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: args})
	if err != nil {
		return nil, err
	}
	results := make([]*driver.InspectResult, 0, len(list))
	for _, c := range list {
		info, err := d.cli.ContainerInspect(ctx, c.ID)
		if err != nil {
			continue
		}
		results = append(results, inspectToResult(info))
	}
	return results, nil
}

func (d *Driver) Exec(ctx context.Context, id string, cmd []string) (io.ReadWriteCloser, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, driver.ErrContainerNotFound
		}
		return nil, err
	}
	if !info.State.Running {
		return nil, driver.ErrContainerNotRunning
	}

	execConfig := types.ExecConfig{
		Cmd:          cmd,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}
	execResp, err := d.cli.ContainerExecCreate(ctx, id, execConfig)
	if err != nil {
		return nil, fmt.Errorf("creating exec: %w", err)
	}
	hijacked, err := d.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("attaching to exec: %w", err)
	}
	return NewStream(hijacked), nil
}

func (d *Driver) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	l := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		l[k] = v
	}
	l[driver.LabelManaged] = "true"
	_, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: l})
	return err
}

func (d *Driver) RemoveVolume(ctx context.Context, name string) error {
	err := d.cli.VolumeRemove(ctx, name, true)
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

func (d *Driver) ListVolumes(ctx context.Context, labelFilter map[string]string) ([]driver.VolumeInfo, error) {
	args := filters.NewArgs(filters.Arg("label", driver.LabelManaged+"=true"))
	for k, v := range labelFilter {
		args.Add("label", fmt.Sprintf("%s=%s", k, v))
	}
	resp, err := d.cli.VolumeList(ctx, volume.ListOptions{Filters: args})
	if err != nil {
		return nil, err
	}
	out := make([]driver.VolumeInfo, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		created, _ := time.Parse(time.RFC3339, v.CreatedAt)
		out = append(out, driver.VolumeInfo{Name: v.Name, Labels: v.Labels, CreatedAt: created})
	}
	return out, nil
}
