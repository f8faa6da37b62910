package tasks

import (
	"context"
	"io"

	"github.com/shipyard-neo/bay/internal/driver"
)

// noopDriver satisfies driver.Driver for GC task tests that only need
// StopContainer (session teardown) to succeed; ListContainers is
// overridden per-test via fixedListDriver where orphan detection is
// exercised.
type noopDriver struct{}

func newNoopDriver() *noopDriver { return &noopDriver{} }

func (d *noopDriver) CreateContainer(ctx context.Context, name string, spec driver.ContainerSpec) (string, error) {
	panic("not used")
}
func (d *noopDriver) StartContainer(ctx context.Context, id string) error { panic("not used") }
func (d *noopDriver) StopContainer(ctx context.Context, id string) error  { return nil }
func (d *noopDriver) InspectContainer(ctx context.Context, id string) (*driver.InspectResult, error) {
	panic("not used")
}
func (d *noopDriver) ListContainers(ctx context.Context, labelFilter map[string]string) ([]*driver.InspectResult, error) {
	return nil, nil
}
func (d *noopDriver) Exec(ctx context.Context, id string, cmd []string) (io.ReadWriteCloser, error) {
	panic("not used")
}
func (d *noopDriver) ListFiles(ctx context.Context, id, path string) ([]*driver.FileEntry, error) {
	panic("not used")
}
func (d *noopDriver) PutFile(ctx context.Context, id, path string, content io.Reader) error {
	panic("not used")
}
func (d *noopDriver) GetFile(ctx context.Context, id, path string) (io.ReadCloser, error) {
	panic("not used")
}
func (d *noopDriver) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	panic("not used")
}
func (d *noopDriver) RemoveVolume(ctx context.Context, name string) error { panic("not used") }
func (d *noopDriver) ListVolumes(ctx context.Context, labelFilter map[string]string) ([]driver.VolumeInfo, error) {
	panic("not used")
}
func (d *noopDriver) DriverName() string               { return "noop" }
func (d *noopDriver) Healthy(ctx context.Context) error { return nil }
func (d *noopDriver) Close() error                      { return nil }

// fixedListDriver wraps noopDriver, overriding ListContainers to return a
// fixed set of InspectResults for orphan_container tests.
type fixedListDriver struct {
	*noopDriver
	containers []*driver.InspectResult
	stopped    []string
}

func newFixedListDriver(containers []*driver.InspectResult) *fixedListDriver {
	return &fixedListDriver{noopDriver: newNoopDriver(), containers: containers}
}

func (d *fixedListDriver) ListContainers(ctx context.Context, labelFilter map[string]string) ([]*driver.InspectResult, error) {
	return d.containers, nil
}

func (d *fixedListDriver) StopContainer(ctx context.Context, id string) error {
	d.stopped = append(d.stopped, id)
	return nil
}
