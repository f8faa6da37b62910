package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndDefaultProfile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", s.Env)
	assert.Equal(t, 8080, s.Server.Port)
	assert.Equal(t, "docker", s.Driver.Type)
	assert.Equal(t, 20, s.Cargo.MaxPerOwner)

	profile, ok := s.GetProfile("default")
	require.True(t, ok)
	require.Len(t, profile.Containers, 1)
	assert.Equal(t, "main", profile.Containers[0].Name)
	assert.Equal(t, "parallel", profile.Startup.Order)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
driver:
  type: cluster
profiles:
  research:
    image: bay-research:latest
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, s.Server.Port)
	assert.Equal(t, "cluster", s.Driver.Type)

	profile, ok := s.GetProfile("research")
	require.True(t, ok)
	require.Len(t, profile.Containers, 1)
	assert.Equal(t, "bay-research:latest", profile.Containers[0].Image)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("BAY_SERVER__PORT", "7070")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, s.Server.Port)
}

func TestProfileConfigNormalizeShorthand(t *testing.T) {
	p := &ProfileConfig{Name: "x", Image: "foo:latest"}
	p.Normalize()

	require.Len(t, p.Containers, 1)
	assert.Equal(t, "foo:latest", p.Containers[0].Image)
	assert.Contains(t, p.Containers[0].Capabilities, "exec_python")
	assert.Equal(t, "parallel", p.Startup.Order)
}

func TestProfileConfigFindContainerForCapability(t *testing.T) {
	p := &ProfileConfig{
		Containers: []ContainerSpec{
			{Name: "main", Capabilities: []string{"exec_python", "fs"}},
			{Name: "browser", Capabilities: []string{"exec_browser"}, PrimaryFor: []string{"exec_browser"}},
		},
	}

	c, ok := p.FindContainerForCapability("exec_browser")
	require.True(t, ok)
	assert.Equal(t, "browser", c.Name)

	c, ok = p.FindContainerForCapability("fs")
	require.True(t, ok)
	assert.Equal(t, "main", c.Name)

	_, ok = p.FindContainerForCapability("unknown")
	assert.False(t, ok)
}

func TestGCConfigGetInstanceID(t *testing.T) {
	g := GCConfig{InstanceID: "explicit-id"}
	assert.Equal(t, "explicit-id", g.GetInstanceID())

	g2 := GCConfig{}
	assert.NotEmpty(t, g2.GetInstanceID())
}
