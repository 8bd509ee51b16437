package runtime

import (
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContainerConfig_GPUWorkload(t *testing.T) {
	spec := RunSpec{
		Name:  "vidgen-webui",
		Image: "vidgen-webui:latest",
		Env:   []string{"GRADIO_SERVER_PORT=7860"},
		GPU:   true,
		Ports: []PortMapping{{HostPort: 7861, ContainerPort: 7860}},
		Mounts: []BindMount{
			{Source: "/home/op/outputs", Target: "/app/outputs"},
		},
		Labels: map[string]string{LabelManaged: "true"},
	}

	cc, hc, err := buildContainerConfig(spec)
	require.NoError(t, err)

	assert.Equal(t, "vidgen-webui:latest", cc.Image)
	assert.Equal(t, spec.Env, cc.Env)
	assert.Equal(t, "true", cc.Labels[LabelManaged])
	assert.False(t, cc.Tty)

	port := nat.Port("7860/tcp")
	assert.Contains(t, cc.ExposedPorts, port)
	require.Len(t, hc.PortBindings[port], 1)
	assert.Equal(t, "7861", hc.PortBindings[port][0].HostPort)

	require.Len(t, hc.Mounts, 1)
	assert.Equal(t, mount.TypeBind, hc.Mounts[0].Type)
	assert.Equal(t, "/home/op/outputs", hc.Mounts[0].Source)
	assert.Equal(t, "/app/outputs", hc.Mounts[0].Target)

	require.Len(t, hc.DeviceRequests, 1)
	assert.Equal(t, -1, hc.DeviceRequests[0].Count)
	assert.Equal(t, [][]string{{"gpu"}}, hc.DeviceRequests[0].Capabilities)

	require.NotNil(t, hc.Init)
	assert.True(t, *hc.Init)
	assert.Equal(t, container.RestartPolicyDisabled, hc.RestartPolicy.Name)
}

func TestBuildContainerConfig_CPUOnly(t *testing.T) {
	_, hc, err := buildContainerConfig(RunSpec{Image: "busybox"})
	require.NoError(t, err)
	assert.Empty(t, hc.DeviceRequests)
	assert.Empty(t, hc.PortBindings)
}

func TestBuildContainerConfig_RequiresImage(t *testing.T) {
	_, _, err := buildContainerConfig(RunSpec{Name: "x"})
	require.Error(t, err)
}

func TestToSummary(t *testing.T) {
	s := toSummary(container.Summary{
		ID:     "0123456789abcdef",
		Names:  []string{"/vidgen-webui"},
		Image:  "vidgen-webui:latest",
		State:  "running",
		Status: "Up 3 minutes",
		Ports: []container.Port{
			{PrivatePort: 7860, PublicPort: 7860, Type: "tcp", IP: "0.0.0.0"},
			{PrivatePort: 7860, PublicPort: 7860, Type: "tcp", IP: "::"},
			{PrivatePort: 22, Type: "tcp"},
		},
	})

	assert.Equal(t, "vidgen-webui", s.Name)
	assert.True(t, s.Running())
	assert.Equal(t, []int{7860}, s.PublishedPorts)
	assert.True(t, s.publishes(7860))
	assert.False(t, s.publishes(22))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", ShortID("0123456789abcdef"))
	assert.Equal(t, "abc", ShortID("abc"))
}
