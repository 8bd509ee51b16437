package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	missing bool
	out     string
	err     error
	calls   [][]string
}

func (f *fakeCommander) LookPath(name string) (string, error) {
	if f.missing {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeCommander) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte(f.out), f.err
}

var queryArgv = []string{"nvidia-smi", "--query-gpu=name,driver_version,memory.total", "--format=csv,noheader"}

func TestParseQueryOutput(t *testing.T) {
	out := "NVIDIA GeForce RTX 4090, 550.54.14, 24564 MiB\n\nNVIDIA A100-SXM4-80GB, 550.54.14, 81920 MiB\n"

	gpus := ParseQueryOutput(out)
	require.Len(t, gpus, 2)
	assert.Equal(t, GPU{Index: 0, Name: "NVIDIA GeForce RTX 4090", DriverVersion: "550.54.14", Memory: "24564 MiB"}, gpus[0])
	assert.Equal(t, 1, gpus[1].Index)
	assert.Equal(t, "NVIDIA A100-SXM4-80GB", gpus[1].Name)
}

func TestParseQueryOutput_ShortLines(t *testing.T) {
	gpus := ParseQueryOutput("Tesla T4\n")
	require.Len(t, gpus, 1)
	assert.Equal(t, "Tesla T4", gpus[0].Name)
	assert.Empty(t, gpus[0].DriverVersion)
}

func TestQueryGPUs(t *testing.T) {
	cmdr := &fakeCommander{out: "NVIDIA L4, 535.104.05, 23034 MiB\n"}

	gpus, err := QueryGPUs(context.Background(), cmdr, queryArgv)
	require.NoError(t, err)
	require.Len(t, gpus, 1)
	assert.Equal(t, "NVIDIA L4", gpus[0].Name)
	assert.Equal(t, [][]string{queryArgv}, cmdr.calls)
}

func TestQueryGPUs_Failures(t *testing.T) {
	tests := []struct {
		name string
		cmdr *fakeCommander
	}{
		{"driver tool missing", &fakeCommander{missing: true}},
		{"query fails", &fakeCommander{out: "NVIDIA-SMI has failed", err: errors.New("exit status 9")}},
		{"no devices listed", &fakeCommander{out: "\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := QueryGPUs(context.Background(), tt.cmdr, queryArgv)
			assert.Error(t, err)
		})
	}
}

func TestSummary(t *testing.T) {
	gpus := []GPU{
		{Name: "NVIDIA L4", DriverVersion: "535.104.05"},
		{Name: "NVIDIA L4", DriverVersion: "535.104.05"},
	}
	assert.Equal(t, "2x NVIDIA L4 (driver 535.104.05)", Summary(gpus))
	assert.Equal(t, "no GPUs", Summary(nil))
}

func TestIsHostedKernel(t *testing.T) {
	assert.True(t, IsHostedKernel("5.15.146.1-microsoft-standard-WSL2"))
	assert.True(t, IsHostedKernel("Linux version 4.4.0-19041-Microsoft"))
	assert.False(t, IsHostedKernel("6.8.0-45-generic"))
}
