package launcher

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/prompt"
)

const testMarker = "Running on local URL:  http://0.0.0.0:7860"

// gpuHost returns a commander for a host with docker and a working driver.
func gpuHost() *mockCommander {
	return &mockCommander{
		outputs: map[string]string{
			"docker":     "",
			"nvidia-smi": "NVIDIA L4, 550.54.14, 23034 MiB\n",
		},
	}
}

// cpuHost returns a commander for a host with docker but no GPU driver.
func cpuHost() *mockCommander {
	return &mockCommander{outputs: map[string]string{"docker": ""}}
}

// testConfig returns defaults tuned for fast tests: a build context holding
// a Dockerfile, a temporary output directory and a 1ms poll interval.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	buildDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "Dockerfile"), []byte("FROM scratch\n"), 0644))

	cfg := config.NewDefaultConfig()
	cfg.Build.Context = buildDir
	cfg.Launch.OutputDir = filepath.Join(t.TempDir(), "outputs")
	cfg.Readiness.PollInterval = time.Millisecond
	cfg.Readiness.Timeout = time.Second
	cfg.Readiness.FailureLogLines = 3
	return cfg
}

type testEnv struct {
	cfg      *config.Config
	engine   *mockEngine
	cmdr     *mockCommander
	prompter *prompt.Scripted
	out      *bytes.Buffer
	held     map[int]bool
	hosted   bool
	pciRoot  string
}

func newTestEnv(t *testing.T, answers ...bool) *testEnv {
	return &testEnv{
		cfg:      testConfig(t),
		engine:   newMockEngine(),
		cmdr:     gpuHost(),
		prompter: prompt.NewScripted(answers...),
		out:      &bytes.Buffer{},
		held:     map[int]bool{},
		pciRoot:  filepath.Join(t.TempDir(), "no-pci"),
	}
}

func (e *testEnv) launcher() *Launcher {
	return New(e.cfg, e.engine, e.prompter,
		WithOutput(e.out),
		WithCommander(e.cmdr),
		WithPortCheck(func(port int) bool { return !e.held[port] }),
		WithHostedLinux(func() bool { return e.hosted }),
		WithPCIRoot(e.pciRoot),
		WithSession("test-session"),
	)
}

// readyImmediately makes every log read contain the readiness marker.
func (e *testEnv) readyImmediately() {
	e.engine.logsFn = func(string, int) string { return "booting\n" + testMarker + "\n" }
}
