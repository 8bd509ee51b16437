package launcher

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsingmao/vidlaunch/internal/prompt"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

func TestRun_BuildThenReadyThenTail(t *testing.T) {
	env := newTestEnv(t)
	env.engine.logsFn = func(_ string, n int) string {
		if n < 12 {
			return "Fetching assets...\n"
		}
		return "Fetching assets...\n" + testMarker + "\n"
	}
	env.engine.followLogs = testMarker + "\nINFO: GET / 200\n"

	require.NoError(t, env.launcher().Run(context.Background()))

	assert.Equal(t, []string{"vidgen-webui:latest"}, env.engine.builds)
	require.Len(t, env.engine.runs, 1)
	assert.True(t, env.engine.runs[0].GPU)
	assert.Equal(t, 12, env.engine.logReads, "ready on the twelfth poll")

	out := env.out.String()
	assert.Contains(t, out, "✓ Web UI is ready: http://localhost:7860")
	require.Len(t, env.engine.follows, 1, "enters log tailing")
	assert.Contains(t, out, "INFO: GET / 200")
	assert.Empty(t, env.prompter.Questions)
}

func TestRun_StoppedConflictRemovedThenLaunch(t *testing.T) {
	env := newTestEnv(t, true)
	env.engine.images["vidgen-webui:latest"] = true
	stale := env.engine.addContainer("vidgen-webui", "vidgen-webui:latest", "exited")
	env.readyImmediately()

	require.NoError(t, env.launcher().Run(context.Background()))

	assert.Equal(t, []string{stale.summary.ID}, env.engine.removes)
	require.Len(t, env.engine.runs, 1, "exactly one run request")
	assert.Equal(t, 7860, env.engine.runs[0].Ports[0].HostPort)
	assert.Empty(t, env.engine.builds)
}

func TestRun_AttachesToRunningContainer(t *testing.T) {
	env := newTestEnv(t, false)
	env.engine.images["vidgen-webui:latest"] = true
	existing := env.engine.addContainer("vidgen-webui", "vidgen-webui:latest", "running", 7860)
	env.engine.followLogs = "INFO: still serving\n"

	require.NoError(t, env.launcher().Run(context.Background()))

	assert.Empty(t, env.engine.runs, "no second run request")
	assert.Equal(t, []string{existing.summary.ID}, env.engine.follows)
	assert.Empty(t, env.engine.stops, "an attached container is never stopped")
	assert.Contains(t, env.out.String(), "INFO: still serving")
}

func TestRun_GPUDowngradeOmitsAllGPUSettings(t *testing.T) {
	env := newTestEnv(t, true)
	env.engine.images["vidgen-webui:latest"] = true
	env.engine.probeExit = 1
	env.cfg.Runtime.Detach = true
	env.readyImmediately()

	require.NoError(t, env.launcher().Run(context.Background()))

	require.Len(t, env.engine.runs, 1)
	spec := env.engine.runs[0]
	assert.False(t, spec.GPU)
	for _, e := range spec.Env {
		assert.False(t, strings.HasPrefix(e, "NVIDIA_"), "unexpected GPU variable %s", e)
	}
	// The UI environment is still set.
	assert.Contains(t, spec.Env, "GRADIO_SERVER_PORT=7860")
}

func TestRun_FailedToStartExitsWithError(t *testing.T) {
	env := newTestEnv(t)
	env.engine.images["vidgen-webui:latest"] = true
	var workload *mockContainer
	env.engine.runFn = func(c *mockContainer) { workload = c }
	env.engine.logsFn = func(_ string, n int) string {
		workload.summary.State = "exited"
		workload.exitCode = 2
		return "a\nb\nc\nTraceback: boom\n"
	}

	err := env.launcher().Run(context.Background())
	require.ErrorIs(t, err, ErrFailedToStart)
	assert.Equal(t, KindRuntime, KindOf(err))
	assert.Contains(t, err.Error(), "exit code 2")
	assert.Equal(t, "b\nc\nTraceback: boom\n", LogsOf(err))
	assert.Empty(t, env.engine.follows)
}

func TestRun_InterruptAfterLaunchStopsTrackedContainer(t *testing.T) {
	env := newTestEnv(t)
	env.engine.images["vidgen-webui:latest"] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var launchedID string
	env.engine.runFn = func(c *mockContainer) {
		launchedID = c.summary.ID
		cancel()
	}
	other := env.engine.addContainer("jupyter", "jupyter:latest", "running", 8888)

	require.NoError(t, env.launcher().Run(ctx))

	require.NotEmpty(t, launchedID)
	// Cancellation reaches the running check right after the start.
	assert.Equal(t, []string{launchedID}, env.engine.stops, "stop exactly the tracked container")
	assert.NotContains(t, env.engine.stops, other.summary.ID)
}

func TestRun_InterruptBeforeLaunchExitsCleanly(t *testing.T) {
	env := newTestEnv(t)
	env.cmdr = cpuHost()

	l := New(env.cfg, env.engine, interruptingPrompter{},
		WithOutput(env.out), WithCommander(env.cmdr),
		WithPortCheck(func(int) bool { return true }),
		WithHostedLinux(func() bool { return false }))

	require.NoError(t, l.Run(context.Background()))
	assert.Empty(t, env.engine.runs)
	assert.Empty(t, env.engine.stops)
}

func TestRun_DetachLeavesContainerRunning(t *testing.T) {
	env := newTestEnv(t)
	env.engine.images["vidgen-webui:latest"] = true
	env.cfg.Runtime.Detach = true
	env.readyImmediately()

	l := env.launcher()
	require.NoError(t, l.Run(context.Background()))

	assert.Empty(t, env.engine.follows)
	assert.Empty(t, env.engine.stops)
	_, tracked := l.Tracker().Tracked()
	assert.False(t, tracked)
}

func TestRun_ContainerExitDuringTailIsReported(t *testing.T) {
	env := newTestEnv(t)
	env.engine.images["vidgen-webui:latest"] = true
	var workload *mockContainer
	env.engine.runFn = func(c *mockContainer) { workload = c }
	env.readyImmediately()
	env.engine.followLogs = "Segmentation fault\n"

	l := env.launcher()
	// The container dies while its logs are being followed.
	engine := &exitOnFollow{mockEngine: env.engine, exit: func() {
		workload.summary.State = "exited"
		workload.exitCode = 139
	}}
	l.engine = engine
	l.tracker = NewTracker(engine, env.cfg.Runtime.Command, env.cfg.Runtime.StopTimeout, env.out)

	err := l.Run(context.Background())
	require.ErrorIs(t, err, ErrContainerExited)
	assert.Contains(t, env.out.String(), "code 139")
	assert.Empty(t, env.engine.stops)
	assert.Equal(t, []bool{true}, env.engine.inspectDeadlines, "state lookup is bounded")
}

func TestRun_ValidationErrorStopsStartedContainer(t *testing.T) {
	env := newTestEnv(t)
	env.engine.images["vidgen-webui:latest"] = true
	var launchedID string
	env.engine.runFn = func(c *mockContainer) { launchedID = c.summary.ID }
	env.engine.listErr = func(f runtime.ContainerFilter) error {
		if f.ID != "" {
			return errors.New("daemon hiccup")
		}
		return nil
	}

	err := env.launcher().Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon hiccup")
	require.NotEmpty(t, launchedID)
	assert.Equal(t, []string{launchedID}, env.engine.stops)
	running, _ := env.engine.ListContainers(context.Background(), runtime.ContainerFilter{Name: "vidgen-webui"}, true)
	assert.Empty(t, running, "no container left running")
}

type interruptingPrompter struct{}

func (interruptingPrompter) Confirm(string, bool) (bool, error) {
	return false, prompt.ErrInterrupted
}

// exitOnFollow runs exit when a follow stream is opened.
type exitOnFollow struct {
	*mockEngine
	exit func()
}

func (e *exitOnFollow) Logs(ctx context.Context, id string, opts runtime.LogOptions) (io.ReadCloser, error) {
	if opts.Follow {
		e.exit()
	}
	return e.mockEngine.Logs(ctx, id, opts)
}
