package launcher

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/logger"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// RunSpec builds the container run request for a launch configuration.
//
// GPU access and GPUEnv are included only when launch.UseGPU is set; the
// output directory bind mount and port mapping are always present.
func (l *Launcher) RunSpec(launch config.Launch) runtime.RunSpec {
	return runtime.RunSpec{
		Name:  launch.ContainerName,
		Image: launch.Image,
		Env:   launch.RunEnv(),
		GPU:   launch.UseGPU,
		Ports: []runtime.PortMapping{
			{HostPort: launch.HostPort, ContainerPort: launch.ContainerPort},
		},
		Mounts: []runtime.BindMount{
			{Source: launch.OutputDir, Target: launch.OutputMountPath},
		},
		Labels: l.labels(runtime.RoleWorkload),
	}
}

// Launch starts the workload container detached and checks it is running.
//
// A container that is not listed as running right after the start is a
// launch failure: its logs are captured and attached to the error and the
// container is removed. The launched container is registered with the
// cleanup tracker before validation so an interrupt stops it.
func (l *Launcher) Launch(ctx context.Context, launch config.Launch) (Handle, error) {
	if err := os.MkdirAll(launch.OutputDir, 0755); err != nil {
		return Handle{}, newError(KindPrecondition, "prepare output directory", err,
			fmt.Sprintf("Check that %s is writable", launch.OutputDir))
	}

	mode := "GPU"
	if !launch.UseGPU {
		mode = "CPU-only"
	}
	fmt.Fprintf(l.out, "Starting container %s (%s, port %d -> %d, %s)\n",
		launch.ContainerName, launch.Image, launch.HostPort, launch.ContainerPort, mode)

	id, err := l.engine.RunDetached(ctx, l.RunSpec(launch))
	if err != nil {
		return Handle{}, newError(KindLaunch, "run container", wrap(ErrLaunchFailed, err), "")
	}
	handle := Handle{ID: id, Name: launch.ContainerName}
	l.tracker.Track(handle)

	running, err := l.engine.ListContainers(ctx, runtime.ContainerFilter{ID: id}, true)
	if err != nil {
		return handle, newError(KindRuntime, "validate container", err, "")
	}
	if !listed(running, id) {
		logs := l.tailLogs(ctx, id, l.cfg.Readiness.FailureLogLines)
		if err := l.engine.Remove(ctx, id, true); err != nil {
			logger.Warn("Failed to remove dead container %s: %v", runtime.ShortID(id), err)
		}
		l.tracker.Release()

		fmt.Fprintf(l.out, "✗ Container %s is not running after start\n", launch.ContainerName)
		printLogs(l.out, logs)
		return Handle{}, &Error{
			Kind: KindLaunch,
			Op:   "validate container",
			Err:  fmt.Errorf("%w: container %s is not running", ErrLaunchFailed, runtime.ShortID(id)),
			Hint: "Check the logs above; the container was removed",
			Logs: logs,
		}
	}

	fmt.Fprintf(l.out, "✓ Container %s started (%s)\n", launch.ContainerName, runtime.ShortID(id))
	return handle, nil
}

func listed(containers []runtime.ContainerSummary, id string) bool {
	for _, c := range containers {
		if c.ID == id && c.Running() {
			return true
		}
	}
	return false
}

// tailLogs returns the last n log lines of a container, or an empty string
// if they cannot be read.
func (l *Launcher) tailLogs(ctx context.Context, id string, n int) string {
	stream, err := l.engine.Logs(ctx, id, runtime.LogOptions{Tail: n})
	if err != nil {
		logger.Debug("Failed to read logs of %s: %v", runtime.ShortID(id), err)
		return ""
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		logger.Debug("Failed to read logs of %s: %v", runtime.ShortID(id), err)
	}
	return string(data)
}

func printLogs(w io.Writer, logs string) {
	if logs == "" {
		return
	}
	fmt.Fprintln(w, "----- container logs -----")
	fmt.Fprint(w, logs)
	if logs[len(logs)-1] != '\n' {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "--------------------------")
}
