package launcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/device"
	"github.com/tsingmao/vidlaunch/internal/logger"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// Capabilities records what the host can do. It is computed once by Probe.
type Capabilities struct {
	RuntimeAvailable          bool
	GPUDriverPresent          bool
	GPUFunctionallyAccessible bool

	// GPUs lists the devices reported by the driver query.
	GPUs []device.GPU

	// HostedLinux is set for a Linux guest under another OS (WSL).
	HostedLinux bool
}

// Probe checks the container runtime and GPU access.
//
// A missing runtime or unreachable daemon is fatal. A missing driver or a
// failed functional GPU check is put to the operator, who may continue
// CPU-only; the returned launch configuration then has UseGPU cleared.
//
// Parameters:
//   - ctx: Context for cancellation
//   - launch: Launch configuration to check
//
// Returns:
//   - Capability record
//   - Launch configuration, possibly downgraded to CPU-only
//   - Error if a precondition fails or the operator declines to continue
func (l *Launcher) Probe(ctx context.Context, launch config.Launch) (Capabilities, config.Launch, error) {
	caps := Capabilities{HostedLinux: l.hostedLinux()}

	fmt.Fprintln(l.out, "Checking environment...")

	runtimeCmd := l.cfg.Runtime.Command
	if _, err := l.cmdr.LookPath(runtimeCmd); err != nil {
		return caps, launch, newError(KindPrecondition, "probe runtime", wrap(ErrRuntimeMissing, err),
			fmt.Sprintf("Install Docker (https://docs.docker.com/engine/install/) and make sure '%s' is on your PATH", runtimeCmd))
	}
	if err := l.engine.Ping(ctx); err != nil {
		return caps, launch, newError(KindPrecondition, "probe runtime", wrap(ErrDaemonUnreachable, err),
			"Start the Docker daemon and check that your user may access it (e.g. membership of the 'docker' group)")
	}
	caps.RuntimeAvailable = true
	fmt.Fprintf(l.out, "✓ Container runtime: %s\n", runtimeCmd)

	if !launch.UseGPU {
		fmt.Fprintln(l.out, "- GPU disabled by configuration, launching CPU-only")
		return caps, launch, nil
	}

	gpus, err := device.QueryGPUs(ctx, l.cmdr, l.cfg.GPU.QueryCommand)
	if err != nil {
		logger.Debug("GPU driver query failed: %v", err)
		fmt.Fprintf(l.out, "✗ No NVIDIA GPU driver detected (%s)\n", firstWord(l.cfg.GPU.QueryCommand))
		if hw := device.DescribeNVIDIAHardware(l.pciRoot); hw != "" {
			fmt.Fprintf(l.out, "  %s\n", hw)
		}
		launch, err = l.downgradeToCPU(launch, "Continue without GPU acceleration?",
			"Install the NVIDIA driver, or run with --cpu")
		return caps, launch, err
	}
	caps.GPUDriverPresent = true
	caps.GPUs = gpus
	fmt.Fprintf(l.out, "✓ GPU driver: %s\n", device.Summary(gpus))

	if err := l.checkGPUAccess(ctx); err != nil {
		if ctx.Err() != nil {
			return caps, launch, ctx.Err()
		}
		logger.Debug("Functional GPU check failed: %v", err)
		fmt.Fprintf(l.out, "✗ Containers cannot access the GPU: %v\n", err)
		fmt.Fprintf(l.out, "  Hint: %s\n", gpuAccessHint(caps.HostedLinux))
		launch, err = l.downgradeToCPU(launch, "Continue in CPU-only mode? (generation will be very slow)",
			gpuAccessHint(caps.HostedLinux))
		return caps, launch, err
	}
	caps.GPUFunctionallyAccessible = true
	fmt.Fprintln(l.out, "✓ GPU is accessible from containers")

	return caps, launch, nil
}

// checkGPUAccess runs the probe command in a throwaway container with GPU
// access requested. Any error or non-zero exit means the GPU is not usable.
func (l *Launcher) checkGPUAccess(ctx context.Context) error {
	probeImage := l.cfg.GPU.ProbeImage

	exists, err := l.engine.ImageExists(ctx, probeImage)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintf(l.out, "Pulling GPU probe image %s...\n", probeImage)
		if err := l.engine.PullImage(ctx, probeImage, l.out); err != nil {
			return err
		}
	}

	result, err := l.engine.RunProbe(ctx, runtime.RunSpec{
		Image:  probeImage,
		Cmd:    l.cfg.GPU.ProbeCommand,
		GPU:    true,
		Labels: l.labels(runtime.RoleGPUProbe),
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		out := strings.TrimSpace(result.Output)
		if out == "" {
			return fmt.Errorf("probe exited with code %d", result.ExitCode)
		}
		return fmt.Errorf("probe exited with code %d: %s", result.ExitCode, lastLine(out))
	}
	return nil
}

// downgradeToCPU asks whether to continue without GPU. Continuing clears
// UseGPU, which also drops GPUEnv from the run request.
func (l *Launcher) downgradeToCPU(launch config.Launch, question, hint string) (config.Launch, error) {
	ok, err := l.prompter.Confirm(question, false)
	if err != nil {
		return launch, err
	}
	if !ok {
		return launch, newError(KindCapability, "probe gpu", ErrDeclined, hint)
	}
	launch.UseGPU = false
	fmt.Fprintln(l.out, "- Continuing in CPU-only mode")
	return launch, nil
}

func gpuAccessHint(hostedLinux bool) string {
	if hostedLinux {
		return "Under WSL the container engine's GPU support is configured separately from the Windows driver. " +
			"Enable WSL integration in Docker Desktop, or install nvidia-container-toolkit inside the distribution and restart Docker."
	}
	return "Install and configure nvidia-container-toolkit " +
		"(nvidia-ctk runtime configure --runtime=docker), then restart the Docker daemon."
}

func (l *Launcher) labels(role string) map[string]string {
	return map[string]string{
		runtime.LabelManaged: "true",
		runtime.LabelSession: l.session,
		runtime.LabelRole:    role,
	}
}

func firstWord(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return argv[0]
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}
