// Package launcher runs the container lifecycle of the video-generation web
// UI: capability probing, image resolution, conflict reconciliation, launch
// and readiness monitoring.
//
// The phases run in sequence on one goroutine. The launch configuration is
// passed to each phase by value and the phases that change it (Probe and
// Reconcile) return the updated copy. Every recoverable decision is put to
// the operator through a prompt.Prompter.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/lithammer/shortuuid/v4"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/device"
	"github.com/tsingmao/vidlaunch/internal/logger"
	"github.com/tsingmao/vidlaunch/internal/prompt"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// Handle identifies the container started by this invocation.
type Handle struct {
	ID   string
	Name string
}

// Launcher holds the collaborators shared by every phase.
type Launcher struct {
	cfg      *config.Config
	engine   runtime.Engine
	prompter prompt.Prompter
	cmdr     device.Commander
	out      io.Writer
	session  string
	tracker  *Tracker

	// portFree reports whether a host port can be bound. Replaced in tests.
	portFree func(port int) bool

	// hostedLinux reports whether the host is a Linux guest under another OS.
	hostedLinux func() bool

	// pciRoot is the sysfs PCI device directory scanned when the driver
	// query fails.
	pciRoot string
}

// Option customises a Launcher.
type Option func(*Launcher)

// WithOutput sets the writer for operator-facing progress output.
func WithOutput(w io.Writer) Option {
	return func(l *Launcher) { l.out = w }
}

// WithCommander replaces the host command runner.
func WithCommander(c device.Commander) Option {
	return func(l *Launcher) { l.cmdr = c }
}

// WithPortCheck replaces the host port bind test.
func WithPortCheck(free func(port int) bool) Option {
	return func(l *Launcher) { l.portFree = free }
}

// WithHostedLinux replaces hosted Linux (WSL) detection.
func WithHostedLinux(detect func() bool) Option {
	return func(l *Launcher) { l.hostedLinux = detect }
}

// WithPCIRoot replaces the sysfs PCI device directory.
func WithPCIRoot(dir string) Option {
	return func(l *Launcher) { l.pciRoot = dir }
}

// WithSession sets the session id recorded in container labels.
func WithSession(id string) Option {
	return func(l *Launcher) { l.session = id }
}

// New creates a Launcher.
//
// Parameters:
//   - cfg: Validated configuration; cfg.Launch is the starting launch configuration
//   - engine: Container runtime
//   - p: Prompter for recoverable decisions
//   - opts: Optional overrides
func New(cfg *config.Config, engine runtime.Engine, p prompt.Prompter, opts ...Option) *Launcher {
	l := &Launcher{
		cfg:         cfg,
		engine:      engine,
		prompter:    p,
		cmdr:        device.ExecCommander{},
		out:         os.Stdout,
		session:     shortuuid.New(),
		portFree:    hostPortFree,
		hostedLinux: device.DetectHostedLinux,
		pciRoot:     device.SysfsPCIPath,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.tracker = NewTracker(engine, cfg.Runtime.Command, cfg.Runtime.StopTimeout, l.out)
	return l
}

// Tracker returns the cleanup tracker holding the launched container.
func (l *Launcher) Tracker() *Tracker {
	return l.tracker
}

// Session returns the id recorded on containers started by this launcher.
func (l *Launcher) Session() string {
	return l.session
}

// Run executes every phase and then follows the container logs.
//
// It returns nil when the web UI came up (or timed out softly) and the
// operator later interrupted, when an existing container was attached to,
// and when the operator interrupted before anything was launched. Every
// fatal condition is returned as an *Error.
func (l *Launcher) Run(ctx context.Context) error {
	launch := l.cfg.Launch

	caps, launch, err := l.Probe(ctx, launch)
	if err != nil {
		return l.beforeLaunch(ctx, err)
	}
	logger.Debug("Capabilities: runtime=%t driver=%t gpu=%t hosted=%t",
		caps.RuntimeAvailable, caps.GPUDriverPresent, caps.GPUFunctionallyAccessible, caps.HostedLinux)

	if err := l.EnsureImage(ctx, launch); err != nil {
		return l.beforeLaunch(ctx, err)
	}

	launch, decision, err := l.Reconcile(ctx, launch)
	if err != nil {
		return l.beforeLaunch(ctx, err)
	}
	if decision.Attach() {
		fmt.Fprintf(l.out, "Attaching to running container %s (%s)\n", decision.Existing.Name, runtime.ShortID(decision.Existing.ID))
		fmt.Fprintf(l.out, "Web UI: %s\n\n", decision.URL)
		return l.attachExisting(ctx, decision.Existing.ID)
	}

	handle, err := l.Launch(ctx, launch)
	if err != nil {
		if _, started := l.tracker.Tracked(); started {
			// The container runs but could not be validated.
			if ctx.Err() != nil {
				fmt.Fprintln(l.out)
				return l.tracker.Cleanup()
			}
			if cleanupErr := l.tracker.Cleanup(); cleanupErr != nil {
				logger.Error("%v", cleanupErr)
			}
			return err
		}
		return l.beforeLaunch(ctx, err)
	}

	outcome, err := l.AwaitReady(ctx, handle, launch, l.cfg.Readiness.Timeout)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(l.out)
			return l.tracker.Cleanup()
		}
		if cleanupErr := l.tracker.Cleanup(); cleanupErr != nil {
			logger.Error("%v", cleanupErr)
		}
		return err
	}

	switch outcome.Kind {
	case OutcomeFailedToStart:
		fmt.Fprintf(l.out, "✗ Container %s exited with code %d before becoming ready\n", handle.Name, outcome.ExitCode)
		printLogs(l.out, outcome.Logs)
		l.tracker.Release()
		return &Error{
			Kind: KindRuntime,
			Op:   "await readiness",
			Err:  fmt.Errorf("%w (exit code %d)", ErrFailedToStart, outcome.ExitCode),
			Hint: fmt.Sprintf("Inspect the full output with '%s logs %s'; fix the cause and run vidlaunch again", l.cfg.Runtime.Command, handle.Name),
			Logs: outcome.Logs,
		}

	case OutcomeTimedOut:
		logger.Warn("Readiness not detected within %s; the container is still running", l.cfg.Readiness.Timeout)
		fmt.Fprintf(l.out, "! No readiness signal after %s. The web UI may still be initializing.\n", l.cfg.Readiness.Timeout)
		printLogs(l.out, outcome.Logs)
		fmt.Fprintf(l.out, "Web UI (once ready): %s\n", outcome.URL)

	case OutcomeReady:
		fmt.Fprintf(l.out, "✓ Web UI is ready: %s\n", outcome.URL)
		fmt.Fprintf(l.out, "  Outputs are saved to %s\n", launch.OutputDir)
	}

	if l.cfg.Runtime.Detach {
		l.tracker.Release()
		fmt.Fprintf(l.out, "Container %s keeps running in the background. Stop it with 'vidlaunch stop'.\n", handle.Name)
		return nil
	}

	fmt.Fprintf(l.out, "\nFollowing logs (press Ctrl+C to stop the container)...\n\n")
	return l.followLaunched(ctx, handle)
}

// beforeLaunch turns an interrupt before any container was launched into a
// clean exit.
func (l *Launcher) beforeLaunch(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, prompt.ErrInterrupted) {
		fmt.Fprintln(l.out, "\nInterrupted.")
		return nil
	}
	return err
}

// followLaunched tails the launched container until the operator interrupts
// or the container exits.
func (l *Launcher) followLaunched(ctx context.Context, h Handle) error {
	err := l.follow(ctx, h.ID)
	if ctx.Err() != nil {
		fmt.Fprintln(l.out)
		return l.tracker.Cleanup()
	}
	if err != nil {
		logger.Warn("Log stream ended: %v", err)
	}

	// The stream ended on its own: the container stopped.
	l.tracker.Release()
	inspectCtx, cancel := context.WithTimeout(context.Background(), inspectTimeout)
	defer cancel()
	state, inspectErr := l.engine.Inspect(inspectCtx, h.ID)
	if inspectErr != nil {
		return newError(KindRuntime, "follow logs", wrap(ErrContainerExited, inspectErr), "")
	}
	if state.Running {
		return nil
	}
	fmt.Fprintf(l.out, "Container %s stopped: %s\n", h.Name, state.ExitDescription())
	if state.ExitCode != 0 {
		return newError(KindRuntime, "follow logs",
			fmt.Errorf("%w with code %d", ErrContainerExited, state.ExitCode),
			fmt.Sprintf("Inspect the output with '%s logs %s'", l.cfg.Runtime.Command, h.Name))
	}
	return nil
}

// attachExisting tails a container this invocation did not start. It is
// never stopped on interrupt.
func (l *Launcher) attachExisting(ctx context.Context, id string) error {
	if err := l.follow(ctx, id); err != nil && ctx.Err() == nil {
		logger.Warn("Log stream ended: %v", err)
	}
	return nil
}

func (l *Launcher) follow(ctx context.Context, id string) error {
	stream, err := l.engine.Logs(ctx, id, runtime.LogOptions{
		Follow: true,
		Tail:   l.cfg.Readiness.AttachTailLines,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	_, err = io.Copy(l.out, stream)
	return err
}

// hostPortFree reports whether nothing on this host is bound to port.
func hostPortFree(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
