package launcher

import (
	"context"
	"fmt"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/logger"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// Decision is the outcome of conflict reconciliation.
type Decision struct {
	// Existing is set when a running container with the configured name
	// is kept and should be attached to instead of launching a new one.
	Existing *runtime.ContainerSummary

	// URL is where the existing container's web UI is published.
	URL string
}

// Attach reports whether the caller should attach to Existing.
func (d Decision) Attach() bool {
	return d.Existing != nil
}

// Reconcile resolves name and port conflicts with existing containers.
//
// Name conflicts are resolved first: a container with the configured name
// is either removed, attached to (when running and kept), or reported as a
// fatal conflict (when stopped and kept). Then the host port is checked
// against running containers and host processes; if it stays taken the
// first free port above it is chosen.
//
// Returns:
//   - Launch configuration, possibly with a new HostPort
//   - Decision telling whether to attach to an existing container
//   - Error if a conflict cannot be resolved
func (l *Launcher) Reconcile(ctx context.Context, launch config.Launch) (config.Launch, Decision, error) {
	decision, err := l.reconcileName(ctx, launch)
	if err != nil || decision.Attach() {
		return launch, decision, err
	}

	launch, err = l.reconcilePort(ctx, launch)
	return launch, Decision{}, err
}

func (l *Launcher) reconcileName(ctx context.Context, launch config.Launch) (Decision, error) {
	existing, err := l.engine.ListContainers(ctx, runtime.ContainerFilter{Name: launch.ContainerName}, false)
	if err != nil {
		return Decision{}, newError(KindRuntime, "check container name", err, "")
	}
	if len(existing) == 0 {
		return Decision{}, nil
	}

	c := existing[0]
	fmt.Fprintf(l.out, "Container %s already exists (%s, %s)\n", c.Name, runtime.ShortID(c.ID), c.Status)

	remove, err := l.prompter.Confirm(fmt.Sprintf("Stop and remove container %s?", c.Name), false)
	if err != nil {
		return Decision{}, err
	}

	if remove {
		if c.Running() {
			fmt.Fprintf(l.out, "Stopping %s...\n", c.Name)
			if err := l.engine.Stop(ctx, c.ID, l.cfg.Runtime.StopTimeout); err != nil {
				return Decision{}, newError(KindConflict, "stop existing container", err, "")
			}
		}
		if err := l.engine.Remove(ctx, c.ID, true); err != nil {
			return Decision{}, newError(KindConflict, "remove existing container", err,
				fmt.Sprintf("Remove it manually with '%s rm -f %s'", l.cfg.Runtime.Command, c.Name))
		}
		fmt.Fprintf(l.out, "✓ Removed container %s\n", c.Name)
		return Decision{}, nil
	}

	if c.Running() {
		url := launch.URL()
		if len(c.PublishedPorts) > 0 {
			url = fmt.Sprintf("http://localhost:%d", c.PublishedPorts[0])
		}
		return Decision{Existing: &c, URL: url}, nil
	}

	return Decision{}, newError(KindConflict, "check container name",
		fmt.Errorf("%w: %s exists and is stopped", ErrNameConflict, c.Name),
		fmt.Sprintf("Remove it with '%s rm %s', accept removal when asked, or choose another name with --name",
			l.cfg.Runtime.Command, c.Name))
}

func (l *Launcher) reconcilePort(ctx context.Context, launch config.Launch) (config.Launch, error) {
	port := launch.HostPort

	holders, err := l.engine.ListContainers(ctx, runtime.ContainerFilter{PublishedPort: port}, true)
	if err != nil {
		return launch, newError(KindRuntime, "check host port", err, "")
	}

	if len(holders) > 0 {
		h := holders[0]
		fmt.Fprintf(l.out, "Port %d is used by container %s (%s)\n", port, h.Name, h.Image)

		stop, err := l.prompter.Confirm(fmt.Sprintf("Stop %s and keep port %d?", h.Name, port), false)
		if err != nil {
			return launch, err
		}
		if stop {
			if err := l.engine.Stop(ctx, h.ID, l.cfg.Runtime.StopTimeout); err != nil {
				return launch, newError(KindConflict, "stop port holder", err, "")
			}
			fmt.Fprintf(l.out, "✓ Stopped container %s\n", h.Name)
			return launch, nil
		}
	} else if l.portFree(port) {
		return launch, nil
	} else {
		logger.Warn("Host port %d is held by a process outside the container runtime", port)
		fmt.Fprintf(l.out, "Port %d is in use by another process on this host\n", port)
	}

	next, err := l.findFreePort(ctx, port)
	if err != nil {
		return launch, err
	}
	fmt.Fprintf(l.out, "✓ Using port %d instead\n", next)
	launch.HostPort = next
	return launch, nil
}

// findFreePort scans upward from port+1 for the first port that no running
// container publishes and no host process holds.
func (l *Launcher) findFreePort(ctx context.Context, port int) (int, error) {
	running, err := l.engine.ListContainers(ctx, runtime.ContainerFilter{}, true)
	if err != nil {
		return 0, newError(KindRuntime, "scan host ports", err, "")
	}

	published := make(map[int]bool)
	for _, c := range running {
		for _, p := range c.PublishedPorts {
			published[p] = true
		}
	}

	limit := l.cfg.Runtime.MaxPortScan
	for candidate := port + 1; candidate <= port+limit && candidate <= 65535; candidate++ {
		if published[candidate] {
			continue
		}
		if !l.portFree(candidate) {
			logger.Debug("Port %d is held by a host process, skipping", candidate)
			continue
		}
		return candidate, nil
	}

	return 0, newError(KindConflict, "scan host ports",
		fmt.Errorf("%w in %d..%d", ErrPortExhausted, port+1, port+limit),
		"Free a port or set a different one with --port")
}
