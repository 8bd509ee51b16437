package launcher

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/logger"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// OutcomeKind is the terminal state of readiness monitoring.
type OutcomeKind int

const (
	OutcomeReady OutcomeKind = iota + 1
	OutcomeFailedToStart
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReady:
		return "ready"
	case OutcomeFailedToStart:
		return "failed to start"
	case OutcomeTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Outcome is the result of AwaitReady.
type Outcome struct {
	Kind OutcomeKind

	// URL is the web UI address. For TimedOut it is speculative.
	URL string

	// ExitCode is the recorded exit code for FailedToStart.
	ExitCode int

	// Logs holds the last log lines for FailedToStart and TimedOut.
	Logs string

	// Ticks is the number of polls performed.
	Ticks int
}

// AwaitReady polls the container until it is ready, exits or the timeout
// budget is spent.
//
// The budget is timeout/PollInterval ticks. Each tick first checks that the
// container is still listed as running, then hands the accumulated logs to
// the readiness detector. A timeout leaves the container running.
//
// Parameters:
//   - ctx: Context for cancellation; cancelling returns ctx.Err()
//   - h: Launched container
//   - launch: Launch configuration the container was started with
//   - timeout: Readiness budget
//
// Returns:
//   - Outcome
//   - Error on cancellation or when the runtime cannot be queried
func (l *Launcher) AwaitReady(ctx context.Context, h Handle, launch config.Launch, timeout time.Duration) (Outcome, error) {
	url := launch.URL()
	rcfg := l.cfg.Readiness

	detector, err := NewDetector(rcfg, url)
	if err != nil {
		return Outcome{}, newError(KindRuntime, "await readiness", err, "")
	}

	interval := rcfg.PollInterval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	budget := int(timeout / interval)
	if budget < 1 {
		budget = 1
	}

	logger.Debug("Waiting for %s on %s (%d checks every %s)", detector, h.Name, budget, interval)
	fmt.Fprintf(l.out, "Waiting for the web UI to be ready... (Press Ctrl+C to cancel)\n")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; tick <= budget; tick++ {
		select {
		case <-ctx.Done():
			return Outcome{Ticks: tick - 1}, ctx.Err()
		case <-ticker.C:
		}

		running, err := l.engine.ListContainers(ctx, runtime.ContainerFilter{ID: h.ID}, true)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Ticks: tick}, ctx.Err()
			}
			return Outcome{Ticks: tick}, newError(KindRuntime, "check container", err, "")
		}
		if !listed(running, h.ID) {
			fmt.Fprintf(l.out, "\r\033[K")
			return l.failedToStart(ctx, h, tick), nil
		}

		logs, err := l.allLogs(ctx, h.ID)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Ticks: tick}, ctx.Err()
			}
			logger.Debug("Failed to read logs: %v", err)
		}

		ready, err := detector.Ready(ctx, logs)
		if err != nil {
			return Outcome{Ticks: tick}, newError(KindRuntime, "await readiness", err, "")
		}
		if ready {
			fmt.Fprintf(l.out, "\r\033[K")
			logger.Debug("Ready after %d checks", tick)
			return Outcome{Kind: OutcomeReady, URL: url, Ticks: tick}, nil
		}

		fmt.Fprintf(l.out, "\rWaiting for the web UI to be ready... (%d/%d checks)", tick, budget)
	}

	fmt.Fprintf(l.out, "\r\033[K")
	return Outcome{
		Kind:  OutcomeTimedOut,
		URL:   url,
		Logs:  l.tailLogs(ctx, h.ID, rcfg.FailureLogLines),
		Ticks: budget,
	}, nil
}

func (l *Launcher) failedToStart(ctx context.Context, h Handle, tick int) Outcome {
	exitCode := -1
	if state, err := l.engine.Inspect(ctx, h.ID); err != nil {
		logger.Warn("Failed to inspect container %s: %v", runtime.ShortID(h.ID), err)
	} else {
		exitCode = state.ExitCode
		logger.Debug("Container %s: %s", h.Name, state.ExitDescription())
	}

	return Outcome{
		Kind:     OutcomeFailedToStart,
		ExitCode: exitCode,
		Logs:     l.tailLogs(ctx, h.ID, l.cfg.Readiness.FailureLogLines),
		Ticks:    tick,
	}
}

func (l *Launcher) allLogs(ctx context.Context, id string) (string, error) {
	stream, err := l.engine.Logs(ctx, id, runtime.LogOptions{})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	return string(data), err
}
