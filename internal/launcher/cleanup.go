package launcher

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tsingmao/vidlaunch/internal/logger"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// killTimeout is added to the stop grace period to bound a whole cleanup.
const killTimeout = 10 * time.Second

// inspectTimeout bounds the state lookup after a followed container stops.
const inspectTimeout = 10 * time.Second

// Tracker remembers the container launched by this invocation so it can be
// stopped on interrupt.
//
// Cleanup is idempotent and a no-op when nothing is tracked.
type Tracker struct {
	mu      sync.Mutex
	engine  runtime.Engine
	command string
	grace   time.Duration
	out     io.Writer
	handle  *Handle
}

// NewTracker creates a Tracker that stops containers with the given grace.
// command is the runtime CLI named in manual cleanup hints.
func NewTracker(engine runtime.Engine, command string, grace time.Duration, out io.Writer) *Tracker {
	if out == nil {
		out = io.Discard
	}
	return &Tracker{engine: engine, command: command, grace: grace, out: out}
}

// Track registers the launched container.
func (t *Tracker) Track(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handle = &h
}

// Release forgets the tracked container without stopping it.
func (t *Tracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handle = nil
}

// Tracked returns the tracked container, if any.
func (t *Tracker) Tracked() (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle == nil {
		return Handle{}, false
	}
	return *t.handle, true
}

// Cleanup stops the tracked container, force-killing it if the stop fails.
//
// It runs under its own bounded context so it still works after the
// caller's context was cancelled. An unstoppable container is reported as
// an error.
func (t *Tracker) Cleanup() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle == nil {
		return nil
	}
	h := *t.handle

	ctx, cancel := context.WithTimeout(context.Background(), t.grace+killTimeout)
	defer cancel()

	fmt.Fprintf(t.out, "Stopping container %s...\n", h.Name)
	stopErr := t.engine.Stop(ctx, h.ID, t.grace)
	if stopErr == nil {
		t.handle = nil
		fmt.Fprintf(t.out, "✓ Container %s stopped\n", h.Name)
		return nil
	}

	logger.Warn("Failed to stop container %s: %v, killing it", runtime.ShortID(h.ID), stopErr)
	if err := t.engine.Kill(ctx, h.ID); err != nil {
		return newError(KindRuntime, "stop container",
			fmt.Errorf("%w: %s: stop: %v; kill: %v", ErrStopFailed, runtime.ShortID(h.ID), stopErr, err),
			fmt.Sprintf("Stop it manually with '%s rm -f %s'", t.command, h.Name))
	}

	t.handle = nil
	fmt.Fprintf(t.out, "✓ Container %s killed\n", h.Name)
	return nil
}
