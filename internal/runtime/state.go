package runtime

import (
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
)

// mapContainerState converts Docker inspect state into ContainerState.
//
// A nil state (seen for containers being removed) maps to a dead,
// non-running container so callers treat it as gone.
func mapContainerState(state *container.State) *ContainerState {
	if state == nil {
		return &ContainerState{Status: "dead", ExitCode: -1, Error: "container state unavailable"}
	}

	return &ContainerState{
		Status:     string(state.Status),
		Running:    state.Running && !state.Restarting,
		ExitCode:   state.ExitCode,
		OOMKilled:  state.OOMKilled,
		Error:      state.Error,
		StartedAt:  parseDockerTime(state.StartedAt),
		FinishedAt: parseDockerTime(state.FinishedAt),
	}
}

// parseDockerTime parses the daemon's RFC 3339 timestamps. The daemon
// reports "0001-01-01T00:00:00Z" for events that did not happen; that and
// malformed input yield the zero time.
func parseDockerTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ExitDescription is a one-line description of why a container is not
// running, suitable for error messages.
func (s *ContainerState) ExitDescription() string {
	switch {
	case s.Running:
		return "container is running"
	case s.Status == "created":
		return "container was created but never started"
	case s.OOMKilled:
		return fmt.Sprintf("container was killed for running out of memory (exit code %d)", s.ExitCode)
	case s.Error != "":
		return fmt.Sprintf("container exited unexpectedly with code %d: %s", s.ExitCode, s.Error)
	default:
		return fmt.Sprintf("container exited unexpectedly with code %d", s.ExitCode)
	}
}
