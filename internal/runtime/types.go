package runtime

import (
	"context"
	"io"
	"time"
)

// Container labels set on everything the launcher creates.
const (
	// LabelManaged marks containers created by vidlaunch.
	LabelManaged = "vidlaunch.managed"

	// LabelSession carries the id of the invocation that created the container.
	LabelSession = "vidlaunch.session"

	// LabelRole is "workload" for the web UI and "gpu-probe" for probe containers.
	LabelRole = "vidlaunch.role"
)

// Label values for LabelRole.
const (
	RoleWorkload = "workload"
	RoleGPUProbe = "gpu-probe"
)

// Engine is the container runtime command surface the launcher consumes.
//
// Every method blocks until the runtime answers and honours ctx
// cancellation. Implementations must be safe to call from one goroutine at
// a time; the launcher does not call them concurrently.
type Engine interface {
	// Ping verifies the runtime daemon is reachable.
	Ping(ctx context.Context) error

	// ImageExists reports whether an image with the reference exists locally.
	ImageExists(ctx context.Context, ref string) (bool, error)

	// BuildImage builds contextDir/dockerfile and tags it ref, streaming
	// progress to out. Paths matched by .dockerignore or exclude are not
	// sent. A build error (including a failed build step) is returned as an
	// error.
	BuildImage(ctx context.Context, ref, contextDir, dockerfile string, exclude []string, out io.Writer) error

	// PullImage pulls ref from its registry, streaming progress to out.
	PullImage(ctx context.Context, ref string, out io.Writer) error

	// ListContainers lists containers matching every non-zero field of
	// filter. With runningOnly unset, stopped containers are included.
	ListContainers(ctx context.Context, filter ContainerFilter, runningOnly bool) ([]ContainerSummary, error)

	// RunDetached creates and starts a container and returns its id without
	// waiting for the workload.
	RunDetached(ctx context.Context, spec RunSpec) (string, error)

	// RunProbe runs a container to completion and returns its exit code and
	// output. The container is removed afterwards.
	RunProbe(ctx context.Context, spec RunSpec) (*ProbeResult, error)

	// Inspect returns the recorded state of a container.
	Inspect(ctx context.Context, id string) (*ContainerState, error)

	// Logs returns the container's combined stdout/stderr as plain text.
	// The caller must close the stream.
	Logs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error)

	// Stop asks the container to stop, killing it after grace.
	Stop(ctx context.Context, id string, grace time.Duration) error

	// Kill sends SIGKILL to the container.
	Kill(ctx context.Context, id string) error

	// Remove deletes the container; force also removes a running one.
	Remove(ctx context.Context, id string, force bool) error

	// Close releases the runtime connection.
	Close() error
}

// ContainerFilter selects containers. Zero fields do not filter.
type ContainerFilter struct {
	// ID matches the full id or an id prefix.
	ID string

	// Name matches the container name exactly.
	Name string

	// Ancestor matches containers created from this image.
	Ancestor string

	// PublishedPort matches containers publishing this host port.
	PublishedPort int
}

// ContainerSummary is one entry of a container listing.
type ContainerSummary struct {
	ID             string
	Name           string
	Image          string
	State          string // "running", "exited", "created", ...
	Status         string // human readable, e.g. "Up 5 minutes"
	PublishedPorts []int
	Labels         map[string]string
}

// Running reports whether the listing saw the container running.
func (c ContainerSummary) Running() bool {
	return c.State == "running"
}

// ShortID returns the 12-character id prefix used in messages.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// ContainerState is the recorded state of a container.
type ContainerState struct {
	// Status is the runtime status: created, running, exited, dead, ...
	Status string

	// Running is true while the container's main process runs.
	Running bool

	// ExitCode is the last exit code; only meaningful when not running.
	ExitCode int

	// OOMKilled is set when the kernel killed the container for memory.
	OOMKilled bool

	// Error is the runtime's error message for a failed start, if any.
	Error string

	StartedAt  time.Time
	FinishedAt time.Time
}

// PortMapping publishes ContainerPort/tcp on HostPort.
type PortMapping struct {
	HostPort      int
	ContainerPort int
}

// BindMount makes a host path visible in the container.
type BindMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is a container run request.
type RunSpec struct {
	Name   string
	Image  string
	Cmd    []string
	Env    []string // KEY=VALUE
	GPU    bool     // request access to all GPUs
	Ports  []PortMapping
	Mounts []BindMount
	Labels map[string]string
}

// ProbeResult is the outcome of RunProbe.
type ProbeResult struct {
	ExitCode int
	Output   string
}

// LogOptions selects which log lines to read.
type LogOptions struct {
	// Follow keeps the stream open for new lines.
	Follow bool

	// Tail limits output to the last Tail lines; zero or negative means all.
	Tail int
}
