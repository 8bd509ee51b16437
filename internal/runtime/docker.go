// Package runtime talks to the container runtime on behalf of the launcher.
//
// DockerEngine implements Engine with the Docker Engine SDK for container
// operations and image builds, and with the docker CLI (under a PTY) for
// image pulls so the native progress display is kept.
package runtime

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/lithammer/shortuuid/v4"

	"github.com/tsingmao/vidlaunch/internal/logger"
)

// DockerEngine implements Engine against a Docker daemon.
type DockerEngine struct {
	client  *client.Client // Docker API client with version negotiation
	command string         // docker CLI used for pulls
}

// NewDockerEngine creates a Docker engine client.
//
// The client honours DOCKER_HOST, DOCKER_TLS_VERIFY and DOCKER_CERT_PATH and
// negotiates the API version. It does not contact the daemon; call Ping to
// verify connectivity.
//
// Parameters:
//   - command: docker CLI name or path, used for image pulls
//
// Returns:
//   - Engine client
//   - Error if the client cannot be configured
func NewDockerEngine(command string) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if command == "" {
		command = "docker"
	}

	return &DockerEngine{client: cli, command: command}, nil
}

// Ping verifies the daemon is reachable within 5 seconds.
func (e *DockerEngine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := e.client.Ping(ctx); err != nil {
		return fmt.Errorf("Docker daemon is not accessible: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (e *DockerEngine) Close() error {
	return e.client.Close()
}

// ImageExists checks the local image store for ref.
func (e *DockerEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, fmt.Errorf("image name cannot be empty")
	}

	images, err := e.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list images: %w", err)
	}

	exists := len(images) > 0
	logger.Debug("Docker image %s present locally: %t", ref, exists)
	return exists, nil
}

// ListContainers lists containers matching filter.
//
// Name and ID are passed to the daemon; the name match is then made exact
// because the daemon matches names as regular expressions. Published ports
// are matched here against the host side of each mapping.
func (e *DockerEngine) ListContainers(ctx context.Context, filter ContainerFilter, runningOnly bool) ([]ContainerSummary, error) {
	args := filters.NewArgs()
	if filter.ID != "" {
		args.Add("id", filter.ID)
	}
	if filter.Name != "" {
		args.Add("name", "^/?"+regexp.QuoteMeta(filter.Name)+"$")
	}
	if filter.Ancestor != "" {
		args.Add("ancestor", filter.Ancestor)
	}

	containers, err := e.client.ContainerList(ctx, container.ListOptions{
		All:     !runningOnly,
		Filters: args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]ContainerSummary, 0, len(containers))
	for _, c := range containers {
		summary := toSummary(c)
		if filter.Name != "" && summary.Name != filter.Name {
			continue
		}
		if filter.PublishedPort != 0 && !summary.publishes(filter.PublishedPort) {
			continue
		}
		result = append(result, summary)
	}
	return result, nil
}

func toSummary(c container.Summary) ContainerSummary {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	var ports []int
	seen := make(map[int]bool)
	for _, p := range c.Ports {
		if p.PublicPort == 0 || seen[int(p.PublicPort)] {
			continue
		}
		seen[int(p.PublicPort)] = true
		ports = append(ports, int(p.PublicPort))
	}

	return ContainerSummary{
		ID:             c.ID,
		Name:           name,
		Image:          c.Image,
		State:          string(c.State),
		Status:         c.Status,
		PublishedPorts: ports,
		Labels:         c.Labels,
	}
}

func (c ContainerSummary) publishes(port int) bool {
	for _, p := range c.PublishedPorts {
		if p == port {
			return true
		}
	}
	return false
}

// RunDetached creates and starts a container.
//
// If the start fails the created container is removed so the name is free
// again.
func (e *DockerEngine) RunDetached(ctx context.Context, spec RunSpec) (string, error) {
	containerConfig, hostConfig, err := buildContainerConfig(spec)
	if err != nil {
		return "", err
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		logger.Warn("Docker: %s", w)
	}

	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := e.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			logger.Warn("Failed to remove container %s after failed start: %v", ShortID(resp.ID), rmErr)
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	logger.Debug("Started container %s (%s) from %s", ShortID(resp.ID), spec.Name, spec.Image)
	return resp.ID, nil
}

// RunProbe runs a short-lived container, waits for it to exit and collects
// its output. The container is always removed.
func (e *DockerEngine) RunProbe(ctx context.Context, spec RunSpec) (*ProbeResult, error) {
	if spec.Name == "" {
		spec.Name = "vidlaunch-probe-" + strings.ToLower(shortuuid.New()[:8])
	}

	containerConfig, hostConfig, err := buildContainerConfig(spec)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe container: %w", err)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.client.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			logger.Warn("Failed to remove probe container %s: %v", ShortID(resp.ID), err)
		}
	}()

	waitCh, errCh := e.client.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)

	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start probe container: %w", err)
	}

	result := &ProbeResult{}
	select {
	case w := <-waitCh:
		if w.Error != nil && w.Error.Message != "" {
			return nil, fmt.Errorf("probe container wait failed: %s", w.Error.Message)
		}
		result.ExitCode = int(w.StatusCode)
	case err := <-errCh:
		return nil, fmt.Errorf("failed waiting for probe container: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if logs, err := e.readLogs(ctx, resp.ID, LogOptions{}); err == nil {
		result.Output = logs
	} else {
		logger.Debug("Failed to read probe output: %v", err)
	}

	return result, nil
}

// Inspect returns the recorded state of a container.
func (e *DockerEngine) Inspect(ctx context.Context, id string) (*ContainerState, error) {
	inspect, err := e.client.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	return mapContainerState(inspect.State), nil
}

// Logs streams the container logs with stdout and stderr demultiplexed
// into one plain-text stream.
func (e *DockerEngine) Logs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error) {
	tail := "all"
	if opts.Tail > 0 {
		tail = strconv.Itoa(opts.Tail)
	}

	reader, err := e.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       tail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		// Containers run without a TTY, so the stream is multiplexed.
		_, err := stdcopy.StdCopy(pw, pw, reader)
		pw.CloseWithError(err)
	}()

	return &logStream{reader: reader, pipe: pr}, nil
}

func (e *DockerEngine) readLogs(ctx context.Context, id string, opts LogOptions) (string, error) {
	stream, err := e.Logs(ctx, id, opts)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return string(data), fmt.Errorf("failed to read container logs: %w", err)
	}
	return string(data), nil
}

// Stop stops a container, letting the daemon kill it once grace elapses.
func (e *DockerEngine) Stop(ctx context.Context, id string, grace time.Duration) error {
	timeout := int(grace.Seconds())
	if err := e.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	logger.Debug("Stopped container %s", ShortID(id))
	return nil
}

// Kill sends SIGKILL.
func (e *DockerEngine) Kill(ctx context.Context, id string) error {
	if err := e.client.ContainerKill(ctx, id, "SIGKILL"); err != nil {
		return fmt.Errorf("failed to kill container: %w", err)
	}
	logger.Debug("Killed container %s", ShortID(id))
	return nil
}

// Remove deletes a container and its anonymous volumes.
func (e *DockerEngine) Remove(ctx context.Context, id string, force bool) error {
	err := e.client.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         force,
		RemoveVolumes: true,
	})
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	logger.Debug("Removed container %s", ShortID(id))
	return nil
}

// buildContainerConfig translates a RunSpec into Docker create options.
//
// GPU access is a device request for all GPUs with the "gpu" capability,
// the SDK form of `docker run --gpus all`. Without spec.GPU no device
// request is made.
func buildContainerConfig(spec RunSpec) (*container.Config, *container.HostConfig, error) {
	if spec.Image == "" {
		return nil, nil, fmt.Errorf("image is required")
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, p := range spec.Ports {
		containerPort, err := nat.NewPort("tcp", strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %d: %w", p.ContainerPort, err)
		}
		exposedPorts[containerPort] = struct{}{}
		portBindings[containerPort] = append(portBindings[containerPort], nat.PortBinding{
			HostIP:   "0.0.0.0",
			HostPort: strconv.Itoa(p.HostPort),
		})
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Cmd:          spec.Cmd,
		ExposedPorts: exposedPorts,
		Labels:       spec.Labels,
		Tty:          false,
	}

	hostConfig := &container.HostConfig{
		Mounts:       mounts,
		PortBindings: portBindings,
		Init:         boolPtr(true), // forward signals to the workload
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled, // an exit must stay visible to the monitor
		},
	}

	if spec.GPU {
		hostConfig.Resources.DeviceRequests = []container.DeviceRequest{
			{
				Count:        -1, // all
				Capabilities: [][]string{{"gpu"}},
			},
		}
	}

	return containerConfig, hostConfig, nil
}

// logStream closes both the demultiplexed pipe and the daemon response.
type logStream struct {
	reader io.ReadCloser
	pipe   *io.PipeReader
}

func (s *logStream) Read(p []byte) (int, error) {
	return s.pipe.Read(p)
}

func (s *logStream) Close() error {
	s.pipe.Close()
	return s.reader.Close()
}

func boolPtr(b bool) *bool {
	return &b
}
