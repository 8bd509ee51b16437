package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// mockContainer is one container known to mockEngine.
type mockContainer struct {
	summary  runtime.ContainerSummary
	exitCode int
	logs     string
}

// mockEngine is an in-memory runtime.Engine that records every mutating call.
type mockEngine struct {
	mu sync.Mutex

	pingErr    error
	images     map[string]bool
	containers []*mockContainer
	nextID     int

	buildErr  error
	pullErr   error
	probeExit int
	probeErr  error
	stopErr   error
	killErr   error

	// runFn, if set, decides what happens to a freshly run container. It may
	// mutate the container (e.g. mark it exited) before it is listed.
	runFn func(c *mockContainer)

	// logsFn, if set, returns accumulated logs for the n-th non-follow read.
	logsFn func(id string, n int) string

	// followLogs is returned for follow reads.
	followLogs string

	// listErr, if set, fails listings that match it.
	listErr func(f runtime.ContainerFilter) error

	// inspectDeadlines records whether each Inspect call had a deadline.
	inspectDeadlines []bool

	builds   []string

	buildExcludes [][]string
	pulls    []string
	probes   []runtime.RunSpec
	runs     []runtime.RunSpec
	stops    []string
	kills    []string
	removes  []string
	follows  []string
	logReads int
}

func newMockEngine() *mockEngine {
	return &mockEngine{images: map[string]bool{}}
}

// addContainer registers an existing container and returns it.
func (m *mockEngine) addContainer(name, image, state string, ports ...int) *mockContainer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &mockContainer{summary: runtime.ContainerSummary{
		ID:             fmt.Sprintf("%064d", m.nextID),
		Name:           name,
		Image:          image,
		State:          state,
		Status:         state,
		PublishedPorts: ports,
	}}
	m.containers = append(m.containers, c)
	return c
}

func (m *mockEngine) find(id string) *mockContainer {
	for _, c := range m.containers {
		if c.summary.ID == id {
			return c
		}
	}
	return nil
}

func (m *mockEngine) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images[ref], nil
}

func (m *mockEngine) BuildImage(ctx context.Context, ref, contextDir, dockerfile string, exclude []string, out io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds = append(m.builds, ref)
	m.buildExcludes = append(m.buildExcludes, exclude)
	if m.buildErr != nil {
		return m.buildErr
	}
	m.images[ref] = true
	return nil
}

func (m *mockEngine) PullImage(ctx context.Context, ref string, out io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls = append(m.pulls, ref)
	if m.pullErr != nil {
		return m.pullErr
	}
	m.images[ref] = true
	return nil
}

func (m *mockEngine) ListContainers(ctx context.Context, f runtime.ContainerFilter, runningOnly bool) ([]runtime.ContainerSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		if err := m.listErr(f); err != nil {
			return nil, err
		}
	}

	var out []runtime.ContainerSummary
	for _, c := range m.containers {
		s := c.summary
		if runningOnly && !s.Running() {
			continue
		}
		if f.ID != "" && !strings.HasPrefix(s.ID, f.ID) {
			continue
		}
		if f.Name != "" && s.Name != f.Name {
			continue
		}
		if f.Ancestor != "" && s.Image != f.Ancestor {
			continue
		}
		if f.PublishedPort != 0 && !containsPort(s.PublishedPorts, f.PublishedPort) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func containsPort(ports []int, p int) bool {
	for _, x := range ports {
		if x == p {
			return true
		}
	}
	return false
}

func (m *mockEngine) RunDetached(ctx context.Context, spec runtime.RunSpec) (string, error) {
	m.mu.Lock()
	m.runs = append(m.runs, spec)
	for _, c := range m.containers {
		if c.summary.Name == spec.Name {
			m.mu.Unlock()
			return "", fmt.Errorf("conflict: container name %s is already in use", spec.Name)
		}
	}
	m.mu.Unlock()

	var ports []int
	for _, p := range spec.Ports {
		ports = append(ports, p.HostPort)
	}
	c := m.addContainer(spec.Name, spec.Image, "running", ports...)
	if m.runFn != nil {
		m.runFn(c)
	}
	return c.summary.ID, nil
}

func (m *mockEngine) RunProbe(ctx context.Context, spec runtime.RunSpec) (*runtime.ProbeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, spec)
	if m.probeErr != nil {
		return nil, m.probeErr
	}
	return &runtime.ProbeResult{ExitCode: m.probeExit}, nil
}

func (m *mockEngine) Inspect(ctx context.Context, id string) (*runtime.ContainerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	m.inspectDeadlines = append(m.inspectDeadlines, hasDeadline)
	c := m.find(id)
	if c == nil {
		return nil, errors.New("no such container")
	}
	return &runtime.ContainerState{
		Status:   c.summary.State,
		Running:  c.summary.Running(),
		ExitCode: c.exitCode,
	}, nil
}

func (m *mockEngine) Logs(ctx context.Context, id string, opts runtime.LogOptions) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.Follow {
		m.follows = append(m.follows, id)
		return io.NopCloser(strings.NewReader(m.followLogs)), nil
	}

	m.logReads++
	logs := ""
	if c := m.find(id); c != nil {
		logs = c.logs
	}
	if m.logsFn != nil {
		logs = m.logsFn(id, m.logReads)
	}
	if opts.Tail > 0 {
		logs = lastLines(logs, opts.Tail)
	}
	return io.NopCloser(strings.NewReader(logs)), nil
}

func lastLines(s string, n int) string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "")
}

func (m *mockEngine) Stop(ctx context.Context, id string, grace time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops = append(m.stops, id)
	if m.stopErr != nil {
		return m.stopErr
	}
	if c := m.find(id); c != nil {
		c.summary.State = "exited"
	}
	return nil
}

func (m *mockEngine) Kill(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kills = append(m.kills, id)
	if m.killErr != nil {
		return m.killErr
	}
	if c := m.find(id); c != nil {
		c.summary.State = "exited"
		c.exitCode = 137
	}
	return nil
}

func (m *mockEngine) Remove(ctx context.Context, id string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes = append(m.removes, id)
	for i, c := range m.containers {
		if c.summary.ID == id {
			if c.summary.Running() && !force {
				return errors.New("container is running")
			}
			m.containers = append(m.containers[:i], m.containers[i+1:]...)
			return nil
		}
	}
	return errors.New("no such container")
}

func (m *mockEngine) Close() error { return nil }

// mockCommander fakes host binaries. Commands absent from outputs are not
// found on PATH.
type mockCommander struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (m *mockCommander) LookPath(name string) (string, error) {
	if _, ok := m.outputs[name]; ok {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

func (m *mockCommander) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, strings.Join(append([]string{name}, args...), " "))
	return []byte(m.outputs[name]), m.errs[name]
}
