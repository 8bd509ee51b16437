// Package config provides configuration management for vidlaunch.
//
// This package handles all configuration-related functionality including:
//   - Launch configuration (image, container name, ports, output directory)
//   - Image build settings (build context, Dockerfile name)
//   - GPU probing settings (probe image and commands)
//   - Readiness detection and runtime behaviour (timeouts, polling, stop grace)
//
// Values are resolved from built-in defaults, an optional YAML file,
// VIDLAUNCH_* environment variables and command-line flags, in increasing
// order of precedence. See Loader.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultImage is the local image tag the launcher runs (and builds when absent).
	DefaultImage = "vidgen-webui:latest"

	// DefaultContainerName is the name given to the launched container.
	// At most one container with this name may exist at a time.
	DefaultContainerName = "vidgen-webui"

	// DefaultHostPort is the host port the web UI is published on.
	DefaultHostPort = 7860

	// DefaultContainerPort is the port the web UI binds inside the container.
	DefaultContainerPort = 7860

	// DefaultOutputDir is the host directory that receives generated videos.
	// Relative paths are resolved against the working directory.
	DefaultOutputDir = "outputs"

	// DefaultOutputMountPath is where the output directory appears in the container.
	DefaultOutputMountPath = "/app/outputs"

	// DefaultBuildContext is the directory holding the image build definition.
	DefaultBuildContext = "."

	// DefaultDockerfile is the build definition file name inside the build context.
	DefaultDockerfile = "Dockerfile"

	// DefaultRuntimeCommand is the container runtime CLI that must be on PATH.
	DefaultRuntimeCommand = "docker"

	// DefaultProbeImage is the small CUDA base image used for the functional GPU check.
	DefaultProbeImage = "nvidia/cuda:12.4.1-base-ubuntu22.04"

	// DefaultReadinessMarker is printed by the web UI once its server has bound.
	DefaultReadinessMarker = "Running on local URL"

	// DefaultReadinessMode selects log-marker readiness detection.
	DefaultReadinessMode = ReadinessModeLog

	// DefaultReadinessTimeout bounds the readiness wait. First runs download
	// model assets, so this is generous.
	DefaultReadinessTimeout = 5 * time.Minute

	// DefaultPollInterval is the readiness polling period.
	DefaultPollInterval = time.Second

	// DefaultFailureLogLines is how many log lines are kept when a container
	// exits before becoming ready.
	DefaultFailureLogLines = 50

	// DefaultAttachTailLines is how many past log lines are replayed when
	// attaching to the live log stream.
	DefaultAttachTailLines = 100

	// DefaultStopTimeout is the grace period given to the container on stop
	// before the runtime kills it.
	DefaultStopTimeout = 10 * time.Second

	// DefaultMaxPortScan bounds the upward search for a free host port.
	DefaultMaxPortScan = 1000

	// DefaultConfigDirName is the per-user configuration directory.
	DefaultConfigDirName = ".vidlaunch"

	// DefaultConfigFileName is the configuration file base name (without extension).
	DefaultConfigFileName = "vidlaunch"

	// EnvPrefix prefixes every environment override, e.g. VIDLAUNCH_LAUNCH_HOST_PORT.
	EnvPrefix = "VIDLAUNCH"
)

// Readiness detection modes.
const (
	ReadinessModeLog  = "log"
	ReadinessModeHTTP = "http"
)

// Config represents the complete launcher configuration.
type Config struct {
	// Launch is the launch configuration threaded through every phase.
	Launch Launch `mapstructure:"launch" yaml:"launch"`

	// Build controls how a missing image is built.
	Build BuildConfig `mapstructure:"build" yaml:"build"`

	// GPU controls the driver query and the functional GPU check.
	GPU GPUConfig `mapstructure:"gpu" yaml:"gpu"`

	// Readiness controls the readiness monitor.
	Readiness ReadinessConfig `mapstructure:"readiness" yaml:"readiness"`

	// Runtime holds container runtime settings.
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
}

// Launch is the configuration of the single workload container.
//
// Phases receive it by value and return an updated copy: the capability
// prober may clear UseGPU and the conflict reconciler may move HostPort.
// Once handed to the launch controller it is not changed again.
type Launch struct {
	// Image is the image reference to run, e.g. "vidgen-webui:latest".
	Image string `mapstructure:"image" yaml:"image"`

	// ContainerName is the fixed container name.
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`

	// HostPort is the host side of the port mapping.
	HostPort int `mapstructure:"host_port" yaml:"host_port"`

	// ContainerPort is the port the web UI listens on inside the container.
	ContainerPort int `mapstructure:"container_port" yaml:"container_port"`

	// OutputDir is the host directory bind-mounted into the container.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	// OutputMountPath is the in-container path of the output directory.
	OutputMountPath string `mapstructure:"output_mount_path" yaml:"output_mount_path"`

	// UseGPU requests GPU access for the container.
	UseGPU bool `mapstructure:"use_gpu" yaml:"use_gpu"`

	// Env is always passed to the container, in KEY=VALUE form.
	Env []string `mapstructure:"env" yaml:"env"`

	// GPUEnv is passed only when UseGPU is set, in KEY=VALUE form.
	GPUEnv []string `mapstructure:"gpu_env" yaml:"gpu_env"`
}

// BuildConfig describes where the image build definition lives.
type BuildConfig struct {
	// Context is a local directory or a git URL.
	Context string `mapstructure:"context" yaml:"context"`

	// Dockerfile is the build definition file name relative to Context.
	Dockerfile string `mapstructure:"dockerfile" yaml:"dockerfile"`

	// Rebuild forces a build even when the image exists.
	Rebuild bool `mapstructure:"rebuild" yaml:"rebuild"`
}

// GPUConfig controls GPU capability probing.
type GPUConfig struct {
	// QueryCommand is the host driver query, argv form.
	QueryCommand []string `mapstructure:"query_command" yaml:"query_command"`

	// ProbeImage is the image used for the functional check.
	ProbeImage string `mapstructure:"probe_image" yaml:"probe_image"`

	// ProbeCommand runs inside the probe container with GPU access requested.
	ProbeCommand []string `mapstructure:"probe_command" yaml:"probe_command"`
}

// ReadinessConfig controls how the launcher decides the web UI is up.
type ReadinessConfig struct {
	// Mode is "log" (scan logs for Marker) or "http" (probe the published URL).
	Mode string `mapstructure:"mode" yaml:"mode"`

	// Marker is the log substring that signals readiness in log mode.
	Marker string `mapstructure:"marker" yaml:"marker"`

	// HTTPPath is requested on the published URL in http mode.
	HTTPPath string `mapstructure:"http_path" yaml:"http_path"`

	// Timeout bounds the readiness wait.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// PollInterval is the polling period.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// FailureLogLines is the number of log lines captured on early exit.
	FailureLogLines int `mapstructure:"failure_log_lines" yaml:"failure_log_lines"`

	// AttachTailLines is the number of past lines replayed when tailing.
	AttachTailLines int `mapstructure:"attach_tail_lines" yaml:"attach_tail_lines"`
}

// RuntimeConfig holds container runtime settings.
type RuntimeConfig struct {
	// Command is the runtime CLI looked up on PATH.
	Command string `mapstructure:"command" yaml:"command"`

	// StopTimeout is the graceful stop period before a kill.
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`

	// MaxPortScan bounds the host port fallback search.
	MaxPortScan int `mapstructure:"max_port_scan" yaml:"max_port_scan"`

	// Detach returns after the readiness outcome instead of tailing logs.
	Detach bool `mapstructure:"detach" yaml:"detach"`
}

// NewDefaultConfig creates a configuration populated with the built-in defaults.
//
// Example:
//
//	cfg := config.NewDefaultConfig()
//	fmt.Println(cfg.Launch.URL()) // http://localhost:7860
func NewDefaultConfig() *Config {
	return &Config{
		Launch: Launch{
			Image:           DefaultImage,
			ContainerName:   DefaultContainerName,
			HostPort:        DefaultHostPort,
			ContainerPort:   DefaultContainerPort,
			OutputDir:       DefaultOutputDir,
			OutputMountPath: DefaultOutputMountPath,
			UseGPU:          true,
			Env:             DefaultEnv(DefaultContainerPort),
			GPUEnv:          DefaultGPUEnv(),
		},
		Build: BuildConfig{
			Context:    DefaultBuildContext,
			Dockerfile: DefaultDockerfile,
		},
		GPU: GPUConfig{
			QueryCommand: []string{"nvidia-smi", "--query-gpu=name,driver_version,memory.total", "--format=csv,noheader"},
			ProbeImage:   DefaultProbeImage,
			ProbeCommand: []string{"nvidia-smi"},
		},
		Readiness: ReadinessConfig{
			Mode:            DefaultReadinessMode,
			Marker:          DefaultReadinessMarker,
			HTTPPath:        "/",
			Timeout:         DefaultReadinessTimeout,
			PollInterval:    DefaultPollInterval,
			FailureLogLines: DefaultFailureLogLines,
			AttachTailLines: DefaultAttachTailLines,
		},
		Runtime: RuntimeConfig{
			Command:     DefaultRuntimeCommand,
			StopTimeout: DefaultStopTimeout,
			MaxPortScan: DefaultMaxPortScan,
		},
	}
}

// DefaultEnv returns the environment always passed to the web UI.
func DefaultEnv(containerPort int) []string {
	return []string{
		"GRADIO_SERVER_NAME=0.0.0.0",
		fmt.Sprintf("GRADIO_SERVER_PORT=%d", containerPort),
		"PYTHONUNBUFFERED=1",
	}
}

// DefaultGPUEnv returns the NVIDIA container runtime variables set when the
// container is granted GPU access.
func DefaultGPUEnv() []string {
	return []string{
		"NVIDIA_VISIBLE_DEVICES=all",
		"NVIDIA_DRIVER_CAPABILITIES=compute,utility,video",
	}
}

// URL returns the address the web UI is reachable at on this host.
func (l Launch) URL() string {
	return fmt.Sprintf("http://localhost:%d", l.HostPort)
}

// RunEnv returns the environment for the run request: Env, plus GPUEnv when
// UseGPU is set. Later entries override earlier ones with the same key.
func (l Launch) RunEnv() []string {
	entries := append([]string{}, l.Env...)
	if l.UseGPU {
		entries = append(entries, l.GPUEnv...)
	}

	seen := make(map[string]int, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		key, _, _ := strings.Cut(e, "=")
		if i, ok := seen[key]; ok {
			out[i] = e
			continue
		}
		seen[key] = len(out)
		out = append(out, e)
	}
	return out
}

// Validate checks the configuration for values the launcher cannot work with.
func (c *Config) Validate() error {
	if c.Launch.Image == "" {
		return fmt.Errorf("launch.image cannot be empty")
	}
	if c.Launch.ContainerName == "" {
		return fmt.Errorf("launch.container_name cannot be empty")
	}
	if err := validatePort("launch.host_port", c.Launch.HostPort); err != nil {
		return err
	}
	if err := validatePort("launch.container_port", c.Launch.ContainerPort); err != nil {
		return err
	}
	if c.Launch.OutputDir == "" {
		return fmt.Errorf("launch.output_dir cannot be empty")
	}
	if !strings.HasPrefix(c.Launch.OutputMountPath, "/") {
		return fmt.Errorf("launch.output_mount_path must be absolute, got '%s'", c.Launch.OutputMountPath)
	}
	for i, e := range c.Launch.Env {
		if err := validateEnvEntry(e); err != nil {
			return fmt.Errorf("launch.env[%d]: %w", i, err)
		}
	}
	for i, e := range c.Launch.GPUEnv {
		if err := validateEnvEntry(e); err != nil {
			return fmt.Errorf("launch.gpu_env[%d]: %w", i, err)
		}
	}
	if c.Build.Dockerfile == "" {
		return fmt.Errorf("build.dockerfile cannot be empty")
	}

	switch c.Readiness.Mode {
	case ReadinessModeLog:
		if c.Readiness.Marker == "" {
			return fmt.Errorf("readiness.marker cannot be empty in log mode")
		}
	case ReadinessModeHTTP:
	default:
		return fmt.Errorf("readiness.mode must be '%s' or '%s', got '%s'",
			ReadinessModeLog, ReadinessModeHTTP, c.Readiness.Mode)
	}
	if c.Readiness.Timeout <= 0 {
		return fmt.Errorf("readiness.timeout must be positive")
	}
	if c.Readiness.PollInterval <= 0 {
		return fmt.Errorf("readiness.poll_interval must be positive")
	}
	if c.Runtime.Command == "" {
		return fmt.Errorf("runtime.command cannot be empty")
	}
	if c.Runtime.StopTimeout <= 0 {
		return fmt.Errorf("runtime.stop_timeout must be positive")
	}
	if c.Runtime.MaxPortScan <= 0 {
		return fmt.Errorf("runtime.max_port_scan must be positive")
	}
	return nil
}

// ResolvePaths makes the output directory absolute, as bind mounts require.
func (c *Config) ResolvePaths() error {
	abs, err := filepath.Abs(c.Launch.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory %s: %w", c.Launch.OutputDir, err)
	}
	c.Launch.OutputDir = abs
	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// validateEnvEntry checks the KEY=VALUE form. The value may be empty.
func validateEnvEntry(entry string) error {
	key, _, ok := strings.Cut(entry, "=")
	if !ok {
		return fmt.Errorf("invalid format: expected 'KEY=VALUE', got '%s'", entry)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("variable name cannot be empty")
	}
	return nil
}
