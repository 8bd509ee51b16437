package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tsingmao/vidlaunch/internal/logger"
)

// Loader resolves a Config from defaults, a YAML file, VIDLAUNCH_* environment
// variables and bound command-line flags.
//
// Precedence, highest first: flags that were set explicitly, environment,
// config file, built-in defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader seeded with NewDefaultConfig values.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v, NewDefaultConfig())

	// launch.host_port -> VIDLAUNCH_LAUNCH_HOST_PORT
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// BindFlag binds a command-line flag to a configuration key.
// A flag only overrides lower layers when the user set it.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag to bind for key %s", key)
	}
	if err := l.v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("failed to bind flag --%s: %w", flag.Name, err)
	}
	return nil
}

// Set forces a value, overriding every other layer.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// ConfigFileUsed returns the path of the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load reads the configuration.
//
// When path is empty the loader looks for vidlaunch.yaml in the working
// directory and then in ~/.vidlaunch; not finding one is not an error. An
// explicit path that cannot be read is an error.
//
// The returned configuration is validated and its output directory is made
// absolute.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName(DefaultConfigFileName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, DefaultConfigDirName))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logger.Debug("No config file found, using defaults")
	} else {
		logger.Debug("Loaded config file: %s", l.v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so that environment variables and
// Unmarshal see the full key set.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("launch.image", d.Launch.Image)
	v.SetDefault("launch.container_name", d.Launch.ContainerName)
	v.SetDefault("launch.host_port", d.Launch.HostPort)
	v.SetDefault("launch.container_port", d.Launch.ContainerPort)
	v.SetDefault("launch.output_dir", d.Launch.OutputDir)
	v.SetDefault("launch.output_mount_path", d.Launch.OutputMountPath)
	v.SetDefault("launch.use_gpu", d.Launch.UseGPU)
	v.SetDefault("launch.env", d.Launch.Env)
	v.SetDefault("launch.gpu_env", d.Launch.GPUEnv)

	v.SetDefault("build.context", d.Build.Context)
	v.SetDefault("build.dockerfile", d.Build.Dockerfile)
	v.SetDefault("build.rebuild", d.Build.Rebuild)

	v.SetDefault("gpu.query_command", d.GPU.QueryCommand)
	v.SetDefault("gpu.probe_image", d.GPU.ProbeImage)
	v.SetDefault("gpu.probe_command", d.GPU.ProbeCommand)

	v.SetDefault("readiness.mode", d.Readiness.Mode)
	v.SetDefault("readiness.marker", d.Readiness.Marker)
	v.SetDefault("readiness.http_path", d.Readiness.HTTPPath)
	v.SetDefault("readiness.timeout", d.Readiness.Timeout)
	v.SetDefault("readiness.poll_interval", d.Readiness.PollInterval)
	v.SetDefault("readiness.failure_log_lines", d.Readiness.FailureLogLines)
	v.SetDefault("readiness.attach_tail_lines", d.Readiness.AttachTailLines)

	v.SetDefault("runtime.command", d.Runtime.Command)
	v.SetDefault("runtime.stop_timeout", d.Runtime.StopTimeout)
	v.SetDefault("runtime.max_port_scan", d.Runtime.MaxPortScan)
	v.SetDefault("runtime.detach", d.Runtime.Detach)
}
