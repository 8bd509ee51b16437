package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAML renders the configuration in the same layout the config file uses,
// with durations written as strings ("5m0s").
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return data, nil
}

// MarshalYAML writes durations in time.Duration string form.
func (r ReadinessConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Mode            string `yaml:"mode"`
		Marker          string `yaml:"marker"`
		HTTPPath        string `yaml:"http_path"`
		Timeout         string `yaml:"timeout"`
		PollInterval    string `yaml:"poll_interval"`
		FailureLogLines int    `yaml:"failure_log_lines"`
		AttachTailLines int    `yaml:"attach_tail_lines"`
	}{
		Mode:            r.Mode,
		Marker:          r.Marker,
		HTTPPath:        r.HTTPPath,
		Timeout:         r.Timeout.String(),
		PollInterval:    r.PollInterval.String(),
		FailureLogLines: r.FailureLogLines,
		AttachTailLines: r.AttachTailLines,
	}, nil
}

// MarshalYAML writes durations in time.Duration string form.
func (r RuntimeConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Command     string `yaml:"command"`
		StopTimeout string `yaml:"stop_timeout"`
		MaxPortScan int    `yaml:"max_port_scan"`
		Detach      bool   `yaml:"detach"`
	}{
		Command:     r.Command,
		StopTimeout: r.StopTimeout.String(),
		MaxPortScan: r.MaxPortScan,
		Detach:      r.Detach,
	}, nil
}
