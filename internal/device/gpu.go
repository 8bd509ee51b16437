// Package device detects GPU capability on the host.
//
// Detection is two-fold: the NVIDIA driver query (nvidia-smi) tells whether
// a driver is installed, and the hosted-Linux check tells whether we run in a
// Linux guest under another OS (WSL), where the container engine's GPU
// support is configured separately from the guest driver.
package device

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tsingmao/vidlaunch/internal/logger"
)

// GPU is one device reported by the driver query.
type GPU struct {
	// Index is the position in the driver's listing.
	Index int `json:"index"`

	// Name is the marketing name, e.g. "NVIDIA GeForce RTX 4090".
	Name string `json:"name"`

	// DriverVersion is the installed driver version, e.g. "550.54.14".
	DriverVersion string `json:"driver_version"`

	// Memory is the total memory as reported, e.g. "24564 MiB".
	Memory string `json:"memory"`
}

// QueryGPUs runs the driver query command (argv form) and parses its CSV
// output. A failing command, or one that lists no GPUs, means no usable
// driver.
func QueryGPUs(ctx context.Context, cmdr Commander, argv []string) ([]GPU, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("GPU query command is empty")
	}

	if _, err := cmdr.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("%s not found: %w", argv[0], err)
	}

	out, err := cmdr.Output(ctx, argv[0], argv[1:]...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", argv[0], err)
	}

	gpus := ParseQueryOutput(string(out))
	if len(gpus) == 0 {
		return nil, fmt.Errorf("%s reported no GPUs", argv[0])
	}

	for _, g := range gpus {
		logger.Debug("Detected GPU %d: %s (driver %s, %s)", g.Index, g.Name, g.DriverVersion, g.Memory)
	}
	return gpus, nil
}

// ParseQueryOutput parses "name, driver_version, memory.total" CSV lines as
// printed by nvidia-smi --format=csv,noheader. Lines with fewer fields keep
// the missing ones empty; blank lines are skipped.
func ParseQueryOutput(out string) []GPU {
	var gpus []GPU
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		g := GPU{Index: len(gpus), Name: fields[0]}
		if len(fields) > 1 {
			g.DriverVersion = fields[1]
		}
		if len(fields) > 2 {
			g.Memory = fields[2]
		}
		gpus = append(gpus, g)
	}
	return gpus
}

// Summary formats a GPU list for display, e.g. "1x NVIDIA RTX 4090 (driver 550.54)".
func Summary(gpus []GPU) string {
	if len(gpus) == 0 {
		return "no GPUs"
	}

	counts := make(map[string]int)
	var order []string
	for _, g := range gpus {
		if counts[g.Name] == 0 {
			order = append(order, g.Name)
		}
		counts[g.Name]++
	}

	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, fmt.Sprintf("%dx %s", counts[name], name))
	}

	summary := strings.Join(parts, ", ")
	if gpus[0].DriverVersion != "" {
		summary += fmt.Sprintf(" (driver %s)", gpus[0].DriverVersion)
	}
	return summary
}

// DetectHostedLinux reports whether the process runs in a Linux guest under
// Windows (WSL).
func DetectHostedLinux() bool {
	if os.Getenv("WSL_DISTRO_NAME") != "" {
		return true
	}
	for _, path := range []string{"/proc/sys/kernel/osrelease", "/proc/version"} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if IsHostedKernel(string(data)) {
			return true
		}
	}
	return false
}

// IsHostedKernel checks a kernel release/version string for the WSL markers.
func IsHostedKernel(release string) bool {
	r := strings.ToLower(release)
	return strings.Contains(r, "microsoft") || strings.Contains(r, "wsl")
}
