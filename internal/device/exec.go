package device

import (
	"context"
	"os/exec"
)

// Commander runs host commands. It exists so probing can be exercised
// without the real binaries.
type Commander interface {
	// LookPath reports the resolved path of an executable.
	LookPath(name string) (string, error)

	// Output runs the command and returns its combined output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommander runs commands with os/exec.
type ExecCommander struct{}

// LookPath implements Commander.
func (ExecCommander) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Output implements Commander.
func (ExecCommander) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
