package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/creack/pty"

	"github.com/tsingmao/vidlaunch/internal/logger"
)

// PullImage pulls ref with the docker CLI.
//
// The CLI runs under a pseudo-terminal so it renders its native progress
// bars, which are copied to out unchanged. Cancelling ctx kills the pull.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ref: Image reference to pull
//   - out: Destination for progress output (may be nil)
//
// Returns:
//   - nil on success
//   - Error if the CLI cannot be started, the pull fails or ctx is cancelled
func (e *DockerEngine) PullImage(ctx context.Context, ref string, out io.Writer) error {
	if ref == "" {
		return fmt.Errorf("image name cannot be empty")
	}
	if out == nil {
		out = io.Discard
	}

	logger.Info("Pulling Docker image: %s", ref)

	cmd := exec.CommandContext(ctx, e.command, "pull", ref)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start docker pull with pty: %w", err)
	}
	defer ptmx.Close()

	// Reading the master side returns EIO once the child exits and the
	// slave side is closed; that is the normal end of output.
	if _, err := io.Copy(out, ptmx); err != nil && !isPTYClosed(err) {
		logger.Debug("docker pull output copy ended: %v", err)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("pull operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to pull image: %w", err)
	}

	logger.Info("Successfully pulled Docker image: %s", ref)
	return nil
}

func isPTYClosed(err error) bool {
	return errors.Is(err, syscall.EIO) || errors.Is(err, io.EOF)
}
