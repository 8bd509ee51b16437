// Command vidlaunch builds, launches and monitors the video-generation web UI
// container.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tsingmao/vidlaunch/cmd/vidlaunch/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := app.NewVidlaunchCommand()
	err := cmd.ExecuteContext(ctx)
	stop()

	os.Exit(app.ExitCode(err))
}
