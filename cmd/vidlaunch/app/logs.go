package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// LogsOptions holds options for the logs command
type LogsOptions struct {
	*GlobalOptions

	// Name overrides the configured container name
	Name string

	// Follow continues streaming logs in real-time
	Follow bool

	// Tail limits output to the last lines; 0 shows everything
	Tail int
}

// NewLogsCommand creates the logs command.
//
// Usage:
//
//	vidlaunch logs [-f] [--tail N]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for viewing logs
func NewLogsCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &LogsOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View logs from the web UI container",
		Long: `View logs from the web UI container.

By default, shows existing logs and exits. Use -f/--follow to stream logs in
real-time. Stopping the stream with Ctrl+C does not stop the container.`,
		Example: `  # Show the last 100 lines
  vidlaunch logs --tail 100

  # Follow logs in real-time (press Ctrl+C to stop)
  vidlaunch logs -f`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "",
		"container name (default: from configuration)")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false,
		"follow log output (stream logs in real-time)")
	cmd.Flags().IntVarP(&opts.Tail, "tail", "n", 0,
		"number of lines to show from the end (0 for all)")

	return cmd
}

// runLogs executes the logs command logic
func runLogs(cmd *cobra.Command, opts *LogsOptions) error {
	cfg, err := loadConfig(cmd, opts.GlobalOptions)
	if err != nil {
		return err
	}
	name := opts.Name
	if name == "" {
		name = cfg.Launch.ContainerName
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := cmd.Context()
	containers, err := engine.ListContainers(ctx, runtime.ContainerFilter{Name: name}, false)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return fmt.Errorf("no container named %s", name)
	}

	stream, err := engine.Logs(ctx, containers[0].ID, runtime.LogOptions{
		Follow: opts.Follow,
		Tail:   opts.Tail,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	if _, err := io.Copy(opts.Out, stream); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to stream logs: %w", err)
	}
	return nil
}
