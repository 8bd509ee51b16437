package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsingmao/vidlaunch/internal/launcher"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// StopOptions holds options for the stop command
type StopOptions struct {
	*GlobalOptions

	// Name overrides the configured container name
	Name string

	// Remove deletes the container after stopping it
	Remove bool
}

// NewStopCommand creates the stop command.
//
// The stop command stops the web UI container, killing it if it does not
// stop within the configured grace period.
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for stopping the container
func NewStopCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &StopOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the web UI container",
		Example: `  # Stop the container
  vidlaunch stop

  # Stop and remove it
  vidlaunch stop --rm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "",
		"container name (default: from configuration)")
	cmd.Flags().BoolVar(&opts.Remove, "rm", false,
		"remove the container after stopping it")

	return cmd
}

// runStop executes the stop command logic
func runStop(cmd *cobra.Command, opts *StopOptions) error {
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

	containers, err := engine.ListContainers(cmd.Context(), runtime.ContainerFilter{Name: name}, false)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		fmt.Fprintf(opts.Out, "No container named %s\n", name)
		return nil
	}
	c := containers[0]

	if c.Running() {
		tracker := launcher.NewTracker(engine, cfg.Runtime.Command, cfg.Runtime.StopTimeout, opts.Out)
		tracker.Track(launcher.Handle{ID: c.ID, Name: c.Name})
		if err := tracker.Cleanup(); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(opts.Out, "Container %s is not running (%s)\n", c.Name, c.Status)
	}

	if opts.Remove {
		// The stop may have consumed the command context on Ctrl+C.
		if err := engine.Remove(context.Background(), c.ID, true); err != nil {
			return err
		}
		fmt.Fprintf(opts.Out, "✓ Removed container %s\n", c.Name)
	}
	return nil
}
