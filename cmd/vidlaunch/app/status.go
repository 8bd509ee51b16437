package app

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// StatusOptions holds options for the status command
type StatusOptions struct {
	*GlobalOptions

	// Name overrides the configured container name
	Name string
}

// NewStatusCommand creates the status command.
//
// The status command shows the web UI container, its state and where the
// web UI is published.
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for showing container status
func NewStatusCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &StatusOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the web UI container status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "",
		"container name (default: from configuration)")

	return cmd
}

// runStatus executes the status command logic
func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
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
		fmt.Fprintln(opts.Out)
		fmt.Fprintln(opts.Out, "Start the web UI with: vidlaunch up")
		return nil
	}

	w := tabwriter.NewWriter(opts.Out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tIMAGE\tSTATUS\tURL")
	for _, c := range containers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Name,
			runtime.ShortID(c.ID),
			c.Image,
			c.Status,
			urls(c))
	}
	w.Flush()

	fmt.Fprintf(opts.Out, "\nOutputs: %s\n", cfg.Launch.OutputDir)
	return nil
}

func urls(c runtime.ContainerSummary) string {
	if !c.Running() || len(c.PublishedPorts) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(c.PublishedPorts))
	for _, p := range c.PublishedPorts {
		parts = append(parts, "http://localhost:"+strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}
