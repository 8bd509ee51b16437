// Package app provides the command-line interface of vidlaunch.
//
// Commands are built with cobra, one constructor per command, each taking
// the shared GlobalOptions. Running vidlaunch without a subcommand is the
// same as running "vidlaunch up".
package app

import (
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/launcher"
	"github.com/tsingmao/vidlaunch/internal/logger"
	"github.com/tsingmao/vidlaunch/internal/prompt"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

const (
	// cliName is the name of the CLI application
	cliName = "vidlaunch"

	// cliDescription is the short description shown in help text
	cliDescription = "vidlaunch - run the video generation web UI in a GPU container"
)

// GlobalOptions holds options that are common to all commands
type GlobalOptions struct {
	// ConfigFile is an explicit configuration file path
	ConfigFile string

	// Verbose enables debug logging
	Verbose bool

	// LogLevel sets the diagnostic log level explicitly; it wins over Verbose
	LogLevel string

	// Yes answers every prompt with yes
	Yes bool

	// NonInteractive takes every prompt's default answer
	NonInteractive bool

	// Out receives command output; defaults to stdout
	Out io.Writer
}

// NewVidlaunchCommand creates the root vidlaunch command with all subcommands.
//
// The root command accepts the flags of "up" and runs it when no subcommand
// is given.
//
// Returns:
//   - A configured cobra.Command ready for execution
//
// Example:
//
//	cmd := NewVidlaunchCommand()
//	if err := cmd.Execute(); err != nil {
//	    os.Exit(1)
//	}
func NewVidlaunchCommand() *cobra.Command {
	opts := &GlobalOptions{Out: os.Stdout}
	upOpts := &UpOptions{GlobalOptions: opts}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: cliDescription,
		Long: `vidlaunch builds, starts and monitors the video generation web UI inside a
Docker container.

It checks that Docker and the GPU are usable, builds the image when it is
missing, resolves container name and port conflicts, starts the container and
waits until the web UI is ready. The generated videos are written to the
output directory on the host.

Running vidlaunch without a command is the same as 'vidlaunch up'.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.SetVerbose(opts.Verbose)
			if opts.LogLevel != "" {
				if err := logger.SetLevel(opts.LogLevel); err != nil {
					return fmt.Errorf("invalid --log-level %q: %w", opts.LogLevel, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd, upOpts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "",
		"config file (default: ./vidlaunch.yaml or ~/.vidlaunch/vidlaunch.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "",
		"diagnostic log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&opts.Yes, "yes", "y", false,
		"answer yes to every question")
	cmd.PersistentFlags().BoolVar(&opts.NonInteractive, "non-interactive", false,
		"never ask; take the default (non-destructive) answer")

	addUpFlags(cmd, upOpts)

	cmd.AddCommand(
		NewUpCommand(opts),
		NewStatusCommand(opts),
		NewLogsCommand(opts),
		NewStopCommand(opts),
		NewConfigCommand(opts),
		NewVersionCommand(opts),
	)

	return cmd
}

// upFlagKeys maps up flags to configuration keys.
var upFlagKeys = map[string]string{
	"image":         "launch.image",
	"name":          "launch.container_name",
	"port":          "launch.host_port",
	"output-dir":    "launch.output_dir",
	"build-context": "build.context",
	"dockerfile":    "build.dockerfile",
	"rebuild":       "build.rebuild",
	"timeout":       "readiness.timeout",
	"readiness":     "readiness.mode",
	"detach":        "runtime.detach",
}

// loadConfig resolves the configuration for cmd, letting the flags in
// upFlagKeys that cmd defines override the file and environment.
func loadConfig(cmd *cobra.Command, opts *GlobalOptions) (*config.Config, error) {
	loader := config.NewLoader()

	for name, key := range upFlagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := loader.BindFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	if f := cmd.Flags().Lookup("cpu"); f != nil && f.Changed && f.Value.String() == "true" {
		loader.Set("launch.use_gpu", false)
	}

	cfg, err := loader.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug("Using config file %s", used)
	}
	return cfg, nil
}

// newEngine connects to the container runtime.
func newEngine(cfg *config.Config) (*runtime.DockerEngine, error) {
	return runtime.NewDockerEngine(cfg.Runtime.Command)
}

// newPrompter chooses how questions are answered: --yes answers yes,
// --non-interactive or a non-terminal stdin takes defaults, otherwise the
// operator is asked.
func newPrompter(opts *GlobalOptions) prompt.Prompter {
	switch {
	case opts.Yes:
		return prompt.Auto{Yes: true, Out: opts.Out}
	case opts.NonInteractive || !readline.IsTerminal(int(os.Stdin.Fd())):
		return prompt.Auto{Out: opts.Out}
	default:
		return prompt.NewTerminal()
	}
}

// ExitCode prints err with its remediation hint and returns the process
// exit status: 0 for nil, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if hint := launcher.HintOf(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	return 1
}
