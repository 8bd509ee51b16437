package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command, which prints the effective
// configuration after merging defaults, the config file, VIDLAUNCH_*
// environment variables and flags.
func NewConfigCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the effective configuration as YAML.

Values come from, in increasing priority: built-in defaults, the config file
(./vidlaunch.yaml, ~/.vidlaunch/vidlaunch.yaml or --config), VIDLAUNCH_*
environment variables such as VIDLAUNCH_LAUNCH_HOST_PORT, and flags. The output
can be saved as a starting point for a config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, globalOpts)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(globalOpts.Out, string(data))
			return nil
		},
	}
}
