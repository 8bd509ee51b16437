package app

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/launcher"
	"github.com/tsingmao/vidlaunch/internal/logger"
)

// UpOptions holds options for the up command
type UpOptions struct {
	*GlobalOptions

	Image        string
	Name         string
	Port         int
	OutputDir    string
	BuildContext string
	Dockerfile   string
	CPU          bool
	Rebuild      bool
	Timeout      time.Duration
	Detach       bool
	Readiness    string
}

// NewUpCommand creates the up command.
//
// The up command runs the whole launch sequence: environment checks, image
// build, conflict resolution, launch and readiness monitoring, then follows
// the container logs until Ctrl+C, which stops the container.
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for launching the web UI
func NewUpCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &UpOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Build, start and monitor the web UI container",
		Long: `Build, start and monitor the web UI container.

vidlaunch checks Docker and GPU access, builds the image if it does not exist,
asks what to do about an existing container with the same name or a container
holding the port, starts the web UI and waits until it is ready. It then
follows the container logs; press Ctrl+C to stop the container.`,
		Example: `  # Start with defaults (port 7860, ./outputs)
  vidlaunch up

  # Use another port and output directory
  vidlaunch up --port 8080 --output-dir ~/videos

  # Run without GPU and answer every question with yes
  vidlaunch up --cpu -y

  # Rebuild the image from a git repository
  vidlaunch up --rebuild --build-context https://github.com/example/vidgen-webui.git#main`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd, opts)
		},
	}

	addUpFlags(cmd, opts)

	return cmd
}

func addUpFlags(cmd *cobra.Command, opts *UpOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.Image, "image", config.DefaultImage,
		"image to run, built when missing")
	f.StringVar(&opts.Name, "name", config.DefaultContainerName,
		"container name")
	f.IntVarP(&opts.Port, "port", "p", config.DefaultHostPort,
		"host port for the web UI")
	f.StringVarP(&opts.OutputDir, "output-dir", "o", config.DefaultOutputDir,
		"host directory for generated videos")
	f.StringVar(&opts.BuildContext, "build-context", config.DefaultBuildContext,
		"build context directory or git URL (url#ref)")
	f.StringVar(&opts.Dockerfile, "dockerfile", config.DefaultDockerfile,
		"build definition file inside the build context")
	f.BoolVar(&opts.CPU, "cpu", false,
		"run without GPU, skipping the GPU checks")
	f.BoolVar(&opts.Rebuild, "rebuild", false,
		"rebuild the image even if it exists")
	f.DurationVar(&opts.Timeout, "timeout", config.DefaultReadinessTimeout,
		"maximum time to wait for the web UI")
	f.BoolVarP(&opts.Detach, "detach", "d", false,
		"return once the web UI is ready instead of following logs")
	f.StringVar(&opts.Readiness, "readiness", config.DefaultReadinessMode,
		"readiness detection: log or http")
}

// runUp executes the up command logic
func runUp(cmd *cobra.Command, opts *UpOptions) error {
	cfg, err := loadConfig(cmd, opts.GlobalOptions)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	l := launcher.New(cfg, engine, newPrompter(opts.GlobalOptions),
		launcher.WithOutput(opts.Out))
	logger.Debug("Session %s", l.Session())

	return l.Run(cmd.Context())
}
