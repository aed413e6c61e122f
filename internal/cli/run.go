package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/KafClaw/robotd/internal/adapters/shell"
	"github.com/KafClaw/robotd/internal/handlers/authz"
	"github.com/KafClaw/robotd/internal/logging"
	"github.com/KafClaw/robotd/internal/plugin"
	"github.com/KafClaw/robotd/internal/robot"
	"github.com/spf13/cobra"
)

var (
	runPerRobotConfig bool
	runLogLevel       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load the config file and run the configured robots",
	RunE:  runRobots,
}

var runSignalNotify = signal.NotifyContext

// pluginRegistry returns a registry holding everything registered in
// plugin.Default plus the built-in shell adapter on in/out and the
// authorization handler.
func pluginRegistry(in io.Reader, out io.Writer) *plugin.Registry {
	r := plugin.NewRegistry()
	for key, at := range plugin.Default.Adapters() {
		r.RegisterAdapter(key, at)
	}
	for _, ht := range plugin.Default.Handlers() {
		r.RegisterHandler(ht)
	}
	if _, ok := r.Adapter(shell.Key); !ok {
		r.RegisterAdapter(shell.Key, shell.Type(in, out))
	}
	authz.Register(r)
	return r
}

func runRobots(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printHeader(out, "🤖 robotd")

	ctx, stop := runSignalNotify(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(runLogLevel, cmd.ErrOrStderr())
	opts := []robot.Option{
		robot.WithRegistry(pluginRegistry(cmd.InOrStdin(), out)),
		robot.WithGlobals(globals()),
		robot.WithPerRobotConfig(runPerRobotConfig),
		robot.WithLogger(logger),
	}
	// Without the flag each robot logs at its own robot.logLevel.
	if cmd.Flags().Changed("log-level") {
		opts = append(opts, robot.WithLogLevel(runLogLevel))
	}
	m := robot.NewManager(opts...)
	defer m.Close()

	if err := m.Run(ctx, configPath); err != nil {
		logger.Error("robotd stopped", "error", err)
		return err
	}
	if ctx.Err() != nil && cmd.Context().Err() == nil {
		fmt.Fprintln(out, "Shutting down...")
	}
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runPerRobotConfig, "per-robot-config", false, "Configure each robots[] entry on its own config instead of the shared default")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "info", "Log level for every robot, overriding robot.logLevel (debug, info, warn, error)")
}
