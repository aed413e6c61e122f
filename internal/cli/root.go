package cli

import (
	"fmt"
	"io"

	"github.com/KafClaw/robotd/internal/legacy"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/robotd/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"           _           _      _\n" +
		"  _ __ ___| |__   ___ | |_ __| |\n" +
		" | '__/ _ \\ '_ \\ / _ \\| __/ _` |\n" +
		" | | | (_) | |_) | (_) | || (_| |\n" +
		" |_|  \\___/|_.__/ \\___/ \\__\\__,_|\n"
)

// globals returns the process-wide legacy state. Tests replace it.
var globals = legacy.Default

var configPath string

var rootCmd = &cobra.Command{
	Use:   "robotd",
	Short: "robotd - chat robot runtime",
	Long:  color.CyanString(logo) + "\nRuns chat robots with pluggable adapters, handlers and authorization groups.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.CyanString(logo))
	if title != "" {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, "─────────────────────")
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $ROBOTD_CONFIG or ~/.robotd/config.json)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(groupsCmd)
}
