package cli

import (
	"fmt"

	"github.com/KafClaw/robotd/internal/cliconfig"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config and setup diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := cliconfig.RunDoctor(cmd.Context(), cliconfig.DoctorOptions{
			ConfigPath:  configPath,
			Registry:    pluginRegistry(cmd.InOrStdin(), cmd.OutOrStdout()),
			SkipNetwork: doctorOffline,
		})
		if err != nil {
			return err
		}

		failures := 0
		for _, check := range report.Checks {
			symbol := color.GreenString("PASS")
			if check.Status == cliconfig.DoctorWarn {
				symbol = color.YellowString("WARN")
			}
			if check.Status == cliconfig.DoctorFail {
				symbol = color.RedString("FAIL")
				failures++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", symbol, check.Name, check.Message)
		}

		if failures > 0 {
			return fmt.Errorf("doctor found %d failing check(s)", failures)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "Skip Kafka broker connectivity checks")
	rootCmd.AddCommand(doctorCmd)
}
