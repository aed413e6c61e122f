package cli

import (
	"encoding/json"
	"fmt"

	"github.com/KafClaw/robotd/internal/cliconfig"
	"github.com/spf13/cobra"
)

var configRaw bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage robotd configuration values",
}

var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get effective config value by dotted path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var val any
		if configRaw {
			doc, err := cliconfig.Open(configPath)
			if err != nil {
				return err
			}
			v, ok, err := doc.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("path not found: %s", args[0])
			}
			val = v
		} else {
			v, err := cliconfig.Effective(configPath, args[0])
			if err != nil {
				return err
			}
			val = v
		}
		switch v := val.(type) {
		case map[string]any, []any:
			out, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		default:
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set config value by dotted path (JSON or plain string)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := cliconfig.Open(configPath)
		if err != nil {
			return err
		}
		if err := doc.Set(args[0], args[1]); err != nil {
			return err
		}
		return doc.Save()
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <path>",
	Short: "Unset config value by dotted path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := cliconfig.Open(configPath)
		if err != nil {
			return err
		}
		removed, err := doc.Unset(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("path not found: %s", args[0])
		}
		return doc.Save()
	},
}

func init() {
	configGetCmd.Flags().BoolVar(&configRaw, "raw", false, "Read the file value only, without defaults or env overrides")
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	rootCmd.AddCommand(configCmd)
}
