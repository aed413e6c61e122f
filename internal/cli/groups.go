package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/KafClaw/robotd/internal/config"
	"github.com/spf13/cobra"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List authorization groups and their members",
	Args:  cobra.NoArgs,
	RunE:  runGroups,
}

func runGroups(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printHeader(out, "👥 robotd Authorization Groups")

	g := globals()
	uc, err := config.ReadUserConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.Apply(g.DefaultConfig(), uc.Base); err != nil {
		return fmt.Errorf("%s: %w", uc.Path, err)
	}
	svc, err := g.Authorization()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	groups, err := svc.GroupsWithUsers(cmd.Context())
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Fprintln(out, "No authorization groups.")
		return nil
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tMEMBERS")
	fmt.Fprintln(w, "-----\t-------")
	for _, name := range names {
		members := make([]string, 0, len(groups[name]))
		for _, u := range groups[name] {
			if u == nil {
				members = append(members, "(unknown)")
				continue
			}
			members = append(members, fmt.Sprintf("%s (%s)", u.Name, u.ID))
		}
		fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(members, ", "))
	}
	return w.Flush()
}
