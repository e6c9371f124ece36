package cmd

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/gastown/gt/internal/obs/client"
	"github.com/spf13/cobra"
)

// runObserveDefault is observeCmd's RunE: with no subcommand, it prints a
// snapshot table of a running server's world model, same shape as
// "gt observe status" does for log sources.
func runObserveDefault(cmd *cobra.Command, args []string) error {
	c := client.New(observeServerAddr)
	state, err := c.State(context.Background())
	if err != nil {
		return fmt.Errorf("fetching state from %s: %w", observeServerAddr, err)
	}

	rigs := make([]string, 0, len(state.Rigs))
	for rig := range state.Rigs {
		rigs = append(rigs, rig)
	}
	sort.Strings(rigs)

	if len(rigs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No rigs observed yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RIG\tAGENT\tSTATUS\tHOOK\tLAST OBSERVED")
	for _, rig := range rigs {
		rs := state.Rigs[rig]
		agents := rs.Agents
		sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
		if len(agents) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s\n", rig, rs.LastObservedAt.Format("15:04:05"))
			continue
		}
		for _, a := range agents {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rig, a.Name, a.Status, a.HookBeadID, rs.LastObservedAt.Format("15:04:05"))
		}
	}
	return w.Flush()
}
