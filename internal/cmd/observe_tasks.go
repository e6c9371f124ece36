package cmd

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gastown/gt/internal/obs/client"
)

func init() {
	observeCmd.AddCommand(observeTasksCmd)
}

var observeTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List in-flight beads across the fleet",
	Long:  `Fetch the current fleet snapshot and print every bead ("task"), grouped by rig.`,
	RunE:  runObserveTasks,
}

func runObserveTasks(cmd *cobra.Command, args []string) error {
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

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RIG\tBEAD\tSTATUS\tOWNER\tTITLE")
	for _, rig := range rigs {
		beads := state.Rigs[rig].Beads
		sort.Slice(beads, func(i, j int) bool { return beads[i].ID < beads[j].ID })
		for _, b := range beads {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rig, b.ID, b.Status, b.Owner, b.Title)
		}
	}
	return w.Flush()
}
