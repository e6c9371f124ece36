package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gastown/gt/internal/obs/client"
)

var observeReplayStart bool

func init() {
	observeReplayCmd.Flags().BoolVar(&observeReplayStart, "start", false, "print only the earliest recorded transition for each bead")
	observeCmd.AddCommand(observeReplayCmd)
	observeCmd.AddCommand(observeReplayStartCmd)
	observeCmd.AddCommand(observeReplayJobsCmd)
}

var observeReplayCmd = &cobra.Command{
	Use:   "replay <bead-id>...",
	Short: "Print the recorded status history of one or more beads",
	Long: `Fetch each named bead's recorded status transitions and print them in
order, the data a replaying dashboard client walks back through. With
--start, print only the first recorded transition instead of the whole
history.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runObserveReplay,
}

func runObserveReplay(cmd *cobra.Command, args []string) error {
	c := client.New(observeServerAddr)
	ctx := context.Background()
	out := cmd.OutOrStdout()
	for _, id := range args {
		transitions, err := c.BeadHistory(ctx, id)
		if err != nil {
			return fmt.Errorf("fetching history for bead %s: %w", id, err)
		}
		if len(transitions) == 0 {
			fmt.Fprintf(out, "%s: no recorded history\n", id)
			continue
		}
		if observeReplayStart {
			t := transitions[0]
			fmt.Fprintf(out, "%s\t%s\t%s\n", id, t.Timestamp.Format("2006-01-02T15:04:05"), t.Status)
			continue
		}
		for _, t := range transitions {
			fmt.Fprintf(out, "%s\t%s\t%s\n", id, t.Timestamp.Format("2006-01-02T15:04:05"), t.Status)
		}
	}
	return nil
}

// observeReplayStartCmd is a shorthand for "replay <id> --start" with a
// single bead, named to match the job-oriented vocabulary of a replaying
// dashboard client: the "job" it starts is that bead's own timeline.
var observeReplayStartCmd = &cobra.Command{
	Use:   "replay-start <bead-id>",
	Short: "Print the earliest recorded status transition for a bead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(observeServerAddr)
		transitions, err := c.BeadHistory(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("fetching history for bead %s: %w", args[0], err)
		}
		if len(transitions) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: no recorded history\n", args[0])
			return nil
		}
		t := transitions[0]
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", args[0], t.Timestamp.Format("2006-01-02T15:04:05"), t.Status)
		return nil
	},
}

// observeReplayJobsCmd lists every bead currently known to the fleet
// snapshot, each one a candidate to replay.
var observeReplayJobsCmd = &cobra.Command{
	Use:   "replay-jobs",
	Short: "List beads available to replay",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(observeServerAddr)
		state, err := c.State(context.Background())
		if err != nil {
			return fmt.Errorf("fetching state from %s: %w", observeServerAddr, err)
		}
		out := cmd.OutOrStdout()
		for rig, rs := range state.Rigs {
			for _, b := range rs.Beads {
				fmt.Fprintf(out, "%s\t%s\t%s\n", rig, b.ID, b.Status)
			}
		}
		return nil
	},
}
