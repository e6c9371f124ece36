package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gastown/gt/internal/obs/client"
)

func init() {
	observeCmd.AddCommand(observeJSONCmd)
}

var observeJSONCmd = &cobra.Command{
	Use:   "json",
	Short: "Print the current fleet snapshot as JSON",
	Long:  `Fetch GET /api/state from a running observability server and print it as JSON.`,
	RunE:  runObserveJSON,
}

func runObserveJSON(cmd *cobra.Command, args []string) error {
	c := client.New(observeServerAddr)
	state, err := c.State(context.Background())
	if err != nil {
		return fmt.Errorf("fetching state from %s: %w", observeServerAddr, err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
