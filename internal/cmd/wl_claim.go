package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/gastown/gt/internal/doltserver"
	"github.com/gastown/gt/internal/style"
	"github.com/gastown/gt/internal/wasteland"
	"github.com/gastown/gt/internal/workspace"
)

var wlClaimCmd = &cobra.Command{
	Use:   "claim <wanted-id>",
	Short: "Claim a wanted item",
	Long: `Claim a wanted item on the shared wanted board.

Updates the wanted row: claimed_by=<your rig handle>, status='claimed'.
The item must exist and have status='open'.

In wild-west mode (Phase 1), this writes directly to the local wl-commons
database. In PR mode, this will create a DoltHub PR instead.

Examples:
  gt wl claim w-abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runWlClaim,
}

func init() {
	wlCmd.AddCommand(wlClaimCmd)
}

func runWlClaim(cmd *cobra.Command, args []string) error {
	wantedID := args[0]

	townRoot, err := workspace.FindFromCwdOrError()
	if err != nil {
		return fmt.Errorf("not in a Gas Town workspace: %w", err)
	}

	wlCfg, err := wasteland.LoadConfig(townRoot)
	if err != nil {
		return fmt.Errorf("loading wasteland config: %w", err)
	}
	rigHandle := wlCfg.RigHandle

	if !doltserver.DatabaseExists(townRoot, doltserver.WLCommonsDB) {
		return fmt.Errorf("database %q not found\nJoin a wasteland first with: gt wl join <org/db>", doltserver.WLCommonsDB)
	}

	store := doltserver.NewWLCommons(townRoot)
	item, err := claimWanted(store, wantedID, rigHandle)
	if err != nil {
		return err
	}

	fmt.Printf("%s Claimed %s\n", style.Bold.Render("✓"), wantedID)
	fmt.Printf("  Claimed by: %s\n", rigHandle)
	fmt.Printf("  Title: %s\n", item.Title)

	return nil
}

// claimWanted contains the testable business logic for claiming a wanted item.
// The returned WantedItem reflects pre-claim state (status "open", empty ClaimedBy);
// callers needing post-claim state should re-query.
func claimWanted(store doltserver.WLCommonsStore, wantedID, rigHandle string) (*doltserver.WantedItem, error) {
	item, err := store.QueryWanted(wantedID)
	if err != nil {
		return nil, fmt.Errorf("querying wanted item: %w", err)
	}

	if item.Status != "open" {
		return nil, fmt.Errorf("wanted item %s is not open (status: %s)", wantedID, item.Status)
	}

	if err := store.ClaimWanted(wantedID, rigHandle); err != nil {
		return nil, fmt.Errorf("claiming wanted item: %w", err)
	}

	return item, nil
}
