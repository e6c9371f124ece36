package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/gastown/gt/internal/config"
	"github.com/gastown/gt/internal/constants"
	"github.com/gastown/gt/internal/quota"
	"github.com/gastown/gt/internal/style"
	ttmux "github.com/gastown/gt/internal/tmux"
	"github.com/gastown/gt/internal/util"
	"github.com/gastown/gt/internal/workspace"
)

// quotaLogger adapts style.PrintWarning to the quota.Logger interface.
type quotaLogger struct{}

func (quotaLogger) Warn(format string, args ...interface{}) {
	style.PrintWarning(format, args...)
}

// Quota command flags
var (
	quotaJSON bool
)

var quotaCmd = &cobra.Command{
	Use:     "quota",
	GroupID: GroupServices,
	Short:   "Manage account quota rotation",
	RunE:    requireSubcommand,
	Long: `Manage Claude Code account quota rotation for Gas Town.

When sessions hit rate limits, quota commands help detect blocked sessions
and rotate them to available accounts from the pool.

Commands:
  gt quota status            Show account quota status
  gt quota scan              Detect rate-limited sessions
  gt quota rotate            Swap blocked sessions to available accounts
  gt quota clear             Mark account(s) as available again`,
}

var quotaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show account quota status",
	Long: `Show the quota status of all registered accounts.

Displays which accounts are available, rate-limited, or in cooldown,
along with timestamps for limit detection and estimated reset times.

Examples:
  gt quota status           # Text output
  gt quota status --json    # JSON output`,
	RunE: runQuotaStatus,
}

// QuotaStatusItem represents an account in status output.
type QuotaStatusItem struct {
	Handle    string `json:"handle"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	LimitedAt string `json:"limited_at,omitempty"`
	ResetsAt  string `json:"resets_at,omitempty"`
	LastUsed  string `json:"last_used,omitempty"`
	IsDefault bool   `json:"is_default"`
}

func runQuotaStatus(cmd *cobra.Command, args []string) error {
	townRoot, err := workspace.FindFromCwd()
	if err != nil {
		return fmt.Errorf("finding town root: %w", err)
	}

	// Load accounts
	accountsPath := constants.MayorAccountsPath(townRoot)
	acctCfg, err := config.LoadAccountsConfig(accountsPath)
	if err != nil {
		fmt.Println("No accounts configured.")
		fmt.Println("\nTo add an account:")
		fmt.Println("  gt account add <handle>")
		return nil
	}

	if len(acctCfg.Accounts) == 0 {
		fmt.Println("No accounts configured.")
		return nil
	}

	// Load quota state
	mgr := quota.NewManager(townRoot)
	state, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("loading quota state: %w", err)
	}

	// Ensure all accounts are tracked
	mgr.EnsureAccountsTracked(state, acctCfg.Accounts)

	// Auto-clear accounts whose reset time has passed
	if cleared := mgr.ClearExpired(state); cleared > 0 {
		if err := mgr.Save(state); err != nil {
			style.PrintWarning("could not persist expired account clearance: %v", err)
		}
	}

	if quotaJSON {
		return printQuotaStatusJSON(acctCfg, state)
	}
	return printQuotaStatusText(acctCfg, state)
}

func printQuotaStatusJSON(acctCfg *config.AccountsConfig, state *config.QuotaState) error {
	var items []QuotaStatusItem
	for _, handle := range slices.Sorted(maps.Keys(acctCfg.Accounts)) {
		acct := acctCfg.Accounts[handle]
		qs := state.Accounts[handle]
		status := string(qs.Status)
		if status == "" {
			status = string(config.QuotaStatusAvailable)
		}
		items = append(items, QuotaStatusItem{
			Handle:    handle,
			Email:     acct.Email,
			Status:    status,
			LimitedAt: qs.LimitedAt,
			ResetsAt:  qs.ResetsAt,
			LastUsed:  qs.LastUsed,
			IsDefault: handle == acctCfg.Default,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func printQuotaStatusText(acctCfg *config.AccountsConfig, state *config.QuotaState) error {
	available := 0
	limited := 0

	fmt.Println(style.Bold.Render("Account Quota Status"))
	fmt.Println()

	for _, handle := range slices.Sorted(maps.Keys(acctCfg.Accounts)) {
		acct := acctCfg.Accounts[handle]
		qs := state.Accounts[handle]
		status := qs.Status
		if status == "" {
			status = config.QuotaStatusAvailable
		}

		// Handle marker and default indicator
		marker := " "
		if handle == acctCfg.Default {
			marker = "*"
		}

		// Status badge
		var badge string
		switch status {
		case config.QuotaStatusAvailable:
			badge = style.Success.Render("available")
			available++
		case config.QuotaStatusLimited:
			badge = style.Error.Render("limited")
			limited++
			if qs.ResetsAt != "" {
				badge += style.Dim.Render(" (resets " + qs.ResetsAt + ")")
			}
		case config.QuotaStatusCooldown:
			badge = style.Warning.Render("cooldown")
			limited++
		default:
			badge = style.Dim.Render("unknown")
		}

		email := ""
		if acct.Email != "" {
			email = style.Dim.Render(" <" + acct.Email + ">")
		}

		fmt.Printf(" %s %-12s %s%s\n", marker, handle, badge, email)
	}

	fmt.Println()
	fmt.Printf(" %s %d available, %d limited\n",
		style.Info.Render("Summary:"), available, limited)

	return nil
}

// Scan command flags
var (
	scanUpdate bool
)

var quotaScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Detect rate-limited sessions",
	Long: `Scan all Gas Town tmux sessions for rate-limit indicators.

Captures recent pane output from each session and checks for rate-limit
messages. Reports which sessions are blocked and which account they use.

Use --update to automatically update quota state with detected limits.

Examples:
  gt quota scan              # Report rate-limited sessions
  gt quota scan --update     # Report and update quota state
  gt quota scan --json       # JSON output`,
	RunE: runQuotaScan,
}

func runQuotaScan(cmd *cobra.Command, args []string) error {
	townRoot, err := workspace.FindFromCwd()
	if err != nil {
		return fmt.Errorf("finding town root: %w", err)
	}

	// Load accounts config
	accountsPath := constants.MayorAccountsPath(townRoot)
	acctCfg, loadErr := config.LoadAccountsConfig(accountsPath)
	// acctCfg can be nil if no accounts configured — scan still works

	// Create scanner
	t := ttmux.NewTmux()
	scanner, err := quota.NewScanner(t, nil, acctCfg)
	if err != nil {
		return fmt.Errorf("creating scanner: %w", err)
	}

	results, err := scanner.ScanAll()
	if err != nil {
		return fmt.Errorf("scanning sessions: %w", err)
	}

	// Optionally update quota state
	if scanUpdate && loadErr == nil && acctCfg != nil {
		if err := updateQuotaState(townRoot, results, acctCfg); err != nil {
			return fmt.Errorf("updating quota state: %w", err)
		}
	}

	if quotaJSON {
		return printScanJSON(results)
	}
	return printScanText(results)
}

func updateQuotaState(townRoot string, results []quota.ScanResult, acctCfg *config.AccountsConfig) error {
	mgr := quota.NewManager(townRoot)
	return mgr.WithLock(func() error {
		state, err := mgr.Load()
		if err != nil {
			return err
		}
		mgr.EnsureAccountsTracked(state, acctCfg.Accounts)

		now := time.Now().UTC().Format(time.RFC3339)
		for _, r := range results {
			if r.RateLimited && r.AccountHandle != "" {
				existing := state.Accounts[r.AccountHandle]
				state.Accounts[r.AccountHandle] = config.AccountQuotaState{
					Status:    config.QuotaStatusLimited,
					LimitedAt: now,
					ResetsAt:  r.ResetsAt,
					LastUsed:  existing.LastUsed,
				}
			}
		}

		return mgr.SaveUnlocked(state)
	})
}

func printScanJSON(results []quota.ScanResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func printScanText(results []quota.ScanResult) error {
	limited := 0

	for _, r := range results {
		if r.RateLimited {
			limited++
			account := r.AccountHandle
			if account == "" {
				account = "(unknown)"
			}
			resets := ""
			if r.ResetsAt != "" {
				resets = style.Dim.Render(" resets " + r.ResetsAt)
			}
			fmt.Printf(" %s %-25s %s %s%s\n",
				style.Error.Render("!"),
				r.Session,
				style.Dim.Render("account:"),
				account,
				resets,
			)
		}
	}

	if limited == 0 {
		fmt.Printf(" %s No rate-limited sessions detected (%d scanned)\n",
			style.SuccessPrefix, len(results))
	} else {
		fmt.Println()
		fmt.Printf(" %s %d of %d sessions rate-limited\n",
			style.Warning.Render("Summary:"), limited, len(results))
	}

	return nil
}

// Rotate command flags
var (
	rotateDryRun bool
	rotateFrom   string
	rotateIdle   bool
)

var quotaRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Swap blocked sessions to available accounts",
	Long: `Rotate rate-limited sessions to available accounts.

Scans all sessions for rate limits, plans account assignments using
least-recently-used ordering, and restarts blocked sessions with fresh accounts.

Use --from to preemptively rotate sessions using a specific account before
it hits its rate limit. This is useful for switching idle sessions while
it's not disruptive.

The rotation process:
  1. Scans all Gas Town sessions for rate-limit indicators
  2. Selects available accounts (LRU order)
  3. Swaps macOS Keychain credentials (same config dir preserved)
  4. Restarts blocked sessions via respawn-pane
  5. Sends /resume to recover conversation context

Examples:
  gt quota rotate                    # Rotate all blocked sessions
  gt quota rotate --from work        # Preemptively rotate sessions on 'work' account
  gt quota rotate --from work --idle # Only rotate idle sessions on 'work' account
  gt quota rotate --dry-run          # Show plan without executing
  gt quota rotate --json             # JSON output`,
	RunE: runQuotaRotate,
}

func runQuotaRotate(cmd *cobra.Command, args []string) error {
	townRoot, err := workspace.FindFromCwd()
	if err != nil {
		return fmt.Errorf("finding town root: %w", err)
	}

	// Load accounts config (required for rotation)
	accountsPath := constants.MayorAccountsPath(townRoot)
	acctCfg, err := config.LoadAccountsConfig(accountsPath)
	if err != nil {
		return fmt.Errorf("no accounts configured (run 'gt account add' first): %w", err)
	}
	if len(acctCfg.Accounts) < 2 {
		return fmt.Errorf("need at least 2 accounts for rotation (have %d)", len(acctCfg.Accounts))
	}

	// Validate --from account if specified
	if rotateFrom != "" {
		if _, ok := acctCfg.Accounts[rotateFrom]; !ok {
			return fmt.Errorf("account %q not found (available: %s)",
				rotateFrom, strings.Join(accountHandles(acctCfg), ", "))
		}
	}

	// Create scanner and plan rotation
	t := ttmux.NewTmux()
	scanner, err := quota.NewScanner(t, nil, acctCfg)
	if err != nil {
		return fmt.Errorf("creating scanner: %w", err)
	}

	mgr := quota.NewManager(townRoot)
	plan, err := quota.PlanRotation(scanner, mgr, acctCfg, rotateFrom)
	if err != nil {
		return fmt.Errorf("planning rotation: %w", err)
	}

	// Persist detected rate-limit statuses so subsequent rotations
	// remember which accounts are limited (review finding #1).
	// Skip for preemptive rotations — the account isn't actually rate-limited.
	if rotateFrom == "" && len(plan.LimitedSessions) > 0 {
		if err := updateQuotaState(townRoot, plan.LimitedSessions, acctCfg); err != nil {
			return fmt.Errorf("persisting detected rate limits: %w", err)
		}
	}

	if len(plan.LimitedSessions) == 0 {
		if quotaJSON {
			return json.NewEncoder(os.Stdout).Encode([]quota.RotateResult{})
		}
		if rotateFrom != "" {
			fmt.Printf(" %s No sessions found using account %q\n", style.SuccessPrefix, rotateFrom)
		} else {
			fmt.Printf(" %s No rate-limited sessions detected\n", style.SuccessPrefix)
		}
		return nil
	}

	if len(plan.Assignments) == 0 {
		if quotaJSON {
			return json.NewEncoder(os.Stdout).Encode([]quota.RotateResult{})
		}
		fmt.Printf(" %s %d sessions rate-limited but no available accounts to rotate to\n",
			style.WarningPrefix, len(plan.LimitedSessions))
		return nil
	}

	// Count unassigned sessions by reason, before idle filtering changes the assignment count.
	// Three reasons a session may not be assigned:
	//   1. No config dir — session has no CLAUDE_CONFIG_DIR and no known account
	//   2. No available accounts — all accounts are limited or consumed
	noConfigDir := 0
	for _, r := range plan.LimitedSessions {
		if _, assigned := plan.Assignments[r.Session]; !assigned {
			if r.AccountHandle == "" && r.ConfigDir == "" {
				noConfigDir++
			}
		}
	}
	unassignable := len(plan.LimitedSessions) - len(plan.Assignments) - noConfigDir

	// Filter to idle sessions only when --idle is set.
	// This avoids interrupting agents that are actively working.
	skippedBusy := 0
	if rotateIdle {
		for session := range plan.Assignments {
			if !t.IsIdle(session) {
				if !quotaJSON {
					fmt.Printf(" %s %-25s %s\n",
						style.Dim.Render("-"), session,
						style.Dim.Render("skipped (busy)"))
				}
				delete(plan.Assignments, session)
				skippedBusy++
			}
		}
		if len(plan.Assignments) == 0 {
			if quotaJSON {
				return json.NewEncoder(os.Stdout).Encode([]quota.RotateResult{})
			}
			fmt.Printf("\n %s No idle sessions to rotate\n", style.WarningPrefix)
			return nil
		}
	}

	// Sort sessions for deterministic output
	sortedSessions := slices.Sorted(maps.Keys(plan.Assignments))

	// Show plan (text only — skip for JSON consumers)
	if !quotaJSON {
		fmt.Println(style.Bold.Render("Rotation Plan"))
		fmt.Println()
		for _, session := range sortedSessions {
			newAccount := plan.Assignments[session]
			var oldAccount string
			for _, r := range plan.LimitedSessions {
				if r.Session == session {
					oldAccount = r.AccountHandle
					break
				}
			}
			if oldAccount == "" {
				oldAccount = "(unknown)"
			}
			fmt.Printf(" %s %-25s %s → %s\n",
				style.ArrowPrefix, session,
				style.Dim.Render(oldAccount),
				style.Success.Render(newAccount),
			)
		}
		if noConfigDir > 0 {
			fmt.Printf("\n %s %d session(s) skipped (no CLAUDE_CONFIG_DIR)\n",
				style.WarningPrefix, noConfigDir)
		}
		if unassignable > 0 {
			fmt.Printf(" %s %d session(s) cannot be rotated (not enough available accounts)\n",
				style.WarningPrefix, unassignable)
		}
	}

	if rotateDryRun {
		if quotaJSON {
			// Return plan as JSON for machine consumers
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		}
		fmt.Println()
		fmt.Println(style.Dim.Render(" (dry run — no changes made)"))
		return nil
	}

	// Execute rotation with keychain swap deduplication.
	// Track which config dirs have already been swapped so we only do
	// one keychain operation per config dir, not per session.
	if !quotaJSON {
		fmt.Println()
	}
	swappedConfigDirs := make(map[string]*quota.KeychainCredential)
	var results []quota.RotateResult
	for _, session := range sortedSessions {
		newAccount := plan.Assignments[session]
		result := executeKeychainRotation(t, mgr, acctCfg, session, newAccount, swappedConfigDirs)
		results = append(results, result)

		if !quotaJSON {
			if result.Rotated {
				suffix := ""
				if result.ResumedSession != "" {
					suffix = style.Dim.Render(" (resumed)")
				}
				if result.KeychainSwap {
					suffix += style.Dim.Render(" [keychain]")
				}
				fmt.Printf(" %s %s → %s%s\n", style.SuccessPrefix, result.Session, result.NewAccount, suffix)
			} else if result.Error != "" {
				fmt.Printf(" %s %s: %s\n", style.ErrorPrefix, result.Session, result.Error)
			}
		}
	}

	if quotaJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	return nil
}

var quotaClearCmd = &cobra.Command{
	Use:   "clear [handle...]",
	Short: "Mark account(s) as available again",
	Long: `Clear the rate-limited status for one or more accounts, marking them available.

When no handles are specified, all limited accounts are cleared.

Examples:
  gt quota clear              # Clear all limited accounts
  gt quota clear work         # Clear a specific account
  gt quota clear work personal`,
	RunE: runQuotaClear,
}

func runQuotaClear(cmd *cobra.Command, args []string) error {
	townRoot, err := workspace.FindFromCwd()
	if err != nil {
		return fmt.Errorf("finding town root: %w", err)
	}

	mgr := quota.NewManager(townRoot)

	if len(args) == 0 {
		// Clear all limited accounts
		state, err := mgr.Load()
		if err != nil {
			return fmt.Errorf("loading quota state: %w", err)
		}
		cleared := 0
		for handle, acctState := range state.Accounts {
			if acctState.Status == config.QuotaStatusLimited || acctState.Status == config.QuotaStatusCooldown {
				if err := mgr.MarkAvailable(handle); err != nil {
					return fmt.Errorf("clearing %s: %w", handle, err)
				}
				fmt.Printf(" %s %s → available\n", style.SuccessPrefix, handle)
				cleared++
			}
		}
		if cleared == 0 {
			fmt.Printf(" %s No limited accounts to clear\n", style.SuccessPrefix)
		}
		return nil
	}

	for _, handle := range args {
		if err := mgr.MarkAvailable(handle); err != nil {
			return fmt.Errorf("clearing %s: %w", handle, err)
		}
		fmt.Printf(" %s %s → available\n", style.SuccessPrefix, handle)
	}
	return nil
}

// accountHandles returns sorted account handle names for error messages.
func accountHandles(acctCfg *config.AccountsConfig) []string {
	handles := make([]string, 0, len(acctCfg.Accounts))
	for h := range acctCfg.Accounts {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	return handles
}

// executeKeychainRotation performs context-preserving rotation for a single session.
// Instead of changing CLAUDE_CONFIG_DIR (which destroys context), it swaps the
// macOS Keychain OAuth token from an available account into the rate-limited
// account's keychain entry, then respawns with the SAME config dir so /resume works.
//
// swappedConfigDirs tracks which config dirs have already been swapped in this
// rotation batch — multiple sessions sharing a config dir only need one swap.
func executeKeychainRotation(
	t *ttmux.Tmux,
	mgr *quota.Manager,
	acctCfg *config.AccountsConfig,
	session, newAccount string,
	swappedConfigDirs map[string]*quota.KeychainCredential,
) quota.RotateResult {
	result := quota.RotateResult{
		Session:    session,
		NewAccount: newAccount,
	}

	// Read the session's current CLAUDE_CONFIG_DIR
	currentConfigDir, err := t.GetEnvironment(session, "CLAUDE_CONFIG_DIR")
	if err != nil {
		result.Error = fmt.Sprintf("reading CLAUDE_CONFIG_DIR: %v", err)
		return result
	}

	// Resolve old account handle
	for handle, acct := range acctCfg.Accounts {
		if acct.ConfigDir == currentConfigDir || util.ExpandHome(acct.ConfigDir) == currentConfigDir {
			result.OldAccount = handle
			break
		}
	}

	// Get the source (new account) config dir — this is where the fresh token lives
	newAcct, ok := acctCfg.Accounts[newAccount]
	if !ok {
		result.Error = fmt.Sprintf("account %q not found in config", newAccount)
		return result
	}
	sourceConfigDir := util.ExpandHome(newAcct.ConfigDir)

	// Swap keychain credential AND oauthAccount identity (deduplicated per config dir)
	if _, alreadySwapped := swappedConfigDirs[currentConfigDir]; !alreadySwapped {
		backup, err := quota.SwapKeychainCredential(currentConfigDir, sourceConfigDir)
		if err != nil {
			result.Error = fmt.Sprintf("keychain swap failed: %v", err)
			return result
		}
		swappedConfigDirs[currentConfigDir] = backup

		// Also swap the oauthAccount in .claude.json so Claude Code identifies
		// as the new account (correct accountUuid/organizationUuid for rate limits).
		if _, err := quota.SwapOAuthAccount(currentConfigDir, sourceConfigDir); err != nil {
			style.PrintWarning("could not swap oauthAccount for %s: %v", session, err)
		}

		result.KeychainSwap = true
	}

	// Build restart command with --continue to resume previous conversation.
	// ContinueSession omits the beacon prompt and adds --continue, so the
	// agent silently resumes where it left off without a fresh handoff cycle.
	restartCmd, err := buildRestartCommandWithOpts(session, buildRestartCommandOpts{
		ContinueSession: true,
	})
	if err != nil {
		result.Error = fmt.Sprintf("building restart command: %v", err)
		return result
	}

	// Keep the SAME config dir — this is what makes /resume work.
	// The keychain swap already replaced the auth token in this dir's keychain entry.
	// Set GT_QUOTA_ACCOUNT so the scanner knows which account's token is actually active
	// (the config dir still maps to the old account).
	restartCmd = fmt.Sprintf("export CLAUDE_CONFIG_DIR=%q && export GT_QUOTA_ACCOUNT=%q && %s", currentConfigDir, newAccount, restartCmd)

	// Get target pane
	pane, err := t.GetPaneID(session)
	if err != nil {
		result.Error = fmt.Sprintf("getting pane: %v", err)
		return result
	}

	// Set remain-on-exit to prevent pane destruction during restart
	if err := t.SetRemainOnExit(pane, true); err != nil {
		style.PrintWarning("could not set remain-on-exit for %s: %v", session, err)
	}

	// Kill existing processes
	if err := t.KillPaneProcesses(pane); err != nil {
		style.PrintWarning("could not kill pane processes for %s: %v", session, err)
	}

	// Clear scrollback
	if err := t.ClearHistory(pane); err != nil {
		style.PrintWarning("could not clear history for %s: %v", session, err)
	}

	// Respawn with same config dir (fresh token already in keychain)
	if err := t.RespawnPane(pane, restartCmd); err != nil {
		result.Error = fmt.Sprintf("respawning pane: %v", err)
		return result
	}

	// Set GT_QUOTA_ACCOUNT in the tmux session environment so the scanner
	// can resolve the active account. The shell export in restartCmd only
	// affects the process env; this sets it where GetEnvironment reads it.
	if err := t.SetEnvironment(session, "GT_QUOTA_ACCOUNT", newAccount); err != nil {
		style.PrintWarning("could not set GT_QUOTA_ACCOUNT for %s: %v", session, err)
	}

	// Context recovery is handled by --continue in the restart command.
	result.ResumedSession = "continue"

	// Update quota state: mark account as used
	if err := mgr.WithLock(func() error {
		state, loadErr := mgr.Load()
		if loadErr != nil {
			return loadErr
		}
		existing := state.Accounts[newAccount]
		existing.LastUsed = time.Now().UTC().Format(time.RFC3339)
		state.Accounts[newAccount] = existing
		return mgr.SaveUnlocked(state)
	}); err != nil {
		style.PrintWarning("could not update LastUsed for %s: %v", newAccount, err)
	}

	result.Rotated = true
	return result
}



func init() {
	quotaStatusCmd.Flags().BoolVar(&quotaJSON, "json", false, "Output as JSON")

	quotaScanCmd.Flags().BoolVar(&quotaJSON, "json", false, "Output as JSON")
	quotaScanCmd.Flags().BoolVar(&scanUpdate, "update", false, "Update quota state with detected limits")

	quotaRotateCmd.Flags().BoolVar(&rotateDryRun, "dry-run", false, "Show plan without executing")
	quotaRotateCmd.Flags().BoolVar(&quotaJSON, "json", false, "Output as JSON")
	quotaRotateCmd.Flags().StringVar(&rotateFrom, "from", "", "Preemptively rotate sessions using this account")
	quotaRotateCmd.Flags().BoolVar(&rotateIdle, "idle", false, "Only rotate sessions at the idle prompt (skip busy agents)")

	quotaCmd.AddCommand(quotaStatusCmd)
	quotaCmd.AddCommand(quotaScanCmd)
	quotaCmd.AddCommand(quotaRotateCmd)
	quotaCmd.AddCommand(quotaClearCmd)

	rootCmd.AddCommand(quotaCmd)
}
