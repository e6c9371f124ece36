package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gastown/gt/internal/obs"
	"github.com/gastown/gt/internal/obs/server"
	"github.com/gastown/gt/internal/workspace"
)

var observeServePort int

func init() {
	observeServeCmd.Flags().IntVar(&observeServePort, "port", 0, "HTTP port to listen on (overrides the config file)")
	observeCmd.AddCommand(observeServeCmd)
}

var observeServeCmd = &cobra.Command{
	Use:   "serve [port]",
	Short: "Start the fleet observability backend",
	Long: `Start the observability backend: polls every rig via the gt CLI,
derives events from diffs, evaluates alert rules, persists a bounded
history, and streams updates to connected dashboard clients over a
WebSocket.

Example:
  gt observe serve              # listen on the configured port (default 8080)
  gt observe serve 9090         # listen on port 9090`,
	Args: cobra.MaximumNArgs(1),
	RunE: runObserveServe,
}

func runObserveServe(cmd *cobra.Command, args []string) error {
	townRoot, err := workspace.FindFromCwdOrError()
	if err != nil {
		return fmt.Errorf("not in a Gas Town workspace: %w", err)
	}

	cfg, err := obs.LoadConfig(filepath.Join(townRoot, obs.ConfigPath))
	if err != nil {
		return fmt.Errorf("loading observe config: %w", err)
	}
	if len(args) == 1 {
		if _, err := fmt.Sscanf(args[0], "%d", &cfg.Server.Port); err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
	}
	if observeServePort != 0 {
		cfg.Server.Port = observeServePort
	}
	if !filepath.IsAbs(cfg.StateDir) {
		cfg.StateDir = filepath.Join(townRoot, cfg.StateDir)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("starting observability server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	fmt.Printf("observability server starting on :%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop\n")

	err = srv.Serve(ctx)
	srv.Shutdown()
	return err
}
