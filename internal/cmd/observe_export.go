package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gastown/gt/internal/obs/client"
)

var observeExportFormat string

func init() {
	observeExportCmd.Flags().StringVar(&observeExportFormat, "format", "json", "export format: json or csv")
	observeCmd.AddCommand(observeExportCmd)
}

var observeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the retained event history",
	Long:  `Fetch every retained event from a running observability server and print it in the given format.`,
	RunE:  runObserveExport,
}

func runObserveExport(cmd *cobra.Command, args []string) error {
	c := client.New(observeServerAddr)
	data, err := c.ExportEvents(context.Background(), observeExportFormat)
	if err != nil {
		return fmt.Errorf("exporting from %s: %w", observeServerAddr, err)
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(data); err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(out)
	}
	return nil
}
