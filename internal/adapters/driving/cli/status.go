package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show the state of an ingestion run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [run-id]",
	Short: "Cancel an in-flight ingestion run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if ingestOrchestrator == nil {
		return errors.New("ingest service not configured")
	}

	status, err := ingestOrchestrator.Status(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}

	cmd.Printf("Run: %s\n\n", status.RunID)
	cmd.Printf("  Document: %s\n", status.DocumentID)
	cmd.Printf("  Version:  %d\n", status.Version)
	cmd.Printf("  Status:   %s\n", status.Status)
	cmd.Printf("  Chunks:   %d\n", status.Chunks)
	cmd.Printf("  Started:  %s\n", status.StartedAt.Format("2006-01-02 15:04:05"))
	if status.Err != "" {
		cmd.Printf("  Error:    %s\n", status.Err)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	if ingestOrchestrator == nil {
		return errors.New("ingest service not configured")
	}

	if err := ingestOrchestrator.Cancel(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to cancel run: %w", err)
	}
	cmd.Printf("Run %s cancelled.\n", args[0])
	return nil
}
