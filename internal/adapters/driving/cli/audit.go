package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var auditSince string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the append-only audit trail",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit entries as JSON lines",
	Long: `Exports the append-only audit log, oldest first, one JSON object per
line. --since accepts an RFC 3339 timestamp or a duration like 24h.`,
	Args: cobra.NoArgs,
	RunE: runAuditExport,
}

func init() {
	auditExportCmd.Flags().StringVar(&auditSince, "since", "", "only entries after this time (RFC 3339 or duration)")

	auditCmd.AddCommand(auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditExport(cmd *cobra.Command, _ []string) error {
	if ledgerService == nil {
		return errors.New("ledger service not configured")
	}

	since, err := parseSince(auditSince)
	if err != nil {
		return err
	}

	entries, err := ledgerService.Export(context.Background(), since)
	if err != nil {
		return fmt.Errorf("failed to export audit log: %w", err)
	}

	for i := range entries {
		line, err := json.Marshal(entries[i])
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		cmd.Println(string(line))
	}
	return nil
}

// parseSince accepts an RFC 3339 timestamp or a relative duration.
// Empty means the beginning of time.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().UTC().Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since value %q", s)
}
