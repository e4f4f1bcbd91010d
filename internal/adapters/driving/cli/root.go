// Package cli provides the docvault command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docvault/internal/core/ports/driven"
	"github.com/custodia-labs/docvault/internal/core/ports/driving"
	"github.com/custodia-labs/docvault/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

// Injected services. Commands fail with a clear error when a service they
// need is not configured.
var (
	ingestOrchestrator driving.IngestOrchestrator
	queryService       driving.QueryService
	documentService    driving.DocumentService
	ledgerService      driving.LedgerService
	configStore        driven.ConfigStore
)

var (
	verboseFlag bool
	ownerFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "docvault",
	Short: "Encrypted document vault with semantic retrieval",
	Long: `Docvault ingests documents into an encrypted local vault, indexes them
for semantic retrieval, and meters every operation against a per-user
credit ledger with an append-only audit trail.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "owner identity (defaults to owner.id from config)")
}

// Services bundles everything the CLI needs.
type Services struct {
	Ingest    driving.IngestOrchestrator
	Query     driving.QueryService
	Documents driving.DocumentService
	Ledger    driving.LedgerService
	Config    driven.ConfigStore
}

// SetServices injects the service implementations.
func SetServices(s Services) {
	ingestOrchestrator = s.Ingest
	queryService = s.Query
	documentService = s.Documents
	ledgerService = s.Ledger
	configStore = s.Config
}

// SetVersion sets the version string printed by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// currentOwner resolves the acting owner: the --owner flag, then the
// owner.id config key, then "local".
func currentOwner() string {
	if ownerFlag != "" {
		return ownerFlag
	}
	if configStore != nil {
		if id := configStore.GetString("owner.id"); id != "" {
			return id
		}
	}
	return "local"
}
