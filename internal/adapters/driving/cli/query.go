package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

var (
	queryLimit int
	queryDocs  []string
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Retrieve the chunks most similar to a query",
	Long: `Embeds the query text and returns the ranked chunks most similar to
it across your ready documents. Each query is charged against your credit
balance; snippets are decrypted on demand and never stored in the clear.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 5, "maximum number of results")
	queryCmd.Flags().StringArrayVar(&queryDocs, "doc", nil, "restrict to a document ID (repeatable)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	ctx := context.Background()
	results, err := queryService.Query(ctx, currentOwner(), args[0], domain.QueryOptions{
		K:           queryLimit,
		DocumentIDs: queryDocs,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputQueryJSON(cmd, results)
	}
	return outputQueryTable(cmd, results)
}

func outputQueryJSON(cmd *cobra.Command, results []domain.RetrievedChunk) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputQueryTable(cmd *cobra.Command, results []domain.RetrievedChunk) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		cmd.Printf("  [%d] %s v%d chunk %d (%.2f)\n",
			i+1, results[i].DocumentID, results[i].Version, results[i].Ordinal, results[i].Score)
		cmd.Printf("      %s\n", snippetPreview(results[i].Content))
		cmd.Println()
	}
	return nil
}

// snippetPreview flattens a snippet to a single bounded line.
func snippetPreview(content string) string {
	const maxLen = 200
	out := make([]rune, 0, maxLen)
	for _, r := range content {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		out = append(out, r)
		if len(out) >= maxLen {
			return string(out) + "..."
		}
	}
	return string(out)
}
