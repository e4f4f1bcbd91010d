package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driving"
)

var (
	ingestDocID string
	ingestTitle string
	ingestMIME  string
	ingestWait  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document into the vault",
	Long: `Encrypts and stores a document, then runs the ingestion pipeline
(extract, chunk, embed, index) in the background. The command returns a run
ID immediately; use 'docvault status' to follow progress, or pass --wait.

Re-ingesting with --id bumps the document to a new version; queries keep
serving the old version until the new one is ready.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocID, "id", "", "document ID to re-ingest (empty creates a new document)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to the file name)")
	ingestCmd.Flags().StringVar(&ingestMIME, "mime", "", "MIME type (defaults to detection by extension)")
	ingestCmd.Flags().BoolVar(&ingestWait, "wait", false, "block until the pipeline finishes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestOrchestrator == nil {
		return errors.New("ingest service not configured")
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	title := ingestTitle
	if title == "" {
		title = filepath.Base(path)
	}
	contentType := ingestMIME
	if contentType == "" {
		contentType = detectContentType(path, data)
	}

	ctx := context.Background()
	handle, err := ingestOrchestrator.Ingest(ctx, driving.IngestRequest{
		OwnerID:     currentOwner(),
		DocumentID:  ingestDocID,
		Title:       title,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("Accepted: document %s version %d\n", handle.DocumentID, handle.Version)
	cmd.Printf("Run ID: %s\n", handle.RunID)

	if !ingestWait {
		return nil
	}
	return waitForRun(ctx, cmd, handle.RunID)
}

// waitForRun polls the run until it reaches ready or failed.
func waitForRun(ctx context.Context, cmd *cobra.Command, runID string) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	last := domain.DocumentStatus("")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := ingestOrchestrator.Status(ctx, runID)
		if err != nil {
			return fmt.Errorf("polling run: %w", err)
		}
		if status.Status != last {
			cmd.Printf("  %s\n", status.Status)
			last = status.Status
		}

		switch status.Status {
		case domain.StatusReady:
			cmd.Printf("Done: %d chunks indexed\n", status.Chunks)
			return nil
		case domain.StatusFailed:
			return fmt.Errorf("ingest failed: %s", status.Err)
		}
	}
}

// detectContentType resolves the MIME type from the file extension, falling
// back to content sniffing.
func detectContentType(path string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}
