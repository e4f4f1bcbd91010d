package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docvault/internal/watcher"
)

var watchSettleMS int

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch an inbox directory and ingest dropped files",
	Long: `Watches a directory and ingests every file dropped into it once its
writes have settled. Ingested files are removed from the directory;
failed ones stay behind. Runs until interrupted.

Without an argument the directory comes from the watch.dir config key,
falling back to ~/.docvault/inbox.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchSettleMS, "settle", 0, "write-quiescence window in milliseconds")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestOrchestrator == nil {
		return errors.New("ingest service not configured")
	}

	dir, err := watchDir(args)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	var opts []watcher.Option
	settle := watchSettleMS
	if settle == 0 && configStore != nil {
		settle = configStore.GetInt("watch.settle_ms")
	}
	if settle > 0 {
		opts = append(opts, watcher.WithSettle(time.Duration(settle)*time.Millisecond))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", dir)
	w := watcher.New(ingestOrchestrator, currentOwner(), dir, opts...)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch failed: %w", err)
	}
	cmd.Println("Stopped.")
	return nil
}

// watchDir resolves the inbox directory: argument, watch.dir config key,
// then ~/.docvault/inbox.
func watchDir(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if configStore != nil {
		if dir := configStore.GetString("watch.dir"); dir != "" {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".docvault", "inbox"), nil
}
