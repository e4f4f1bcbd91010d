// Command docvault is the encrypted document vault CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/custodia-labs/docvault/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docvault/internal/adapters/driven/embedding/local"
	"github.com/custodia-labs/docvault/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/docvault/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/docvault/internal/adapters/driven/storage/blob"
	"github.com/custodia-labs/docvault/internal/adapters/driven/storage/sqlite"
	vectormem "github.com/custodia-labs/docvault/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/docvault/internal/adapters/driving/cli"
	"github.com/custodia-labs/docvault/internal/chunker"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
	"github.com/custodia-labs/docvault/internal/core/services"
	"github.com/custodia-labs/docvault/internal/extractors"
	"github.com/custodia-labs/docvault/internal/extractors/markdown"
	"github.com/custodia-labs/docvault/internal/extractors/plaintext"
	"github.com/custodia-labs/docvault/internal/logger"
	"github.com/custodia-labs/docvault/internal/vault"
)

// version is overridden at build time with -ldflags.
var version = "dev"

// recoverTimeout bounds startup recovery of interrupted pipelines.
const recoverTimeout = 2 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := file.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := sqlite.NewStore(cfg.GetString("storage.data_dir"))
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer store.Close()

	blobs, err := blob.NewStore(cfg.GetString("storage.blob_dir"))
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	crypto := vault.New(store.KeyStore())

	registry := extractors.NewRegistry()
	registry.Register(plaintext.New())
	registry.Register(markdown.New())

	var chunkerOpts []chunker.Option
	if size := cfg.GetInt("chunker.size"); size > 0 {
		chunkerOpts = append(chunkerOpts, chunker.WithChunkSize(size))
	}
	if overlap := cfg.GetInt("chunker.overlap"); overlap > 0 {
		chunkerOpts = append(chunkerOpts, chunker.WithOverlap(overlap))
	}
	chunks := chunker.New(chunkerOpts...)

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("configuring embedder: %w", err)
	}

	vectors := vectormem.New()
	docs := store.DocumentStore()

	ledger := services.NewLedger(store.LedgerStore(), cfg)
	ingestor := services.NewIngestor(docs, blobs, crypto, registry, chunks, embedder, vectors, ledger)
	query := services.NewQuery(docs, blobs, crypto, registry, embedder, vectors, ledger, cfg)

	// The vector index is in-memory: rebuild it, and resume any pipelines a
	// previous process left mid-flight, before serving commands.
	ctx, cancel := context.WithTimeout(context.Background(), recoverTimeout)
	defer cancel()
	if err := ingestor.Recover(ctx); err != nil {
		logger.Warn("startup recovery: %v", err)
	}
	ingestor.Wait()

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Ingest:    ingestor,
		Query:     query,
		Documents: query,
		Ledger:    ledger,
		Config:    cfg,
	})

	if err := cli.Execute(); err != nil {
		return err
	}

	// Let background pipeline work finish before the process exits.
	ingestor.Wait()
	return nil
}

// buildEmbedder selects the embedding backend from config. The default is
// the offline deterministic embedder, which needs no external service.
func buildEmbedder(cfg driven.ConfigStore) (driven.EmbeddingService, error) {
	dimensions := cfg.GetInt("embedding.dimensions")

	switch cfg.GetString("embedding.provider") {
	case "openai":
		apiKey := cfg.GetString("embedding.api_key")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return openai.NewEmbeddingService(openai.Config{
			APIKey:     apiKey,
			Model:      cfg.GetString("embedding.model"),
			Dimensions: dimensions,
		})
	case "ollama":
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    cfg.GetString("embedding.base_url"),
			Model:      cfg.GetString("embedding.model"),
			Dimensions: dimensions,
		}), nil
	case "", "local":
		return local.New(dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.GetString("embedding.provider"))
	}
}
