package driving

import (
	"context"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

// QueryService answers natural-language retrieval queries for one owner.
type QueryService interface {
	// Query charges the retrieval cost, embeds the text and returns the
	// ranked chunks most similar to it, scoped to the owner's ready
	// documents. An empty result is valid, not an error.
	Query(ctx context.Context, ownerID, text string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error)
}

// DocumentService exposes document listing and inspection.
type DocumentService interface {
	// List returns the current versions of the owner's documents.
	List(ctx context.Context, ownerID string) ([]domain.Document, error)

	// Get retrieves the current version of a document.
	Get(ctx context.Context, ownerID, documentID string) (*domain.Document, error)
}
