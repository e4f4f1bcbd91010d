package driven

import (
	"context"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

// VectorIndex stores chunk embeddings and answers similarity queries.
//
// The index is the sole owner of VectorRecords. Upsert is idempotent per
// chunk ID: re-upserting replaces rather than duplicates. The owner filter
// is enforced inside the index, not left to callers - a query scoped to one
// owner can never surface another owner's vectors.
type VectorIndex interface {
	// Upsert inserts or replaces records by chunk ID.
	Upsert(ctx context.Context, records []domain.VectorRecord) error

	// Query finds the k most similar records under the filter.
	// Results are ranked by descending cosine similarity; ties break by
	// ascending chunk ID for determinism. Fewer than k hits is not an error.
	Query(ctx context.Context, embedding []float32, k int, filter VectorFilter) ([]VectorHit, error)

	// DeleteVersion removes all records for one document version only.
	DeleteVersion(ctx context.Context, documentID string, version int) error

	// DeleteDocument removes every version of a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close releases resources.
	Close() error
}

// VectorFilter restricts a query to records matching the constraints.
type VectorFilter struct {
	// OwnerID is required; records of other owners are never returned.
	OwnerID string

	// DocumentIDs optionally restricts hits to specific documents.
	DocumentIDs []string
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Meta is the record metadata for defensive checks by the caller.
	Meta domain.VectorMeta

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}
