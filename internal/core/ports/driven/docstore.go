package driven

import (
	"context"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

// DocumentStore persists document versions and their chunk manifests.
// Backed by SQLite for metadata storage.
//
// Every document ID has at most one current version; queries resolve through
// the current-version pointer so a re-ingestion only becomes visible when the
// pointer flips.
type DocumentStore interface {
	// SaveDocument stores a new document version row.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// UpdateStatus advances the durable status of one document version.
	// The transition is validated and applied as a compare-and-swap on the
	// expected current status; a lost race returns domain.ErrInvalidTransition.
	UpdateStatus(ctx context.Context, documentID string, version int, from, to domain.DocumentStatus) error

	// GetDocument retrieves the current version of a document.
	GetDocument(ctx context.Context, documentID string) (*domain.Document, error)

	// GetDocumentVersion retrieves a specific version of a document.
	GetDocumentVersion(ctx context.Context, documentID string, version int) (*domain.Document, error)

	// CurrentVersion returns the current version number for a document,
	// or 0 with domain.ErrNotFound if none exists.
	CurrentVersion(ctx context.Context, documentID string) (int, error)

	// SetCurrentVersion atomically flips the current-version pointer.
	SetCurrentVersion(ctx context.Context, documentID string, version int) error

	// SaveChunks stores the chunk manifest for a document version. Only span
	// coordinates are persisted, never chunk text.
	// Chunk IDs are deterministic, so replaying a stage upserts in place.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunks retrieves the chunk manifest for a document version,
	// ordered by ordinal. Returned chunks carry empty Content.
	GetChunks(ctx context.Context, documentID string, version int) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// DeleteChunks removes the chunk manifest for a document version.
	DeleteChunks(ctx context.Context, documentID string, version int) error

	// ListByOwner returns the current versions of all documents for an owner.
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)

	// ListByStatus returns document versions in the given status, used by
	// crash recovery to resume interrupted pipelines.
	ListByStatus(ctx context.Context, statuses ...domain.DocumentStatus) ([]domain.Document, error)
}
