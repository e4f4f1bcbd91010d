package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientCredit indicates the owner's balance cannot cover the
	// requested action. Not retryable until the owner tops up.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrKeyRevoked indicates the document key has been destroyed.
	// The ciphertext is permanently unreadable; distinct from ErrNotFound.
	ErrKeyRevoked = errors.New("key revoked")

	// ErrUnsupportedFormat indicates no extractor handles the MIME type.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrExtraction indicates the extractor failed on supported input.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbedding indicates the embedding service failed.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConsistency indicates a manifest/blob/index mismatch that needs
	// operator reconciliation. Never silently ignored.
	ErrConsistency = errors.New("consistency violation")

	// ErrIngestInProgress indicates an ingestion run is already active for
	// the same document version.
	ErrIngestInProgress = errors.New("ingestion in progress")

	// ErrDocumentNotReady indicates the document version is not queryable.
	ErrDocumentNotReady = errors.New("document not ready")

	// ErrInvalidTransition indicates a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Retrieval is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")
)
