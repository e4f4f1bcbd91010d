package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

// Pipeline states. A document moves forward along
// uploaded -> extracting -> chunked -> embedded -> ready.
// Failed is reachable from any non-terminal state; deleted from ready or failed.
const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusExtracting DocumentStatus = "extracting"
	StatusChunked    DocumentStatus = "chunked"
	StatusEmbedded   DocumentStatus = "embedded"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
	StatusDeleted    DocumentStatus = "deleted"
)

// pipelineOrder maps forward pipeline states to their position.
var pipelineOrder = map[DocumentStatus]int{
	StatusUploaded:   0,
	StatusExtracting: 1,
	StatusChunked:    2,
	StatusEmbedded:   3,
	StatusReady:      4,
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusExtracting, StatusChunked, StatusEmbedded,
		StatusReady, StatusFailed, StatusDeleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusDeleted
}

// CanTransition reports whether the status may move from s to next.
// The pipeline only moves forward; it never skips a stage or goes back.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	if !s.Valid() || !next.Valid() || s == next {
		return false
	}
	switch next {
	case StatusFailed:
		// Any non-terminal, non-failed state may fail.
		return s != StatusDeleted && s != StatusFailed
	case StatusDeleted:
		return s == StatusReady || s == StatusFailed
	default:
		from, okFrom := pipelineOrder[s]
		to, okTo := pipelineOrder[next]
		return okFrom && okTo && to == from+1
	}
}

// Document represents an encrypted, versioned document owned by a user.
// The plaintext never persists; CiphertextRef points at the encrypted blob
// and KeyRef at the wrapped key held by the vault.
type Document struct {
	// ID is the unique identifier for the document, stable across versions.
	ID string

	// OwnerID identifies the user that uploaded the document.
	OwnerID string

	// Version is a monotonic integer bumped on each re-upload.
	Version int

	// Title is the original filename or a human-readable title.
	Title string

	// ContentType is the declared MIME type of the uploaded bytes.
	ContentType string

	// CiphertextRef points into the blob store.
	CiphertextRef string

	// KeyRef points at the wrapped document key in the vault.
	KeyRef string

	// Status is the durable pipeline state for this version.
	Status DocumentStatus

	// CreatedAt is when this version was uploaded.
	CreatedAt time.Time

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// Queryable reports whether this document version may serve retrievals.
func (d *Document) Queryable() bool {
	return d.Status == StatusReady
}

// Chunk represents a bounded span of a document's extracted text.
// Chunk identity is a pure function of (document, version, offset), so
// re-running extraction on unchanged bytes reproduces identical IDs.
type Chunk struct {
	// ID is the deterministic chunk identifier, see ChunkID.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Version is the document version this chunk belongs to.
	Version int

	// Ordinal is the position of the chunk within the version, 0-based.
	Ordinal int

	// Offset is the start of the span in the extracted plain text.
	Offset int

	// Length is the span length in bytes.
	Length int

	// Content is the chunk text. Pipeline-only: stores persist span
	// coordinates and never the text, which stays inside the encrypted blob.
	Content string
}

// ChunkID derives the deterministic identifier for a chunk span.
// It is the idempotency key for the whole pipeline: replaying a stage
// upserts the same IDs instead of duplicating records.
func ChunkID(documentID string, version, offset int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", documentID, version, offset)))
	return hex.EncodeToString(sum[:])
}

// VectorMeta is the metadata carried alongside an embedding in the index.
type VectorMeta struct {
	// DocumentID is a non-owning reference to the source document.
	DocumentID string

	// OwnerID scopes the record for query isolation.
	OwnerID string

	// Version is the document version the record belongs to.
	Version int

	// Ordinal mirrors the chunk ordinal for ranked output.
	Ordinal int
}

// VectorRecord is a chunk embedding owned exclusively by the vector index.
type VectorRecord struct {
	// ChunkID is the deterministic chunk identifier.
	ChunkID string

	// Embedding is the fixed-dimension vector for the chunk.
	Embedding []float32

	// Meta carries the owner/document scope of the record.
	Meta VectorMeta
}
