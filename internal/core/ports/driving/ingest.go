package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

// IngestOrchestrator coordinates the asynchronous ingestion pipeline.
//
// Ingest returns as soon as the upload is durably persisted; the pipeline
// stages run in the background and progress is polled through Status.
type IngestOrchestrator interface {
	// Ingest charges the owner, encrypts and persists the upload, and starts
	// the pipeline for a new document version. Re-uploading an existing
	// document ID bumps the version.
	Ingest(ctx context.Context, req IngestRequest) (*IngestHandle, error)

	// Status returns the pipeline state for an ingestion run.
	Status(ctx context.Context, runID string) (*IngestStatus, error)

	// Cancel aborts an in-flight run; the document version is marked failed
	// and partial artifacts are cleaned up.
	Cancel(ctx context.Context, runID string) error

	// Delete soft-deletes a document: status flips to deleted, vectors are
	// tombstoned, the key is revoked, blob removal runs in the background.
	Delete(ctx context.Context, ownerID, documentID string) error

	// Recover resumes pipelines left in a non-terminal state by a crash.
	Recover(ctx context.Context) error

	// Wait blocks until all in-flight runs finish. For shutdown and tests.
	Wait()
}

// IngestRequest describes one upload.
type IngestRequest struct {
	// OwnerID identifies the uploading user.
	OwnerID string

	// DocumentID is optional; empty means a new document, otherwise a
	// re-upload of an existing document (version bump).
	DocumentID string

	// Title is the original filename.
	Title string

	// ContentType is the declared MIME type.
	ContentType string

	// Data is the raw file content.
	Data []byte
}

// IngestHandle tracks an accepted ingestion run.
type IngestHandle struct {
	// RunID identifies the pipeline run.
	RunID string

	// DocumentID is the document being ingested.
	DocumentID string

	// Version is the version this run produces.
	Version int
}

// IngestStatus is a point-in-time snapshot of a run.
type IngestStatus struct {
	// RunID identifies the pipeline run.
	RunID string

	// DocumentID is the document being ingested.
	DocumentID string

	// Version is the version this run produces.
	Version int

	// Status is the last durable document status.
	Status domain.DocumentStatus

	// Chunks is the number of chunks produced so far.
	Chunks int

	// Err is the failure message when Status is failed.
	Err string

	// StartedAt is when the run was accepted.
	StartedAt time.Time
}
