package driven

import "context"

// BlobStore persists encrypted document bytes.
//
// Writes are staged and committed atomically (write to a temporary file,
// then rename): a crash mid-write never leaves a partial blob behind a
// committed reference.
type BlobStore interface {
	// Put stores the blob and returns its reference.
	Put(ctx context.Context, ref string, data []byte) error

	// Get retrieves a blob by reference.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes a blob. Deleting a missing blob is not an error;
	// tombstone cleanup may run more than once.
	Delete(ctx context.Context, ref string) error
}
