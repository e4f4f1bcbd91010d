package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
)

// contentResolver reconstructs the plain text of a stored document version.
//
// Chunk text is never persisted in the clear, only span coordinates are.
// Resolution decrypts the blob and re-runs extraction; extraction is
// deterministic, so the recorded spans index into the reproduced text.
type contentResolver struct {
	blobs      driven.BlobStore
	crypto     driven.Encryptor
	extractors driven.ExtractorRegistry
}

// text decrypts and re-extracts the plain text for one document version.
// A missing blob behind a committed reference is a consistency violation,
// not a lookup miss. Revoked keys fail with domain.ErrKeyRevoked.
func (r *contentResolver) text(ctx context.Context, doc *domain.Document) (string, error) {
	ciphertext, err := r.blobs.Get(ctx, doc.CiphertextRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("blob %s missing for document %s v%d: %w",
				doc.CiphertextRef, doc.ID, doc.Version, domain.ErrConsistency)
		}
		return "", fmt.Errorf("loading blob %s: %w", doc.CiphertextRef, err)
	}

	plaintext, err := r.crypto.Decrypt(ctx, doc.KeyRef, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypting document %s v%d: %w", doc.ID, doc.Version, err)
	}

	extractor, err := r.extractors.ForMIMEType(doc.ContentType)
	if err != nil {
		return "", fmt.Errorf("extractor for %s: %w", doc.ContentType, err)
	}

	result, err := extractor.Extract(ctx, plaintext, doc.ContentType)
	if err != nil {
		return "", fmt.Errorf("extracting document %s v%d: %w", doc.ID, doc.Version, err)
	}
	return result.Text, nil
}

// span slices one chunk span out of resolved text. A span pointing past the
// end of the text means the manifest and the blob disagree.
func span(text string, offset, length int) (string, error) {
	if offset < 0 || length < 0 || offset+length > len(text) {
		return "", fmt.Errorf("span [%d,%d) outside text of %d bytes: %w",
			offset, offset+length, len(text), domain.ErrConsistency)
	}
	return text[offset : offset+length], nil
}
