package driven

import (
	"context"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

// Extractor transforms raw uploaded bytes into plain text plus structural
// metadata. Each extractor handles specific MIME types; the pipeline treats
// it as an opaque capability and wraps calls with a timeout.
type Extractor interface {
	// SupportedMIMETypes returns the MIME types this extractor handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific extractors should return 50-89.
	// Fallback extractors should return 1-9.
	Priority() int

	// Extract converts raw bytes into plain text and structure.
	// Fails with domain.ErrExtraction on unreadable input.
	Extract(ctx context.Context, data []byte, mimeType string) (*ExtractResult, error)
}

// ExtractResult contains the output of extraction.
type ExtractResult struct {
	// Text is the full plain-text content.
	Text string

	// Structure describes sections detected in the text.
	Structure domain.Structure
}

// ExtractorRegistry selects an extractor for a MIME type.
type ExtractorRegistry interface {
	// Register adds an extractor to the registry.
	Register(e Extractor)

	// ForMIMEType returns the highest-priority extractor for the MIME type,
	// or domain.ErrUnsupportedFormat if none handles it.
	ForMIMEType(mimeType string) (Extractor, error)
}
