package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles plain text documents.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/yaml",
		"text/toml",
		"text/x-go",
		"text/x-python",
		"text/x-shellscript",
		"application/json",
		"application/xml",
	}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 5 // Fallback extractor
}

// Extract passes the bytes through as text. Binary input, detected by a
// NUL byte or invalid UTF-8, fails with domain.ErrExtraction. Plain text
// carries no section structure.
func (e *Extractor) Extract(_ context.Context, data []byte, mimeType string) (*driven.ExtractResult, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("binary content for %s: %w", mimeType, domain.ErrExtraction)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("invalid utf-8 for %s: %w", mimeType, domain.ErrExtraction)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	return &driven.ExtractResult{
		Text:      text,
		Structure: domain.Structure{},
	}, nil
}
