package extractors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps MIME types to extractors. When several extractors claim
// the same MIME type the one with the highest priority wins.
type Registry struct {
	mu     sync.RWMutex
	byMIME map[string][]driven.Extractor
}

// NewRegistry creates an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		byMIME: make(map[string][]driven.Extractor),
	}
}

// Register adds an extractor for every MIME type it supports.
func (r *Registry) Register(e driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mt := range e.SupportedMIMETypes() {
		r.byMIME[mt] = append(r.byMIME[mt], e)
	}
}

// ForMIMEType returns the highest-priority extractor for the MIME type.
// Parameters like "; charset=utf-8" are stripped before matching.
func (r *Registry) ForMIMEType(mimeType string) (driven.Extractor, error) {
	mt := normalizeMIME(mimeType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.byMIME[mt]
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no extractor for %q: %w", mimeType, domain.ErrUnsupportedFormat)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority() > best.Priority() {
			best = c
		}
	}
	return best, nil
}

// normalizeMIME lowercases the type and drops any parameters.
func normalizeMIME(mimeType string) string {
	mt := mimeType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
