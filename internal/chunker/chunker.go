// Package chunker splits extracted text into overlapping, bounded-size
// chunks with deterministic identifiers.
//
// Chunk spans are a pure function of the input text and the chunker
// configuration: re-running on unchanged input reproduces identical IDs and
// spans, which makes every downstream stage safely replayable.
package chunker

import (
	"strings"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Chunker splits document content into overlapping chunks, preferring to
// break at sentence or section boundaries.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a new chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must stay strictly below the chunk size
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}

	return c
}

// ChunkSize returns the configured target size.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into ordered chunks for one document version.
//
// The span end of chunk i and the span start of chunk i+1 always overlap by
// exactly the configured overlap. A chunk end prefers the last atomic-unit
// boundary (sentence end or section start) inside the target window; when a
// unit is longer than the chunk size it is emitted as one oversized chunk
// rather than being split. Whitespace-only spans are dropped. Empty text
// yields an empty sequence, not an error.
func (c *Chunker) Chunk(documentID string, version int, text string, structure domain.Structure) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	bounds := boundaries(text, structure)
	textLen := len(text)

	var chunks []domain.Chunk
	ordinal := 0
	start := 0

	for start < textLen {
		end := start + c.chunkSize
		if end >= textLen {
			end = textLen
		} else {
			end = c.snapEnd(bounds, start, end, textLen)
		}

		content := text[start:end]
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:         domain.ChunkID(documentID, version, start),
				DocumentID: documentID,
				Version:    version,
				Ordinal:    ordinal,
				Offset:     start,
				Length:     end - start,
				Content:    content,
			})
			ordinal++
		}

		if end >= textLen {
			break
		}
		start = end - c.overlap
	}

	return chunks
}

// snapEnd moves the tentative chunk end back to the last boundary inside the
// snap window, or forward to the end of an oversized atomic unit when no
// boundary falls inside the window at all.
func (c *Chunker) snapEnd(bounds []int, start, end, textLen int) int {
	window := c.chunkSize / 5

	// A usable boundary must leave forward progress after the overlap is
	// subtracted for the next start.
	minEnd := start + c.overlap + 1
	if floor := end - window; floor > minEnd {
		minEnd = floor
	}

	best := -1
	for _, b := range bounds {
		if b > end {
			break
		}
		if b >= minEnd {
			best = b
		}
	}
	if best > 0 {
		return best
	}

	// No boundary inside the window: the current unit is oversized.
	// Extend to its end instead of truncating it mid-unit.
	for _, b := range bounds {
		if b > end {
			return b
		}
	}
	return textLen
}

// boundaries returns ascending atomic-unit boundary offsets: positions just
// after a sentence terminator, after a blank line, and at section starts.
func boundaries(text string, structure domain.Structure) []int {
	var out []int

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) && isSpace(text[i+1]) {
				out = append(out, i+1)
			}
		case '\n':
			if i+1 < len(text) && text[i+1] == '\n' {
				out = append(out, i+2)
			}
		}
	}

	for _, s := range structure.Sections {
		if s.Offset > 0 && s.Offset < len(text) {
			out = insertSorted(out, s.Offset)
		}
	}

	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func insertSorted(sorted []int, v int) []int {
	lo, hi := 0, len(sorted)
	for lo < hi {
		mid := (lo + hi) / 2
		if sorted[mid] < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(sorted) && sorted[lo] == v {
		return sorted
	}
	sorted = append(sorted, 0)
	copy(sorted[lo+1:], sorted[lo:])
	sorted[lo] = v
	return sorted
}
