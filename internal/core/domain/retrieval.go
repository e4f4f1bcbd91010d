package domain

// QueryOptions configures a retrieval query.
type QueryOptions struct {
	// K is the maximum number of chunks to return.
	K int

	// DocumentIDs optionally restricts the search to specific documents.
	DocumentIDs []string
}

// RetrievedChunk is a single ranked retrieval hit, ready for a downstream
// generator.
type RetrievedChunk struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// DocumentID is the owning document.
	DocumentID string

	// Version is the document version the chunk belongs to.
	Version int

	// Ordinal is the chunk position within the document.
	Ordinal int

	// Content is the decrypted chunk text.
	Content string

	// Score is the cosine similarity of the hit (0-1).
	Score float64
}

// Structure describes the layout of extracted text. Section boundaries are
// treated as atomic-unit boundaries by the chunker.
type Structure struct {
	// Sections are the detected section offsets, ascending.
	Sections []Section
}

// Section is one structural unit of the extracted text.
type Section struct {
	// Title is the section heading, if any.
	Title string

	// Offset is the byte offset of the section start in the extracted text.
	Offset int

	// Length is the section length in bytes.
	Length int
}
