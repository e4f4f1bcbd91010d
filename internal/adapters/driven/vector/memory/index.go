// Package memory provides an in-process brute-force vector index.
//
// Exact cosine scan over all records of one owner. Fine for the corpus
// sizes a single vault holds; swapping in an ANN-backed index only needs
// another VectorIndex implementation.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index is a thread-safe in-memory vector index.
type Index struct {
	mu      sync.RWMutex
	records map[string]domain.VectorRecord
}

// New creates an empty index.
func New() *Index {
	return &Index{
		records: make(map[string]domain.VectorRecord),
	}
}

// Upsert inserts or replaces records by chunk ID.
func (idx *Index) Upsert(_ context.Context, records []domain.VectorRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, r := range records {
		if r.ChunkID == "" {
			return fmt.Errorf("record without chunk ID: %w", domain.ErrInvalidInput)
		}
		if len(r.Embedding) == 0 {
			return fmt.Errorf("record %s without embedding: %w", r.ChunkID, domain.ErrInvalidInput)
		}
		idx.records[r.ChunkID] = r
	}
	return nil
}

// Query scans the owner's records and returns the top k by cosine
// similarity, ties broken by ascending chunk ID.
func (idx *Index) Query(_ context.Context, embedding []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error) {
	if filter.OwnerID == "" {
		return nil, fmt.Errorf("query without owner: %w", domain.ErrInvalidInput)
	}
	if k <= 0 {
		return nil, nil
	}

	var docFilter map[string]struct{}
	if len(filter.DocumentIDs) > 0 {
		docFilter = make(map[string]struct{}, len(filter.DocumentIDs))
		for _, id := range filter.DocumentIDs {
			docFilter[id] = struct{}{}
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var hits []driven.VectorHit
	for _, r := range idx.records {
		if r.Meta.OwnerID != filter.OwnerID {
			continue
		}
		if docFilter != nil {
			if _, ok := docFilter[r.Meta.DocumentID]; !ok {
				continue
			}
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    r.ChunkID,
			Meta:       r.Meta,
			Similarity: cosine(embedding, r.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteVersion removes all records for one document version.
func (idx *Index) DeleteVersion(_ context.Context, documentID string, version int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for id, r := range idx.records {
		if r.Meta.DocumentID == documentID && r.Meta.Version == version {
			delete(idx.records, id)
		}
	}
	return nil
}

// DeleteDocument removes every version of a document.
func (idx *Index) DeleteDocument(_ context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for id, r := range idx.records {
		if r.Meta.DocumentID == documentID {
			delete(idx.records, id)
		}
	}
	return nil
}

// Len returns the number of stored records.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// Close releases resources.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records = make(map[string]domain.VectorRecord)
	return nil
}

// cosine computes cosine similarity between two vectors. Mismatched
// dimensions or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
