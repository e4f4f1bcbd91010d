package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
	"github.com/custodia-labs/docvault/internal/core/ports/driving"
	"github.com/custodia-labs/docvault/internal/logger"
)

// DefaultTopK is the result count when the caller does not ask for one.
const DefaultTopK = 5

// Configuration keys read by the query service.
const (
	keyFreeEmptyQuery = "ledger.free_empty_query"
	keyChargeDenied   = "ledger.charge_denied_query"
)

// queryOverfetchRatio widens the index query so hits dropped by the
// eligibility re-check can be replaced by lower-ranked eligible ones.
const queryOverfetchRatio = 2

// Ensure Query implements the interfaces.
var (
	_ driving.QueryService    = (*Query)(nil)
	_ driving.DocumentService = (*Query)(nil)
)

// Query answers retrieval queries scoped to one owner's ready documents.
//
// The index answers with chunk IDs only; snippet text is resolved on demand
// by decrypting the source blob and slicing the manifest spans, so plaintext
// never rests outside the vault.
type Query struct {
	docs     driven.DocumentStore
	embedder driven.EmbeddingService
	vectors  driven.VectorIndex
	ledger   driving.LedgerService
	config   driven.ConfigStore
	resolver contentResolver
}

// NewQuery creates the query service.
func NewQuery(
	docs driven.DocumentStore,
	blobs driven.BlobStore,
	crypto driven.Encryptor,
	extractors driven.ExtractorRegistry,
	embedder driven.EmbeddingService,
	vectors driven.VectorIndex,
	ledger driving.LedgerService,
	config driven.ConfigStore,
) *Query {
	return &Query{
		docs:     docs,
		embedder: embedder,
		vectors:  vectors,
		ledger:   ledger,
		config:   config,
		resolver: contentResolver{blobs: blobs, crypto: crypto, extractors: extractors},
	}
}

// Query charges the retrieval cost, embeds the text and returns the ranked
// chunks most similar to it. An empty result is valid, not an error.
func (q *Query) Query(ctx context.Context, ownerID, text string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("query text required: %w", domain.ErrInvalidInput)
	}
	k := opts.K
	if k <= 0 {
		k = DefaultTopK
	}

	cost := q.ledger.Cost(domain.ActionQuery)
	if _, err := q.ledger.Charge(ctx, ownerID, domain.ActionQuery, "", cost); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredit) {
			q.chargeDenied(ctx, ownerID, cost)
		}
		return nil, err
	}

	logger.Section("Query")
	logger.Debug("query owner=%s k=%d", ownerID, k)

	embedding, err := q.embedder.Embed(ctx, text)
	if err != nil {
		q.refund(ctx, ownerID, cost, "query failed before search")
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// Overfetch so that hits dropped by the eligibility re-check do not
	// shrink the result below k when more eligible hits exist.
	hits, err := q.vectors.Query(ctx, embedding, k*queryOverfetchRatio, driven.VectorFilter{
		OwnerID:     ownerID,
		DocumentIDs: opts.DocumentIDs,
	})
	if err != nil {
		q.refund(ctx, ownerID, cost, "query failed before search")
		return nil, fmt.Errorf("searching index: %w", err)
	}

	results, err := q.hydrate(ctx, ownerID, hits, k)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 && q.config != nil && q.config.GetBool(keyFreeEmptyQuery) {
		q.refund(ctx, ownerID, cost, "empty query result")
	}

	logger.Debug("query owner=%s hits=%d returned=%d", ownerID, len(hits), len(results))
	return results, nil
}

// hydrate re-checks hit eligibility against the document store and resolves
// snippet text. The index result is advisory; only hits whose document is
// ready, current and owned by the caller survive.
func (q *Query) hydrate(ctx context.Context, ownerID string, hits []driven.VectorHit, k int) ([]domain.RetrievedChunk, error) {
	type docState struct {
		doc      *domain.Document
		text     string
		resolved bool
		dead     bool
	}
	cache := make(map[string]*docState)

	state := func(documentID string) (*docState, error) {
		if s, ok := cache[documentID]; ok {
			return s, nil
		}
		s := &docState{}
		cache[documentID] = s

		doc, err := q.docs.GetDocument(ctx, documentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.dead = true
				return s, nil
			}
			return nil, fmt.Errorf("loading document %s: %w", documentID, err)
		}
		if doc.OwnerID != ownerID || !doc.Queryable() {
			s.dead = true
			return s, nil
		}
		s.doc = doc
		return s, nil
	}

	var results []domain.RetrievedChunk
	for _, hit := range hits {
		if len(results) >= k {
			break
		}

		s, err := state(hit.Meta.DocumentID)
		if err != nil {
			return nil, err
		}
		if s.dead || s.doc.Version != hit.Meta.Version {
			// Stale index entry; the document moved on.
			continue
		}

		if !s.resolved {
			text, err := q.resolver.text(ctx, s.doc)
			if err != nil {
				if errors.Is(err, domain.ErrKeyRevoked) {
					logger.Warn("skipping revoked document %s", s.doc.ID)
					s.dead = true
					continue
				}
				return nil, err
			}
			s.text = text
			s.resolved = true
		}

		chunk, err := q.docs.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("indexed chunk %s has no manifest row: %w", hit.ChunkID, domain.ErrConsistency)
			}
			return nil, fmt.Errorf("loading chunk %s: %w", hit.ChunkID, err)
		}

		content, err := span(s.text, chunk.Offset, chunk.Length)
		if err != nil {
			return nil, err
		}

		results = append(results, domain.RetrievedChunk{
			ChunkID:    hit.ChunkID,
			DocumentID: chunk.DocumentID,
			Version:    chunk.Version,
			Ordinal:    chunk.Ordinal,
			Content:    content,
			Score:      hit.Similarity,
		})
	}
	return results, nil
}

// chargeDenied applies the denied-query policy: by default a denied query
// costs nothing beyond the denial record, but with charge_denied_query set
// the remaining balance is debited up to the query cost.
func (q *Query) chargeDenied(ctx context.Context, ownerID string, cost int64) {
	if q.config == nil || !q.config.GetBool(keyChargeDenied) {
		return
	}
	if _, err := q.ledger.Drain(ctx, ownerID, domain.ActionQuery, "", cost); err != nil {
		logger.Warn("draining balance for denied query owner=%s: %v", ownerID, err)
	}
}

func (q *Query) refund(ctx context.Context, ownerID string, amount int64, reason string) {
	if amount <= 0 {
		return
	}
	if _, err := q.ledger.Refund(ctx, ownerID, amount, reason); err != nil {
		logger.Warn("refunding %d to %s: %v", amount, ownerID, err)
	}
}

// ==================== Document Listing ====================

// List returns the current versions of the owner's documents, most recently
// updated first. Deleted documents are excluded.
func (q *Query) List(ctx context.Context, ownerID string) ([]domain.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}

	docs, err := q.docs.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	kept := docs[:0]
	for _, d := range docs {
		if d.Status != domain.StatusDeleted {
			kept = append(kept, d)
		}
	}
	sort.Slice(kept, func(a, b int) bool {
		return kept[a].UpdatedAt.After(kept[b].UpdatedAt)
	})
	return kept, nil
}

// Get retrieves the current version of a document. Other owners learn
// nothing, not even existence.
func (q *Query) Get(ctx context.Context, ownerID, documentID string) (*domain.Document, error) {
	if ownerID == "" || documentID == "" {
		return nil, fmt.Errorf("owner and document id required: %w", domain.ErrInvalidInput)
	}

	doc, err := q.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID || doc.Status == domain.StatusDeleted {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return doc, nil
}
