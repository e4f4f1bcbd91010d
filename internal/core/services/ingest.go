package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
	"github.com/custodia-labs/docvault/internal/core/ports/driving"
	"github.com/custodia-labs/docvault/internal/logger"
)

// Per-stage timeouts for adapter calls. No pipeline stage blocks forever.
const (
	extractTimeout = 30 * time.Second
	embedTimeout   = 2 * time.Minute
	cleanupTimeout = 30 * time.Second
)

// Chunker splits extracted text into deterministic spans.
type Chunker interface {
	Chunk(documentID string, version int, text string, structure domain.Structure) []domain.Chunk
}

// Ensure Ingestor implements the interface.
var _ driving.IngestOrchestrator = (*Ingestor)(nil)

// Ingestor drives the asynchronous ingestion pipeline.
//
// Ingest charges the owner, persists the encrypted upload and returns a run
// handle; a worker goroutine then advances the document through
// uploaded -> extracting -> chunked -> embedded -> ready, persisting each
// stage before the status moves. Stages are idempotent: chunk IDs are a pure
// function of (document, version, offset), so a resumed run upserts in place
// instead of duplicating artifacts.
type Ingestor struct {
	docs       driven.DocumentStore
	blobs      driven.BlobStore
	crypto     driven.Encryptor
	extractors driven.ExtractorRegistry
	chunker    Chunker
	embedder   driven.EmbeddingService
	vectors    driven.VectorIndex
	ledger     driving.LedgerService
	resolver   contentResolver
	retry      retryConfig

	mu     sync.Mutex
	runs   map[string]*run
	active map[string]string // document ID -> run ID, single flight
	wg     sync.WaitGroup
}

// run tracks one in-flight or finished pipeline run.
type run struct {
	id          string
	documentID  string
	version     int
	prevVersion int
	startedAt   time.Time
	cancel      context.CancelFunc

	mu     sync.Mutex
	status domain.DocumentStatus
	chunks int
	errMsg string
	done   bool
}

func (r *run) snapshot() *driving.IngestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &driving.IngestStatus{
		RunID:      r.id,
		DocumentID: r.documentID,
		Version:    r.version,
		Status:     r.status,
		Chunks:     r.chunks,
		Err:        r.errMsg,
		StartedAt:  r.startedAt,
	}
}

func (r *run) setStatus(s domain.DocumentStatus) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// NewIngestor creates the ingestion orchestrator.
func NewIngestor(
	docs driven.DocumentStore,
	blobs driven.BlobStore,
	crypto driven.Encryptor,
	extractors driven.ExtractorRegistry,
	chunker Chunker,
	embedder driven.EmbeddingService,
	vectors driven.VectorIndex,
	ledger driving.LedgerService,
) *Ingestor {
	return &Ingestor{
		docs:       docs,
		blobs:      blobs,
		crypto:     crypto,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		vectors:    vectors,
		ledger:     ledger,
		resolver:   contentResolver{blobs: blobs, crypto: crypto, extractors: extractors},
		retry:      defaultRetry,
		runs:       make(map[string]*run),
		active:     make(map[string]string),
	}
}

// Ingest charges the owner, encrypts and persists the upload, and starts the
// pipeline for a new document version.
func (i *Ingestor) Ingest(ctx context.Context, req driving.IngestRequest) (*driving.IngestHandle, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	if req.ContentType == "" {
		return nil, fmt.Errorf("content type required: %w", domain.ErrInvalidInput)
	}
	if strings.ContainsAny(req.DocumentID, "/\\") {
		return nil, fmt.Errorf("document id %q: %w", req.DocumentID, domain.ErrInvalidInput)
	}

	// Unsupported formats are rejected before any charge.
	if _, err := i.extractors.ForMIMEType(req.ContentType); err != nil {
		return nil, err
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.New().String()
	}

	prev, err := i.docs.CurrentVersion(ctx, docID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("resolving current version of %s: %w", docID, err)
	}
	if prev > 0 {
		// Re-uploads stay with the original owner.
		cur, err := i.docs.GetDocument(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("loading document %s: %w", docID, err)
		}
		if cur.OwnerID != req.OwnerID {
			return nil, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
		}
	}
	version := prev + 1

	i.mu.Lock()
	if runID, busy := i.active[docID]; busy {
		i.mu.Unlock()
		return nil, fmt.Errorf("document %s already ingesting (run %s): %w", docID, runID, domain.ErrIngestInProgress)
	}
	runID := uuid.New().String()
	i.active[docID] = runID
	i.mu.Unlock()

	release := func() {
		i.mu.Lock()
		delete(i.active, docID)
		i.mu.Unlock()
	}

	cost := i.ledger.Cost(domain.ActionIngest)
	if _, err := i.ledger.Charge(ctx, req.OwnerID, domain.ActionIngest, docID, cost); err != nil {
		release()
		return nil, err
	}

	ciphertext, keyRef, err := i.crypto.Encrypt(ctx, req.OwnerID, req.Data)
	if err != nil {
		release()
		i.refund(req.OwnerID, cost, "ingest failed before upload persisted")
		return nil, fmt.Errorf("encrypting upload: %w", err)
	}

	ref := fmt.Sprintf("%s.v%d", docID, version)
	if err := i.blobs.Put(ctx, ref, ciphertext); err != nil {
		release()
		i.refund(req.OwnerID, cost, "ingest failed before upload persisted")
		return nil, fmt.Errorf("persisting blob: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:            docID,
		OwnerID:       req.OwnerID,
		Version:       version,
		Title:         req.Title,
		ContentType:   req.ContentType,
		CiphertextRef: ref,
		KeyRef:        keyRef,
		Status:        domain.StatusUploaded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := i.docs.SaveDocument(ctx, doc); err != nil {
		release()
		i.refund(req.OwnerID, cost, "ingest failed before upload persisted")
		if derr := i.blobs.Delete(ctx, ref); derr != nil {
			logger.Warn("orphan blob %s left after failed save: %v", ref, derr)
		}
		return nil, fmt.Errorf("saving document %s v%d: %w", docID, version, err)
	}

	r := i.register(runID, doc, prev)
	i.spawn(r, doc, req.Data, cost)

	logger.Debug("ingest accepted doc=%s version=%d run=%s", docID, version, runID)
	return &driving.IngestHandle{RunID: runID, DocumentID: docID, Version: version}, nil
}

// Status returns the pipeline state for an ingestion run.
func (i *Ingestor) Status(ctx context.Context, runID string) (*driving.IngestStatus, error) {
	i.mu.Lock()
	r, ok := i.runs[runID]
	i.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return r.snapshot(), nil
}

// Cancel aborts an in-flight run. The worker observes the cancellation and
// marks the version failed; partial artifacts are cleaned up there.
func (i *Ingestor) Cancel(ctx context.Context, runID string) error {
	i.mu.Lock()
	r, ok := i.runs[runID]
	i.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	r.mu.Lock()
	finished := r.done
	r.mu.Unlock()
	if finished {
		return nil
	}
	r.cancel()
	return nil
}

// Delete soft-deletes a document: status flips to deleted, vectors are
// removed, the key is revoked. Blob removal runs in the background so the
// call never blocks on the filesystem.
func (i *Ingestor) Delete(ctx context.Context, ownerID, documentID string) error {
	doc, err := i.docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	// Other owners learn nothing, not even existence.
	if doc.OwnerID != ownerID {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}

	cost := i.ledger.Cost(domain.ActionDelete)
	if _, err := i.ledger.Charge(ctx, ownerID, domain.ActionDelete, documentID, cost); err != nil {
		return err
	}

	if err := i.docs.UpdateStatus(ctx, documentID, doc.Version, doc.Status, domain.StatusDeleted); err != nil {
		i.refund(ownerID, cost, "delete rejected")
		return err
	}

	// Row pointer is gone first; the blob after. An orphan blob is
	// harmless and reconcilable, the reverse is not.
	if err := i.vectors.DeleteDocument(ctx, documentID); err != nil {
		logger.Warn("deleting vectors for %s: %v", documentID, err)
	}
	if err := i.docs.DeleteChunks(ctx, documentID, doc.Version); err != nil {
		logger.Warn("deleting chunks for %s v%d: %v", documentID, doc.Version, err)
	}
	if err := i.crypto.Revoke(ctx, doc.KeyRef); err != nil {
		logger.Warn("revoking key for %s: %v", documentID, err)
	}

	ref := doc.CiphertextRef
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		bg, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := i.blobs.Delete(bg, ref); err != nil {
			logger.Warn("removing blob %s: %v", ref, err)
		}
	}()

	logger.Debug("deleted doc=%s version=%d", documentID, doc.Version)
	return nil
}

// Recover resumes pipelines left in a non-terminal state by a crash and
// rebuilds the in-memory vector index from ready documents.
func (i *Ingestor) Recover(ctx context.Context) error {
	stuck, err := i.docs.ListByStatus(ctx,
		domain.StatusUploaded, domain.StatusExtracting, domain.StatusChunked, domain.StatusEmbedded)
	if err != nil {
		return fmt.Errorf("listing interrupted documents: %w", err)
	}

	for idx := range stuck {
		doc := stuck[idx]
		if err := i.resume(ctx, &doc); err != nil {
			logger.Warn("resuming doc=%s version=%d: %v", doc.ID, doc.Version, err)
		}
	}

	if err := i.rebuildIndex(ctx); err != nil {
		return err
	}
	return nil
}

// Wait blocks until all in-flight runs finish.
func (i *Ingestor) Wait() {
	i.wg.Wait()
}

// ==================== Pipeline ====================

// register records a new run under the single-flight entry already held.
func (i *Ingestor) register(runID string, doc *domain.Document, prevVersion int) *run {
	r := &run{
		id:          runID,
		documentID:  doc.ID,
		version:     doc.Version,
		prevVersion: prevVersion,
		startedAt:   time.Now().UTC(),
		status:      doc.Status,
	}
	i.mu.Lock()
	i.runs[runID] = r
	i.mu.Unlock()
	return r
}

// spawn starts the background worker for a registered run. The worker gets
// its own context so the pipeline outlives the accepting request.
func (i *Ingestor) spawn(r *run, doc *domain.Document, data []byte, charged int64) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer cancel()
		defer func() {
			i.mu.Lock()
			if i.active[doc.ID] == r.id {
				delete(i.active, doc.ID)
			}
			i.mu.Unlock()
			r.mu.Lock()
			r.done = true
			r.mu.Unlock()
		}()

		if err := i.pipeline(ctx, r, doc, data); err != nil {
			i.fail(r, doc, charged, err)
		}
	}()
}

// pipeline advances one document version from its current durable status to
// ready. Each stage persists its artifacts before the status moves, so a
// crash resumes from the last completed stage.
func (i *Ingestor) pipeline(ctx context.Context, r *run, doc *domain.Document, data []byte) error {
	status := doc.Status
	var chunks []domain.Chunk

	if status == domain.StatusUploaded {
		if err := i.advance(ctx, r, domain.StatusUploaded, domain.StatusExtracting); err != nil {
			return err
		}
		status = domain.StatusExtracting
	}

	if status == domain.StatusExtracting {
		text, structure, err := i.extract(ctx, doc, data)
		if err != nil {
			return err
		}

		chunks = i.chunker.Chunk(doc.ID, doc.Version, text, structure)
		// A crashed run at this version may have saved a manifest for
		// different content. The manifest must mirror exactly this extraction.
		if err := i.docs.DeleteChunks(ctx, doc.ID, doc.Version); err != nil {
			return fmt.Errorf("clearing stale chunk manifest: %w", err)
		}
		if err := i.docs.SaveChunks(ctx, chunks); err != nil {
			return fmt.Errorf("saving chunk manifest: %w", err)
		}
		r.mu.Lock()
		r.chunks = len(chunks)
		r.mu.Unlock()

		if err := i.advance(ctx, r, domain.StatusExtracting, domain.StatusChunked); err != nil {
			return err
		}
		status = domain.StatusChunked
		logger.Debug("chunked doc=%s version=%d chunks=%d", doc.ID, doc.Version, len(chunks))
	}

	if status == domain.StatusChunked {
		if chunks == nil {
			// Resumed run: reproduce the chunk text from the manifest spans.
			text, structure, err := i.extract(ctx, doc, data)
			if err != nil {
				return err
			}
			chunks = i.chunker.Chunk(doc.ID, doc.Version, text, structure)
			r.mu.Lock()
			r.chunks = len(chunks)
			r.mu.Unlock()
		}

		if err := i.embed(ctx, doc, chunks); err != nil {
			return err
		}
		if err := i.advance(ctx, r, domain.StatusChunked, domain.StatusEmbedded); err != nil {
			return err
		}
		status = domain.StatusEmbedded
	}

	if status == domain.StatusEmbedded {
		// Ready before the pointer flips: the version queries resolve to is
		// never mid-pipeline, so re-ingestion has no query-time gap.
		if err := i.advance(ctx, r, domain.StatusEmbedded, domain.StatusReady); err != nil {
			return err
		}
		if err := i.docs.SetCurrentVersion(ctx, doc.ID, doc.Version); err != nil {
			return fmt.Errorf("flipping current version of %s to %d: %w", doc.ID, doc.Version, err)
		}
		i.cleanupSuperseded(r, doc)
	}

	logger.Debug("ingest complete doc=%s version=%d", doc.ID, doc.Version)
	return nil
}

// extract runs the extractor for the document under the stage timeout.
// Extraction is deterministic, so failures are not retried.
func (i *Ingestor) extract(ctx context.Context, doc *domain.Document, data []byte) (string, domain.Structure, error) {
	extractor, err := i.extractors.ForMIMEType(doc.ContentType)
	if err != nil {
		return "", domain.Structure{}, err
	}

	stageCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	result, err := extractor.Extract(stageCtx, data, doc.ContentType)
	if err != nil {
		return "", domain.Structure{}, fmt.Errorf("extracting %s v%d: %w", doc.ID, doc.Version, err)
	}
	return result.Text, result.Structure, nil
}

// embed generates vectors for all chunks and upserts them into the index.
// Transient provider outages are retried with bounded backoff; provider
// rejections of the input are not.
func (i *Ingestor) embed(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Content
	}

	var embeddings [][]float32
	err := withRetry(ctx, i.retry, "embed", func(err error) bool {
		return errors.Is(err, domain.ErrEmbeddingUnavailable)
	}, func(ctx context.Context) error {
		stageCtx, cancel := context.WithTimeout(ctx, embedTimeout)
		defer cancel()
		var err error
		embeddings, err = i.embedder.EmbedBatch(stageCtx, texts)
		return err
	})
	if err != nil {
		return err
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count %d for %d chunks: %w", len(embeddings), len(chunks), domain.ErrEmbedding)
	}

	records := make([]domain.VectorRecord, len(chunks))
	for n, c := range chunks {
		records[n] = domain.VectorRecord{
			ChunkID:   c.ID,
			Embedding: embeddings[n],
			Meta: domain.VectorMeta{
				DocumentID: c.DocumentID,
				OwnerID:    doc.OwnerID,
				Version:    c.Version,
				Ordinal:    c.Ordinal,
			},
		}
	}
	if err := i.vectors.Upsert(ctx, records); err != nil {
		return fmt.Errorf("indexing %d vectors: %w", len(records), err)
	}
	return nil
}

// advance applies one durable status transition and mirrors it on the run.
func (i *Ingestor) advance(ctx context.Context, r *run, from, to domain.DocumentStatus) error {
	if err := i.docs.UpdateStatus(ctx, r.documentID, r.version, from, to); err != nil {
		return fmt.Errorf("advancing %s v%d to %s: %w", r.documentID, r.version, to, err)
	}
	r.setStatus(to)
	return nil
}

// cleanupSuperseded removes the artifacts of the previously current version
// after the pointer has flipped. Best effort; leftovers are re-deletable.
func (i *Ingestor) cleanupSuperseded(r *run, doc *domain.Document) {
	if r.prevVersion <= 0 || r.prevVersion == doc.Version {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := i.vectors.DeleteVersion(ctx, doc.ID, r.prevVersion); err != nil {
		logger.Warn("removing superseded vectors %s v%d: %v", doc.ID, r.prevVersion, err)
	}
	if err := i.docs.DeleteChunks(ctx, doc.ID, r.prevVersion); err != nil {
		logger.Warn("removing superseded chunks %s v%d: %v", doc.ID, r.prevVersion, err)
	}

	old, err := i.docs.GetDocumentVersion(ctx, doc.ID, r.prevVersion)
	if err != nil {
		logger.Warn("loading superseded version %s v%d: %v", doc.ID, r.prevVersion, err)
		return
	}
	if err := i.docs.UpdateStatus(ctx, doc.ID, r.prevVersion, old.Status, domain.StatusDeleted); err != nil {
		logger.Warn("retiring superseded version %s v%d: %v", doc.ID, r.prevVersion, err)
	}
	if err := i.crypto.Revoke(ctx, old.KeyRef); err != nil {
		logger.Warn("revoking superseded key %s v%d: %v", doc.ID, r.prevVersion, err)
	}
	if err := i.blobs.Delete(ctx, old.CiphertextRef); err != nil {
		logger.Warn("removing superseded blob %s: %v", old.CiphertextRef, err)
	}
}

// fail marks the version failed, cleans up partial artifacts, records the
// failure in the audit trail and refunds the ingest charge.
func (i *Ingestor) fail(r *run, doc *domain.Document, charged int64, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	snap := r.snapshot()
	if err := i.docs.UpdateStatus(ctx, doc.ID, doc.Version, snap.Status, domain.StatusFailed); err != nil {
		logger.Warn("marking %s v%d failed: %v", doc.ID, doc.Version, err)
	}
	r.setStatus(domain.StatusFailed)
	r.mu.Lock()
	r.errMsg = cause.Error()
	r.mu.Unlock()

	// Failed is terminal: the version is never resumed, so its artifacts
	// can go now. Re-ingestion uploads fresh data under a fresh key.
	if err := i.vectors.DeleteVersion(ctx, doc.ID, doc.Version); err != nil {
		logger.Warn("removing vectors of failed %s v%d: %v", doc.ID, doc.Version, err)
	}
	if err := i.docs.DeleteChunks(ctx, doc.ID, doc.Version); err != nil {
		logger.Warn("removing chunk manifest of failed %s v%d: %v", doc.ID, doc.Version, err)
	}
	if err := i.crypto.Revoke(ctx, doc.KeyRef); err != nil {
		logger.Warn("revoking key of failed %s v%d: %v", doc.ID, doc.Version, err)
	}
	if err := i.blobs.Delete(ctx, doc.CiphertextRef); err != nil {
		logger.Warn("removing blob of failed %s v%d: %v", doc.ID, doc.Version, err)
	}
	if err := i.ledger.Record(ctx, doc.OwnerID, domain.ActionIngest, doc.ID, domain.ResultError, cause.Error()); err != nil {
		logger.Warn("recording ingest failure for %s: %v", doc.ID, err)
	}
	if charged > 0 {
		i.refund(doc.OwnerID, charged, fmt.Sprintf("ingest of %s v%d failed", doc.ID, doc.Version))
	}

	logger.Warn("ingest failed doc=%s version=%d: %v", doc.ID, doc.Version, cause)
}

// resume restarts the pipeline for a version left non-terminal by a crash.
func (i *Ingestor) resume(ctx context.Context, doc *domain.Document) error {
	i.mu.Lock()
	if _, busy := i.active[doc.ID]; busy {
		i.mu.Unlock()
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrIngestInProgress)
	}
	runID := uuid.New().String()
	i.active[doc.ID] = runID
	i.mu.Unlock()

	ciphertext, err := i.blobs.Get(ctx, doc.CiphertextRef)
	if err != nil {
		i.mu.Lock()
		delete(i.active, doc.ID)
		i.mu.Unlock()
		return fmt.Errorf("loading blob for resume: %w", err)
	}
	data, err := i.crypto.Decrypt(ctx, doc.KeyRef, ciphertext)
	if err != nil {
		i.mu.Lock()
		delete(i.active, doc.ID)
		i.mu.Unlock()
		return fmt.Errorf("decrypting for resume: %w", err)
	}

	prev, err := i.docs.CurrentVersion(ctx, doc.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		prev = 0
	}
	if prev == doc.Version {
		prev = 0
	}

	r := i.register(runID, doc, prev)
	// The charge for this version was taken before the crash; a resumed
	// failure must not refund it twice.
	i.spawn(r, doc, data, 0)

	logger.Debug("resumed doc=%s version=%d from=%s run=%s", doc.ID, doc.Version, doc.Status, runID)
	return nil
}

// rebuildIndex repopulates the volatile vector index from the chunk
// manifests of every current, ready document.
func (i *Ingestor) rebuildIndex(ctx context.Context) error {
	ready, err := i.docs.ListByStatus(ctx, domain.StatusReady)
	if err != nil {
		return fmt.Errorf("listing ready documents: %w", err)
	}

	for idx := range ready {
		doc := ready[idx]
		cur, err := i.docs.CurrentVersion(ctx, doc.ID)
		if err != nil || cur != doc.Version {
			continue
		}
		if err := i.reindex(ctx, &doc); err != nil {
			logger.Warn("rebuilding index for %s v%d: %v", doc.ID, doc.Version, err)
		}
	}
	return nil
}

// reindex re-embeds one document version from its manifest spans.
func (i *Ingestor) reindex(ctx context.Context, doc *domain.Document) error {
	spans, err := i.docs.GetChunks(ctx, doc.ID, doc.Version)
	if err != nil {
		return err
	}
	if len(spans) == 0 {
		return nil
	}

	text, err := i.resolver.text(ctx, doc)
	if err != nil {
		return err
	}
	for n := range spans {
		content, err := span(text, spans[n].Offset, spans[n].Length)
		if err != nil {
			return err
		}
		spans[n].Content = content
	}
	return i.embed(ctx, doc, spans)
}

// refund compensates a charge outside the caller's context lifetime.
func (i *Ingestor) refund(ownerID string, amount int64, reason string) {
	if amount <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if _, err := i.ledger.Refund(ctx, ownerID, amount, reason); err != nil {
		logger.Warn("refunding %d to %s: %v", amount, ownerID, err)
	}
}
