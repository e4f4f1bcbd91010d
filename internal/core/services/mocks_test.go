package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docvault/internal/adapters/driven/embedding/local"
	"github.com/custodia-labs/docvault/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/docvault/internal/chunker"
	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
	"github.com/custodia-labs/docvault/internal/extractors"
	"github.com/custodia-labs/docvault/internal/extractors/plaintext"
)

// ==================== In-Memory Document Store ====================

type memDocStore struct {
	mu      sync.Mutex
	docs    map[string]*domain.Document
	current map[string]int
	chunks  map[string][]domain.Chunk
}

var _ driven.DocumentStore = (*memDocStore)(nil)

func newMemDocStore() *memDocStore {
	return &memDocStore{
		docs:    make(map[string]*domain.Document),
		current: make(map[string]int),
		chunks:  make(map[string][]domain.Chunk),
	}
}

func verKey(documentID string, version int) string {
	return fmt.Sprintf("%s:%d", documentID, version)
}

func (s *memDocStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[verKey(doc.ID, doc.Version)] = &cp
	return nil
}

func (s *memDocStore) UpdateStatus(_ context.Context, documentID string, version int, from, to domain.DocumentStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[verKey(documentID, version)]
	if !ok {
		return fmt.Errorf("document %s v%d: %w", documentID, version, domain.ErrNotFound)
	}
	if doc.Status != from {
		return fmt.Errorf("status is %s, expected %s: %w", doc.Status, from, domain.ErrInvalidTransition)
	}
	doc.Status = to
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memDocStore) GetDocument(_ context.Context, documentID string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version, ok := s.current[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	doc, ok := s.docs[verKey(documentID, version)]
	if !ok {
		return nil, fmt.Errorf("document %s v%d: %w", documentID, version, domain.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (s *memDocStore) GetDocumentVersion(_ context.Context, documentID string, version int) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[verKey(documentID, version)]
	if !ok {
		return nil, fmt.Errorf("document %s v%d: %w", documentID, version, domain.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (s *memDocStore) CurrentVersion(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version, ok := s.current[documentID]
	if !ok {
		return 0, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return version, nil
}

func (s *memDocStore) SetCurrentVersion(_ context.Context, documentID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[documentID] = version
	return nil
}

func (s *memDocStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		// Spans only, like the real store.
		c.Content = ""
		key := verKey(c.DocumentID, c.Version)
		replaced := false
		for n := range s.chunks[key] {
			if s.chunks[key][n].ID == c.ID {
				s.chunks[key][n] = c
				replaced = true
			}
		}
		if !replaced {
			s.chunks[key] = append(s.chunks[key], c)
		}
	}
	return nil
}

func (s *memDocStore) GetChunks(_ context.Context, documentID string, version int) ([]domain.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Chunk(nil), s.chunks[verKey(documentID, version)]...), nil
}

func (s *memDocStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.chunks {
		for _, c := range list {
			if c.ID == id {
				cp := c
				return &cp, nil
			}
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
}

func (s *memDocStore) DeleteChunks(_ context.Context, documentID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, verKey(documentID, version))
	return nil
}

func (s *memDocStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Document
	for documentID, version := range s.current {
		if doc, ok := s.docs[verKey(documentID, version)]; ok && doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *memDocStore) ListByStatus(_ context.Context, statuses ...domain.DocumentStatus) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Document
	for _, doc := range s.docs {
		for _, st := range statuses {
			if doc.Status == st {
				out = append(out, *doc)
				break
			}
		}
	}
	return out, nil
}

// ==================== In-Memory Blob Store ====================

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	gets  map[string]int
}

var _ driven.BlobStore = (*memBlobStore)(nil)

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{
		blobs: make(map[string][]byte),
		gets:  make(map[string]int),
	}
}

func (s *memBlobStore) Put(_ context.Context, ref string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = append([]byte(nil), data...)
	return nil
}

func (s *memBlobStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets[ref]++
	data, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", ref, domain.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *memBlobStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	return nil
}

func (s *memBlobStore) getCount(ref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[ref]
}

// ==================== Fake Encryptor ====================

var sealedPrefix = []byte("sealed:")

type memEncryptor struct {
	mu            sync.Mutex
	owners        map[string]string
	revoked       map[string]bool
	revokedOwners map[string]bool
	nextRef       int
}

var _ driven.Encryptor = (*memEncryptor)(nil)

func newMemEncryptor() *memEncryptor {
	return &memEncryptor{
		owners:        make(map[string]string),
		revoked:       make(map[string]bool),
		revokedOwners: make(map[string]bool),
	}
}

func (e *memEncryptor) Encrypt(_ context.Context, ownerID string, plaintext []byte) ([]byte, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextRef++
	ref := fmt.Sprintf("key-%d", e.nextRef)
	e.owners[ref] = ownerID
	return append(append([]byte(nil), sealedPrefix...), plaintext...), ref, nil
}

func (e *memEncryptor) Decrypt(_ context.Context, keyRef string, ciphertext []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	owner, ok := e.owners[keyRef]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", keyRef, domain.ErrNotFound)
	}
	if e.revoked[keyRef] || e.revokedOwners[owner] {
		return nil, fmt.Errorf("key %s: %w", keyRef, domain.ErrKeyRevoked)
	}
	if !bytes.HasPrefix(ciphertext, sealedPrefix) {
		return nil, fmt.Errorf("malformed ciphertext for %s", keyRef)
	}
	return append([]byte(nil), ciphertext[len(sealedPrefix):]...), nil
}

func (e *memEncryptor) Revoke(_ context.Context, keyRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.revoked[keyRef] = true
	return nil
}

func (e *memEncryptor) RevokeOwner(_ context.Context, ownerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.revokedOwners[ownerID] = true
	return nil
}

// ==================== In-Memory Ledger Store ====================

type memLedgerStore struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  []domain.AuditEntry
}

var _ driven.LedgerStore = (*memLedgerStore)(nil)

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{balances: make(map[string]int64)}
}

func (s *memLedgerStore) fill(entry *domain.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

func (s *memLedgerStore) Charge(_ context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fill(&entry)
	if s.balances[entry.OwnerID] < entry.Cost {
		entry.Result = domain.ResultDenied
		s.entries = append(s.entries, entry)
		return &entry, fmt.Errorf("charging %d: %w", entry.Cost, domain.ErrInsufficientCredit)
	}
	s.balances[entry.OwnerID] -= entry.Cost
	s.entries = append(s.entries, entry)
	return &entry, nil
}

func (s *memLedgerStore) Drain(_ context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fill(&entry)
	if entry.Cost > s.balances[entry.OwnerID] {
		entry.Cost = s.balances[entry.OwnerID]
	}
	s.balances[entry.OwnerID] -= entry.Cost
	s.entries = append(s.entries, entry)
	return &entry, nil
}

func (s *memLedgerStore) Refund(_ context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fill(&entry)
	s.balances[entry.OwnerID] += entry.Cost
	s.entries = append(s.entries, entry)
	return &entry, nil
}

func (s *memLedgerStore) Append(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fill(&entry)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memLedgerStore) Balance(_ context.Context, ownerID string) (*domain.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.CreditAccount{OwnerID: ownerID, Balance: s.balances[ownerID]}, nil
}

func (s *memLedgerStore) History(_ context.Context, ownerID string, limit int) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []domain.AuditEntry
	for n := len(s.entries) - 1; n >= 0 && len(out) < limit; n-- {
		if s.entries[n].OwnerID == ownerID {
			out = append(out, s.entries[n])
		}
	}
	return out, nil
}

func (s *memLedgerStore) Export(_ context.Context, since time.Time) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memLedgerStore) byResult(result domain.AuditResult) []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.Result == result {
			out = append(out, e)
		}
	}
	return out
}

// ==================== In-Memory Config ====================

type memConfig struct {
	mu     sync.Mutex
	values map[string]any
}

var _ driven.ConfigStore = (*memConfig)(nil)

func newMemConfig() *memConfig {
	return &memConfig{values: make(map[string]any)}
}

func (c *memConfig) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *memConfig) GetString(key string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (c *memConfig) GetInt(key string) int {
	if v, ok := c.Get(key); ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}

func (c *memConfig) GetBool(key string) bool {
	if v, ok := c.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func (c *memConfig) Set(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memConfig) Save() error { return nil }
func (c *memConfig) Load() error { return nil }
func (c *memConfig) Path() string {
	return "memory"
}

// ==================== Embedding Doubles ====================

// failEmbedder fails every call with a fixed error.
type failEmbedder struct {
	err error
}

var _ driven.EmbeddingService = (*failEmbedder)(nil)

func (f *failEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, f.err }
func (f *failEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, f.err
}
func (f *failEmbedder) Dimensions() int            { return 8 }
func (f *failEmbedder) ModelName() string          { return "fail" }
func (f *failEmbedder) Ping(context.Context) error { return f.err }
func (f *failEmbedder) Close() error               { return nil }

// gateEmbedder blocks EmbedBatch until released, signalling entry once.
type gateEmbedder struct {
	driven.EmbeddingService
	entered chan struct{}
	release chan struct{}
}

func newGateEmbedder(inner driven.EmbeddingService) *gateEmbedder {
	return &gateEmbedder{
		EmbeddingService: inner,
		entered:          make(chan struct{}, 1),
		release:          make(chan struct{}),
	}
}

func (g *gateEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
	}
	return g.EmbeddingService.EmbedBatch(ctx, texts)
}

// ==================== Fixture ====================

type fixture struct {
	docs     *memDocStore
	blobs    *memBlobStore
	crypto   *memEncryptor
	store    *memLedgerStore
	ledger   *Ledger
	config   *memConfig
	vectors  *memory.Index
	registry *extractors.Registry
	embedder driven.EmbeddingService
	chunker  *chunker.Chunker
	ingestor *Ingestor
	query    *Query
}

func newFixture() *fixture {
	return newFixtureWith(local.New(64))
}

func newFixtureWith(embedder driven.EmbeddingService) *fixture {
	f := &fixture{
		docs:     newMemDocStore(),
		blobs:    newMemBlobStore(),
		crypto:   newMemEncryptor(),
		store:    newMemLedgerStore(),
		config:   newMemConfig(),
		vectors:  memory.New(),
		registry: extractors.NewRegistry(),
		embedder: embedder,
		chunker:  chunker.New(chunker.WithChunkSize(120), chunker.WithOverlap(20)),
	}
	f.registry.Register(plaintext.New())
	f.ledger = NewLedger(f.store, f.config)
	f.ingestor = NewIngestor(f.docs, f.blobs, f.crypto, f.registry, f.chunker, f.embedder, f.vectors, f.ledger)
	f.ingestor.retry = retryConfig{maxAttempts: 2, initialDelay: time.Millisecond, maxDelay: 5 * time.Millisecond}
	f.query = NewQuery(f.docs, f.blobs, f.crypto, f.registry, f.embedder, f.vectors, f.ledger, f.config)
	return f
}

func (f *fixture) topUp(ctx context.Context, ownerID string, amount int64) {
	if _, err := f.ledger.TopUp(ctx, ownerID, amount); err != nil {
		panic(err)
	}
}

func (f *fixture) balance(ctx context.Context, ownerID string) int64 {
	account, err := f.ledger.Balance(ctx, ownerID)
	if err != nil {
		panic(err)
	}
	return account.Balance
}
