package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
	"github.com/custodia-labs/docvault/internal/core/ports/driving"
)

// Shared stub services for command tests. setupTestServices installs them
// and returns a cleanup that restores whatever was there before.

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ==================== Ingest Stub ====================

type stubIngest struct {
	lastReq   driving.IngestRequest
	handle    *driving.IngestHandle
	status    *driving.IngestStatus
	deleted   []string
	cancelled []string
	err       error
}

var _ driving.IngestOrchestrator = (*stubIngest)(nil)

func (s *stubIngest) Ingest(_ context.Context, req driving.IngestRequest) (*driving.IngestHandle, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastReq = req
	return s.handle, nil
}

func (s *stubIngest) Status(_ context.Context, runID string) (*driving.IngestStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.status == nil || s.status.RunID != runID {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return s.status, nil
}

func (s *stubIngest) Cancel(_ context.Context, runID string) error {
	if s.err != nil {
		return s.err
	}
	s.cancelled = append(s.cancelled, runID)
	return nil
}

func (s *stubIngest) Delete(_ context.Context, _, documentID string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, documentID)
	return nil
}

func (s *stubIngest) Recover(_ context.Context) error { return s.err }
func (s *stubIngest) Wait()                           {}

// ==================== Query Stub ====================

type stubQuery struct {
	lastOwner string
	lastText  string
	lastOpts  domain.QueryOptions
	results   []domain.RetrievedChunk
	err       error
}

var _ driving.QueryService = (*stubQuery)(nil)

func (s *stubQuery) Query(_ context.Context, ownerID, text string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastOwner = ownerID
	s.lastText = text
	s.lastOpts = opts
	return s.results, nil
}

// ==================== Document Stub ====================

type stubDocuments struct {
	docs []domain.Document
	err  error
}

var _ driving.DocumentService = (*stubDocuments)(nil)

func (s *stubDocuments) List(_ context.Context, _ string) ([]domain.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func (s *stubDocuments) Get(_ context.Context, _, documentID string) (*domain.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.docs {
		if s.docs[i].ID == documentID {
			return &s.docs[i], nil
		}
	}
	return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
}

// ==================== Ledger Stub ====================

type stubLedger struct {
	account *domain.CreditAccount
	entries []domain.AuditEntry
	err     error
}

var _ driving.LedgerService = (*stubLedger)(nil)

func (s *stubLedger) Charge(_ context.Context, ownerID string, action domain.Action, resourceID string, cost int64) (*domain.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.AuditEntry{OwnerID: ownerID, Action: action, ResourceID: resourceID, Cost: cost, Result: domain.ResultOK}, nil
}

func (s *stubLedger) Drain(_ context.Context, ownerID string, action domain.Action, resourceID string, cost int64) (*domain.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.account != nil && cost > s.account.Balance {
		cost = s.account.Balance
	}
	if s.account != nil {
		s.account.Balance -= cost
	}
	return &domain.AuditEntry{OwnerID: ownerID, Action: action, ResourceID: resourceID, Cost: cost, Result: domain.ResultOK}, nil
}

func (s *stubLedger) Refund(_ context.Context, ownerID string, amount int64, reason string) (*domain.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.AuditEntry{OwnerID: ownerID, Action: domain.ActionRefund, Cost: amount, Result: domain.ResultOK, Detail: reason}, nil
}

func (s *stubLedger) Record(_ context.Context, _ string, _ domain.Action, _ string, _ domain.AuditResult, _ string) error {
	return s.err
}

func (s *stubLedger) Cost(domain.Action) int64 { return 1 }

func (s *stubLedger) TopUp(_ context.Context, ownerID string, amount int64) (*domain.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.account != nil {
		s.account.Balance += amount
	}
	return &domain.AuditEntry{OwnerID: ownerID, Action: domain.ActionTopUp, Cost: amount, Result: domain.ResultOK}, nil
}

func (s *stubLedger) Balance(_ context.Context, ownerID string) (*domain.CreditAccount, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.account == nil {
		return &domain.CreditAccount{OwnerID: ownerID}, nil
	}
	return s.account, nil
}

func (s *stubLedger) History(_ context.Context, _ string, limit int) ([]domain.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func (s *stubLedger) Export(_ context.Context, since time.Time) ([]domain.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.AuditEntry
	for i := range s.entries {
		if s.entries[i].CreatedAt.After(since) {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// ==================== Config Stub ====================

type stubConfig struct {
	values map[string]any
	err    error
}

var _ driven.ConfigStore = (*stubConfig)(nil)

func (s *stubConfig) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *stubConfig) GetString(key string) string {
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return ""
}

func (s *stubConfig) GetInt(key string) int {
	if v, ok := s.values[key].(int); ok {
		return v
	}
	return 0
}

func (s *stubConfig) GetBool(key string) bool {
	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return false
}

func (s *stubConfig) Set(key string, value any) error {
	if s.err != nil {
		return s.err
	}
	s.values[key] = value
	return nil
}

func (s *stubConfig) Save() error { return s.err }
func (s *stubConfig) Load() error { return s.err }
func (s *stubConfig) Path() string {
	return "/tmp/docvault-test/config.toml"
}

// ==================== Setup ====================

// setupTestServices installs stub services with canned data and returns
// a cleanup restoring the previous services.
func setupTestServices() func() {
	oldIngest := ingestOrchestrator
	oldQuery := queryService
	oldDocs := documentService
	oldLedger := ledgerService
	oldConfig := configStore

	ingestOrchestrator = &stubIngest{
		handle: &driving.IngestHandle{RunID: "run-1", DocumentID: "doc-1", Version: 1},
		status: &driving.IngestStatus{
			RunID:      "run-1",
			DocumentID: "doc-1",
			Version:    1,
			Status:     domain.StatusReady,
			Chunks:     3,
			StartedAt:  testTime,
		},
	}
	queryService = &stubQuery{
		results: []domain.RetrievedChunk{
			{
				ChunkID:    "chunk-1",
				DocumentID: "doc-1",
				Version:    1,
				Ordinal:    0,
				Content:    "Key rotation happens every ninety days.",
				Score:      0.91,
			},
		},
	}
	documentService = &stubDocuments{
		docs: []domain.Document{
			{
				ID:          "doc-1",
				OwnerID:     "local",
				Title:       "Security Handbook",
				ContentType: "text/plain",
				Version:     1,
				Status:      domain.StatusReady,
				CreatedAt:   testTime,
				UpdatedAt:   testTime,
			},
		},
	}
	ledgerService = &stubLedger{
		account: &domain.CreditAccount{OwnerID: "local", Balance: 42, UpdatedAt: testTime},
		entries: []domain.AuditEntry{
			{ID: "a-1", OwnerID: "local", Action: domain.ActionIngest, ResourceID: "doc-1", Cost: 5, Result: domain.ResultOK, CreatedAt: testTime},
			{ID: "a-2", OwnerID: "local", Action: domain.ActionQuery, Cost: 1, Result: domain.ResultOK, CreatedAt: testTime.Add(time.Minute)},
		},
	}
	configStore = &stubConfig{values: map[string]any{"owner.id": "local"}}

	return func() {
		ingestOrchestrator = oldIngest
		queryService = oldQuery
		documentService = oldDocs
		ledgerService = oldLedger
		configStore = oldConfig
	}
}

var errStub = errors.New("stub failure")
