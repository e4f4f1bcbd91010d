package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
	"github.com/custodia-labs/docvault/internal/core/ports/driving"
	"github.com/custodia-labs/docvault/internal/logger"
)

// Default credit costs, overridable through configuration.
const (
	DefaultIngestCost int64 = 5
	DefaultQueryCost  int64 = 1
	DefaultDeleteCost int64 = 1
)

// Configuration keys read by the ledger.
const (
	keyIngestCost = "ledger.ingest_cost"
	keyQueryCost  = "ledger.query_cost"
	keyDeleteCost = "ledger.delete_cost"
)

// Ensure Ledger implements the interface.
var _ driving.LedgerService = (*Ledger)(nil)

// Ledger is the single authority over credit balances and the audit trail.
// Every balance mutation goes through it, paired with an audit entry in one
// atomic storage transaction.
type Ledger struct {
	store  driven.LedgerStore
	config driven.ConfigStore
}

// NewLedger creates the ledger service.
func NewLedger(store driven.LedgerStore, config driven.ConfigStore) *Ledger {
	return &Ledger{store: store, config: config}
}

// Cost returns the configured credit cost for an action. Unmetered actions
// cost zero.
func (l *Ledger) Cost(action domain.Action) int64 {
	key := ""
	var def int64
	switch action {
	case domain.ActionIngest:
		key, def = keyIngestCost, DefaultIngestCost
	case domain.ActionQuery:
		key, def = keyQueryCost, DefaultQueryCost
	case domain.ActionDelete:
		key, def = keyDeleteCost, DefaultDeleteCost
	default:
		return 0
	}

	if l.config != nil {
		if _, ok := l.config.Get(key); ok {
			if v := l.config.GetInt(key); v >= 0 {
				return int64(v)
			}
		}
	}
	return def
}

// Charge debits cost for an action and appends the paired audit entry in one
// atomic unit. On insufficient balance the entry is still appended with
// Result=denied and the returned error wraps domain.ErrInsufficientCredit.
func (l *Ledger) Charge(ctx context.Context, ownerID string, action domain.Action, resourceID string, cost int64) (*domain.AuditEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	if cost < 0 {
		return nil, fmt.Errorf("negative cost %d: %w", cost, domain.ErrInvalidInput)
	}

	entry, err := l.store.Charge(ctx, domain.AuditEntry{
		OwnerID:    ownerID,
		Action:     action,
		ResourceID: resourceID,
		Cost:       cost,
		Result:     domain.ResultOK,
	})
	if err != nil {
		return entry, err
	}

	logger.Debug("ledger charge owner=%s action=%s cost=%d", ownerID, action, cost)
	return entry, nil
}

// Drain debits up to cost from the owner's balance in one atomic unit. The
// store computes the debitable amount under its own transaction, so a
// concurrent charge can never push the balance negative.
func (l *Ledger) Drain(ctx context.Context, ownerID string, action domain.Action, resourceID string, cost int64) (*domain.AuditEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	if cost < 0 {
		return nil, fmt.Errorf("negative cost %d: %w", cost, domain.ErrInvalidInput)
	}

	entry, err := l.store.Drain(ctx, domain.AuditEntry{
		OwnerID:    ownerID,
		Action:     action,
		ResourceID: resourceID,
		Cost:       cost,
		Result:     domain.ResultOK,
	})
	if err != nil {
		return nil, fmt.Errorf("draining up to %d from %s: %w", cost, ownerID, err)
	}

	logger.Debug("ledger drain owner=%s action=%s requested=%d debited=%d", ownerID, action, cost, entry.Cost)
	return entry, nil
}

// Refund compensates a charge after a downstream failure.
func (l *Ledger) Refund(ctx context.Context, ownerID string, amount int64, reason string) (*domain.AuditEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("refund amount %d: %w", amount, domain.ErrInvalidInput)
	}

	entry, err := l.store.Refund(ctx, domain.AuditEntry{
		OwnerID: ownerID,
		Action:  domain.ActionRefund,
		Cost:    amount,
		Result:  domain.ResultOK,
		Detail:  reason,
	})
	if err != nil {
		return nil, fmt.Errorf("refunding %d to %s: %w", amount, ownerID, err)
	}

	logger.Debug("ledger refund owner=%s amount=%d reason=%s", ownerID, amount, reason)
	return entry, nil
}

// TopUp adds credit to an owner's account.
func (l *Ledger) TopUp(ctx context.Context, ownerID string, amount int64) (*domain.AuditEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("topup amount %d: %w", amount, domain.ErrInvalidInput)
	}

	entry, err := l.store.Refund(ctx, domain.AuditEntry{
		OwnerID: ownerID,
		Action:  domain.ActionTopUp,
		Cost:    amount,
		Result:  domain.ResultOK,
	})
	if err != nil {
		return nil, fmt.Errorf("topping up %d for %s: %w", amount, ownerID, err)
	}

	logger.Debug("ledger topup owner=%s amount=%d", ownerID, amount)
	return entry, nil
}

// Record appends an audit entry with no balance effect.
func (l *Ledger) Record(ctx context.Context, ownerID string, action domain.Action, resourceID string, result domain.AuditResult, detail string) error {
	if ownerID == "" {
		return fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	return l.store.Append(ctx, domain.AuditEntry{
		OwnerID:    ownerID,
		Action:     action,
		ResourceID: resourceID,
		Result:     result,
		Detail:     detail,
	})
}

// Balance returns the owner's account, creating a zero-balance account on
// first reference.
func (l *Ledger) Balance(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	return l.store.Balance(ctx, ownerID)
}

// History returns the owner's audit entries, newest first.
func (l *Ledger) History(ctx context.Context, ownerID string, limit int) ([]domain.AuditEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required: %w", domain.ErrInvalidInput)
	}
	return l.store.History(ctx, ownerID, limit)
}

// Export returns the append-only audit log since a point in time.
func (l *Ledger) Export(ctx context.Context, since time.Time) ([]domain.AuditEntry, error) {
	return l.store.Export(ctx, since)
}
