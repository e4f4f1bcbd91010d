package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

// LedgerStore is the transactional backing for the credit ledger.
//
// Charge and Refund each execute as a single atomic unit: the balance
// mutation and the audit append either both happen or neither does. Charge
// uses a conditional debit so concurrent charges against one account can
// never drive the balance negative.
type LedgerStore interface {
	// Charge debits cost from the owner's balance and appends the entry.
	// If the balance cannot cover the cost, the balance is left untouched,
	// the entry is still appended with Result=denied, and the returned error
	// wraps domain.ErrInsufficientCredit.
	Charge(ctx context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error)

	// Drain debits as much of entry.Cost as the balance covers, atomically
	// with the audit append. The returned entry's Cost is the amount
	// actually debited, which may be zero.
	Drain(ctx context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error)

	// Refund credits amount back to the owner's balance and appends the entry.
	Refund(ctx context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error)

	// Append writes an audit entry with no balance effect (errors, denials
	// recorded by the pipeline, topup bookkeeping).
	Append(ctx context.Context, entry domain.AuditEntry) error

	// Balance returns the account for an owner, creating a zero-balance
	// account on first reference.
	Balance(ctx context.Context, ownerID string) (*domain.CreditAccount, error)

	// History returns audit entries for an owner, newest first, up to limit.
	History(ctx context.Context, ownerID string, limit int) ([]domain.AuditEntry, error)

	// Export returns all audit entries appended since the given time,
	// oldest first. Read-only; the log is never rewritten in place.
	Export(ctx context.Context, since time.Time) ([]domain.AuditEntry, error)
}
