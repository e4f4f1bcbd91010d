package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/docvault/internal/core/domain"
)

// LedgerService is the single authority over credit balances and the audit
// trail. No other component mutates CreditAccount.Balance.
type LedgerService interface {
	// Charge debits cost for an action and appends the paired audit entry
	// in one atomic unit. Wraps domain.ErrInsufficientCredit on denial.
	Charge(ctx context.Context, ownerID string, action domain.Action, resourceID string, cost int64) (*domain.AuditEntry, error)

	// Drain debits up to cost from the owner's balance in one atomic unit,
	// for policies that take whatever credit remains. The returned entry
	// records the amount actually debited, which may be zero.
	Drain(ctx context.Context, ownerID string, action domain.Action, resourceID string, cost int64) (*domain.AuditEntry, error)

	// Refund compensates a charge after a downstream failure.
	Refund(ctx context.Context, ownerID string, amount int64, reason string) (*domain.AuditEntry, error)

	// Record appends an audit entry with no balance effect, for security
	// relevant events that are not themselves charges (pipeline failures,
	// key revocations).
	Record(ctx context.Context, ownerID string, action domain.Action, resourceID string, result domain.AuditResult, detail string) error

	// Cost returns the configured credit cost for an action.
	Cost(action domain.Action) int64

	// TopUp adds credit to an owner's account.
	TopUp(ctx context.Context, ownerID string, amount int64) (*domain.AuditEntry, error)

	// Balance returns the owner's account.
	Balance(ctx context.Context, ownerID string) (*domain.CreditAccount, error)

	// History returns the owner's audit entries, newest first.
	History(ctx context.Context, ownerID string, limit int) ([]domain.AuditEntry, error)

	// Export returns the append-only audit log since a point in time.
	Export(ctx context.Context, since time.Time) ([]domain.AuditEntry, error)
}
