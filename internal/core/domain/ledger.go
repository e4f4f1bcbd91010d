package domain

import "time"

// Action identifies the metered operation recorded in the audit log.
type Action string

// Metered actions.
const (
	ActionIngest Action = "ingest"
	ActionQuery  Action = "query"
	ActionDelete Action = "delete"
	ActionTopUp  Action = "topup"
	ActionRefund Action = "refund"
)

// AuditResult records the outcome of a metered action.
type AuditResult string

// Audit outcomes.
const (
	ResultOK     AuditResult = "ok"
	ResultDenied AuditResult = "denied"
	ResultError  AuditResult = "error"
)

// CreditAccount holds the metering balance for one owner.
// The balance never goes negative; the ledger service is its only mutator.
type CreditAccount struct {
	// OwnerID identifies the account holder.
	OwnerID string

	// Balance is the remaining credit, always >= 0.
	Balance int64

	// UpdatedAt is when the balance last changed.
	UpdatedAt time.Time
}

// AuditEntry is one append-only record of a metered or security-relevant
// action. Entries are never mutated or deleted.
type AuditEntry struct {
	// ID is the unique entry identifier.
	ID string

	// OwnerID identifies the acting user.
	OwnerID string

	// Action is the operation performed.
	Action Action

	// ResourceID identifies the document or account acted on.
	ResourceID string

	// Cost is the credit amount involved (0 for free actions).
	Cost int64

	// Result is the outcome of the action.
	Result AuditResult

	// Detail carries an optional human-readable note (error text, reason).
	Detail string

	// CreatedAt is the entry timestamp.
	CreatedAt time.Time
}
