package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/docvault/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to the
// metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.docvault/data/metadata.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docvault", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// LedgerStore returns a LedgerStore interface backed by this store.
func (s *Store) LedgerStore() driven.LedgerStore {
	return &ledgerStore{store: s}
}

// KeyStore returns a KeyStore interface backed by this store.
func (s *Store) KeyStore() driven.KeyStore {
	return &keyStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = "id, version, owner_id, title, content_type, ciphertext_ref, key_ref, status, created_at, updated_at"

// SaveDocument stores or updates a document version row.
func (d *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := d.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			title = excluded.title,
			content_type = excluded.content_type,
			ciphertext_ref = excluded.ciphertext_ref,
			key_ref = excluded.key_ref,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Version, doc.OwnerID, doc.Title, doc.ContentType,
		doc.CiphertextRef, doc.KeyRef, string(doc.Status), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// UpdateStatus applies a validated compare-and-swap status transition.
func (d *documentStore) UpdateStatus(ctx context.Context, documentID string, version int, from, to domain.DocumentStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("status %s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	res, err := d.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, updated_at = ?
		WHERE id = ? AND version = ? AND status = ?
	`, string(to), time.Now().UTC(), documentID, version, string(from))
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or another writer moved it first.
		var current string
		row := d.store.db.QueryRowContext(ctx,
			"SELECT status FROM documents WHERE id = ? AND version = ?", documentID, version)
		if err := row.Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("document %s v%d: %w", documentID, version, domain.ErrNotFound)
			}
			return fmt.Errorf("checking current status: %w", err)
		}
		return fmt.Errorf("document %s v%d is %s, expected %s: %w",
			documentID, version, current, from, domain.ErrInvalidTransition)
	}
	return nil
}

// GetDocument retrieves the current version of a document.
func (d *documentStore) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	row := d.store.db.QueryRowContext(ctx, `
		SELECT `+prefixColumns("d", documentColumns)+`
		FROM documents d
		JOIN current_versions cv ON cv.document_id = d.id AND cv.version = d.version
		WHERE d.id = ?
	`, documentID)
	return scanDocument(row)
}

// GetDocumentVersion retrieves a specific version of a document.
func (d *documentStore) GetDocumentVersion(ctx context.Context, documentID string, version int) (*domain.Document, error) {
	row := d.store.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id = ? AND version = ?
	`, documentID, version)
	return scanDocument(row)
}

// CurrentVersion returns the current version number for a document.
func (d *documentStore) CurrentVersion(ctx context.Context, documentID string) (int, error) {
	var version int
	row := d.store.db.QueryRowContext(ctx,
		"SELECT version FROM current_versions WHERE document_id = ?", documentID)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("getting current version: %w", err)
	}
	return version, nil
}

// SetCurrentVersion atomically flips the current-version pointer.
func (d *documentStore) SetCurrentVersion(ctx context.Context, documentID string, version int) error {
	_, err := d.store.db.ExecContext(ctx, `
		INSERT INTO current_versions (document_id, version)
		VALUES (?, ?)
		ON CONFLICT(document_id) DO UPDATE SET version = excluded.version
	`, documentID, version)
	if err != nil {
		return fmt.Errorf("setting current version: %w", err)
	}
	return nil
}

// SaveChunks stores the chunk manifest for a document version.
func (d *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Span coordinates only; chunk text stays inside the encrypted blob.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, version, ordinal, start_offset, length)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ordinal = excluded.ordinal,
			start_offset = excluded.start_offset,
			length = excluded.length
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Version, c.Ordinal, c.Offset, c.Length); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// GetChunks retrieves the chunk manifest for a document version.
func (d *documentStore) GetChunks(ctx context.Context, documentID string, version int) ([]domain.Chunk, error) {
	rows, err := d.store.db.QueryContext(ctx, `
		SELECT id, document_id, version, ordinal, start_offset, length
		FROM chunks WHERE document_id = ? AND version = ?
		ORDER BY ordinal
	`, documentID, version)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Version, &c.Ordinal, &c.Offset, &c.Length); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk retrieves a specific chunk by ID.
func (d *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	var c domain.Chunk
	row := d.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, version, ordinal, start_offset, length
		FROM chunks WHERE id = ?
	`, id)
	if err := row.Scan(&c.ID, &c.DocumentID, &c.Version, &c.Ordinal, &c.Offset, &c.Length); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	return &c, nil
}

// DeleteChunks removes the chunk manifest for a document version.
func (d *documentStore) DeleteChunks(ctx context.Context, documentID string, version int) error {
	_, err := d.store.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE document_id = ? AND version = ?", documentID, version)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// ListByOwner returns the current versions of all documents for an owner.
func (d *documentStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := d.store.db.QueryContext(ctx, `
		SELECT `+prefixColumns("d", documentColumns)+`
		FROM documents d
		JOIN current_versions cv ON cv.document_id = d.id AND cv.version = d.version
		WHERE d.owner_id = ?
		ORDER BY d.created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListByStatus returns document versions in the given statuses.
func (d *documentStore) ListByStatus(ctx context.Context, statuses ...domain.DocumentStatus) ([]domain.Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}

	rows, err := d.store.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status IN (`+placeholders+`)
		ORDER BY updated_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents by status: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocumentInto(s scanner, doc *domain.Document) error {
	var status string
	if err := s.Scan(&doc.ID, &doc.Version, &doc.OwnerID, &doc.Title, &doc.ContentType,
		&doc.CiphertextRef, &doc.KeyRef, &status, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return err
	}
	doc.Status = domain.DocumentStatus(status)
	return nil
}

func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	if err := scanDocumentInto(row, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := scanDocumentInto(rows, &doc); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// ==================== Ledger Store ====================

// ledgerStore implements driven.LedgerStore.
type ledgerStore struct {
	store *Store
}

var _ driven.LedgerStore = (*ledgerStore)(nil)

const auditColumns = "id, owner_id, action, resource_id, cost, result, detail, created_at"

// Charge debits the owner's balance and appends the audit entry in one
// transaction. An uncoverable cost appends a denied entry instead and the
// balance stays untouched.
func (l *ledgerStore) Charge(ctx context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error) {
	if entry.Cost < 0 {
		return nil, fmt.Errorf("negative cost %d: %w", entry.Cost, domain.ErrInvalidInput)
	}
	fillEntry(&entry)

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureAccount(ctx, tx, entry.OwnerID); err != nil {
		return nil, err
	}

	// Conditional debit: only succeeds when the balance covers the cost.
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - ?, updated_at = ?
		WHERE owner_id = ? AND balance >= ?
	`, entry.Cost, entry.CreatedAt, entry.OwnerID, entry.Cost)
	if err != nil {
		return nil, fmt.Errorf("debiting account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}

	denied := affected == 0
	if denied {
		entry.Result = domain.ResultDenied
	} else {
		entry.Result = domain.ResultOK
	}

	if err := appendEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing charge: %w", err)
	}

	if denied {
		return &entry, fmt.Errorf("owner %s cannot cover cost %d: %w",
			entry.OwnerID, entry.Cost, domain.ErrInsufficientCredit)
	}
	return &entry, nil
}

// Drain debits as much of the cost as the balance covers and appends the
// audit entry, all in one transaction. The debited amount is computed inside
// the transaction, so a concurrent charge cannot push the balance negative.
func (l *ledgerStore) Drain(ctx context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error) {
	if entry.Cost < 0 {
		return nil, fmt.Errorf("negative cost %d: %w", entry.Cost, domain.ErrInvalidInput)
	}
	fillEntry(&entry)
	entry.Result = domain.ResultOK

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureAccount(ctx, tx, entry.OwnerID); err != nil {
		return nil, err
	}

	var balance int64
	row := tx.QueryRowContext(ctx,
		"SELECT balance FROM accounts WHERE owner_id = ?", entry.OwnerID)
	if err := row.Scan(&balance); err != nil {
		return nil, fmt.Errorf("scanning balance: %w", err)
	}
	if entry.Cost > balance {
		entry.Cost = balance
	}
	if entry.Cost < 0 {
		entry.Cost = 0
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - ?, updated_at = ?
		WHERE owner_id = ?
	`, entry.Cost, entry.CreatedAt, entry.OwnerID); err != nil {
		return nil, fmt.Errorf("draining account: %w", err)
	}

	if err := appendEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing drain: %w", err)
	}
	return &entry, nil
}

// Refund credits the owner's balance and appends the audit entry in one
// transaction.
func (l *ledgerStore) Refund(ctx context.Context, entry domain.AuditEntry) (*domain.AuditEntry, error) {
	if entry.Cost < 0 {
		return nil, fmt.Errorf("negative amount %d: %w", entry.Cost, domain.ErrInvalidInput)
	}
	fillEntry(&entry)
	entry.Result = domain.ResultOK

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureAccount(ctx, tx, entry.OwnerID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ?, updated_at = ?
		WHERE owner_id = ?
	`, entry.Cost, entry.CreatedAt, entry.OwnerID); err != nil {
		return nil, fmt.Errorf("crediting account: %w", err)
	}

	if err := appendEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing refund: %w", err)
	}
	return &entry, nil
}

// Append writes an audit entry with no balance effect.
func (l *ledgerStore) Append(ctx context.Context, entry domain.AuditEntry) error {
	fillEntry(&entry)
	if entry.Result == "" {
		entry.Result = domain.ResultOK
	}

	if _, err := l.store.db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.OwnerID, string(entry.Action), entry.ResourceID,
		entry.Cost, string(entry.Result), entry.Detail, entry.CreatedAt); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// Balance returns the account for an owner, creating it at zero on first use.
func (l *ledgerStore) Balance(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	if _, err := l.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (owner_id, balance, updated_at) VALUES (?, 0, ?)
	`, ownerID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensuring account: %w", err)
	}

	var acct domain.CreditAccount
	row := l.store.db.QueryRowContext(ctx,
		"SELECT owner_id, balance, updated_at FROM accounts WHERE owner_id = ?", ownerID)
	if err := row.Scan(&acct.OwnerID, &acct.Balance, &acct.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return &acct, nil
}

// History returns audit entries for an owner, newest first.
func (l *ledgerStore) History(ctx context.Context, ownerID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.store.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// Export returns all audit entries since the given time, oldest first.
func (l *ledgerStore) Export(ctx context.Context, since time.Time) ([]domain.AuditEntry, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE created_at >= ?
		ORDER BY created_at, id
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying export: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// fillEntry assigns an ID and timestamp when the caller left them empty.
func fillEntry(entry *domain.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

// ensureAccount creates a zero-balance account row if none exists.
func ensureAccount(ctx context.Context, tx *sql.Tx, ownerID string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (owner_id, balance, updated_at) VALUES (?, 0, ?)
	`, ownerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ensuring account: %w", err)
	}
	return nil
}

// appendEntry inserts an audit row inside an open transaction.
func appendEntry(ctx context.Context, tx *sql.Tx, entry domain.AuditEntry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.OwnerID, string(entry.Action), entry.ResourceID,
		entry.Cost, string(entry.Result), entry.Detail, entry.CreatedAt); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

func scanAuditEntries(rows *sql.Rows) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var action, result string
		if err := rows.Scan(&e.ID, &e.OwnerID, &action, &e.ResourceID,
			&e.Cost, &result, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = domain.Action(action)
		e.Result = domain.AuditResult(result)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ==================== Key Store ====================

// keyStore implements driven.KeyStore.
type keyStore struct {
	store *Store
}

var _ driven.KeyStore = (*keyStore)(nil)

// SaveWrappedKey stores a wrapped document key under its key reference.
func (k *keyStore) SaveWrappedKey(ctx context.Context, keyRef, ownerID string, wrapped []byte) error {
	_, err := k.store.db.ExecContext(ctx, `
		INSERT INTO wrapped_keys (key_ref, owner_id, wrapped, revoked, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(key_ref) DO UPDATE SET
			owner_id = excluded.owner_id,
			wrapped = excluded.wrapped,
			revoked = 0
	`, keyRef, ownerID, wrapped, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving wrapped key: %w", err)
	}
	return nil
}

// GetWrappedKey retrieves a wrapped document key and its owner.
func (k *keyStore) GetWrappedKey(ctx context.Context, keyRef string) (string, []byte, error) {
	var ownerID string
	var wrapped []byte
	var revoked bool

	row := k.store.db.QueryRowContext(ctx,
		"SELECT owner_id, wrapped, revoked FROM wrapped_keys WHERE key_ref = ?", keyRef)
	if err := row.Scan(&ownerID, &wrapped, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, fmt.Errorf("key %s: %w", keyRef, domain.ErrNotFound)
		}
		return "", nil, fmt.Errorf("scanning wrapped key: %w", err)
	}
	if revoked {
		return "", nil, fmt.Errorf("key %s: %w", keyRef, domain.ErrKeyRevoked)
	}
	return ownerID, wrapped, nil
}

// RevokeKey destroys the key material and leaves a revocation marker.
func (k *keyStore) RevokeKey(ctx context.Context, keyRef string) error {
	res, err := k.store.db.ExecContext(ctx,
		"UPDATE wrapped_keys SET wrapped = NULL, revoked = 1 WHERE key_ref = ?", keyRef)
	if err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		// No such key yet: insert the marker so the revocation sticks.
		if _, err := k.store.db.ExecContext(ctx, `
			INSERT INTO wrapped_keys (key_ref, owner_id, wrapped, revoked, created_at)
			VALUES (?, '', NULL, 1, ?)
			ON CONFLICT(key_ref) DO UPDATE SET wrapped = NULL, revoked = 1
		`, keyRef, time.Now().UTC()); err != nil {
			return fmt.Errorf("inserting revocation marker: %w", err)
		}
	}
	return nil
}

// GetMasterKey retrieves the master key for an owner.
func (k *keyStore) GetMasterKey(ctx context.Context, ownerID string) ([]byte, error) {
	var key []byte
	row := k.store.db.QueryRowContext(ctx,
		"SELECT key_data FROM master_keys WHERE owner_id = ?", ownerID)
	if err := row.Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("master key for %s: %w", ownerID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning master key: %w", err)
	}
	return key, nil
}

// SaveMasterKey stores the master key for an owner.
func (k *keyStore) SaveMasterKey(ctx context.Context, ownerID string, key []byte) error {
	_, err := k.store.db.ExecContext(ctx, `
		INSERT INTO master_keys (owner_id, key_data, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET key_data = excluded.key_data
	`, ownerID, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving master key: %w", err)
	}
	return nil
}

// RevokeOwner destroys an owner's master key.
func (k *keyStore) RevokeOwner(ctx context.Context, ownerID string) error {
	if _, err := k.store.db.ExecContext(ctx,
		"DELETE FROM master_keys WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("revoking owner: %w", err)
	}
	return nil
}
