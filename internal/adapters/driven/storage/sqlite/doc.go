// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - DocumentStore: Document version and chunk manifest persistence
//   - LedgerStore: Credit accounts and the append-only audit log
//   - KeyStore: Wrapped document keys and per-owner master keys
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory as numbered .up.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.docvault/data/metadata.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. The ledger additionally relies on transactions so the
// balance mutation and its audit row commit together.
package sqlite
