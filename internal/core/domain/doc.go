// Package domain defines the core business entities for docvault.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An encrypted, versioned document owned by a user
//   - Chunk: A bounded span of extracted text, the unit of retrieval
//   - VectorRecord: A chunk embedding plus its index metadata
//   - CreditAccount: A per-owner metering balance
//   - AuditEntry: An append-only record of a metered action
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
