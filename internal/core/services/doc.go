// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - Ledger: credit metering and the append-only audit trail
//   - Ingestor: the asynchronous ingestion pipeline and recovery
//   - Query: retrieval with on-demand snippet decryption, document listing
//
// Services are pure Go with no CGO or external dependencies.
package services
