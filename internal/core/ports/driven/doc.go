// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Extractor / ExtractorRegistry: Raw bytes to plain text + structure
//   - EmbeddingService: Chunk text to fixed-dimension vectors
//   - VectorIndex: Embedding storage and similarity search
//   - DocumentStore: Document/chunk manifest persistence
//   - BlobStore: Encrypted blob persistence (staged writes)
//   - KeyStore: Wrapped key persistence for the vault
//   - Encryptor: Envelope encryption of document bytes
//   - LedgerStore: Atomic balance mutation plus audit append
//   - ConfigStore: Application configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or service package
package driven
