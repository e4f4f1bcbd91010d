// Package extractors provides implementations of the Extractor interface
// for various document formats. Each extractor knows how to turn raw
// uploaded bytes of a specific MIME type into plain text plus section
// structure.
//
// Extractors are registered with the Registry at startup; the registry
// picks the highest-priority extractor for a MIME type.
package extractors
