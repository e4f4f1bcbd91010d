package driven

import "context"

// Encryptor seals and opens document bytes with per-document keys.
//
// The vault adapter implements this; core services never see key material,
// only opaque key references.
type Encryptor interface {
	// Encrypt encrypts plaintext under a fresh document key and returns the
	// ciphertext plus the reference of the stored wrapped key.
	Encrypt(ctx context.Context, ownerID string, plaintext []byte) (ciphertext []byte, keyRef string, err error)

	// Decrypt opens ciphertext by key reference. A revoked key fails with
	// domain.ErrKeyRevoked, distinct from a missing one.
	Decrypt(ctx context.Context, keyRef string, ciphertext []byte) ([]byte, error)

	// Revoke irreversibly destroys the document key behind keyRef.
	Revoke(ctx context.Context, keyRef string) error

	// RevokeOwner destroys the owner's master key, invalidating all their
	// documents at once.
	RevokeOwner(ctx context.Context, ownerID string) error
}
