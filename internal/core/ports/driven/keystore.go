package driven

import "context"

// KeyStore persists wrapped key material for the vault.
//
// Document keys are stored wrapped (encrypted by the owner's master key) and
// never in the clear. Deleting a wrapped key is irreversible revocation.
type KeyStore interface {
	// SaveWrappedKey stores a wrapped document key under its key reference.
	SaveWrappedKey(ctx context.Context, keyRef, ownerID string, wrapped []byte) error

	// GetWrappedKey retrieves a wrapped document key and its owner.
	// Returns domain.ErrKeyRevoked if the key was revoked, or
	// domain.ErrNotFound if it never existed.
	GetWrappedKey(ctx context.Context, keyRef string) (ownerID string, wrapped []byte, err error)

	// RevokeKey irreversibly destroys a wrapped document key, leaving a
	// revocation marker so later reads distinguish revoked from unknown.
	RevokeKey(ctx context.Context, keyRef string) error

	// GetMasterKey retrieves the master key for an owner, or
	// domain.ErrNotFound if none exists.
	GetMasterKey(ctx context.Context, ownerID string) ([]byte, error)

	// SaveMasterKey stores the master key for an owner.
	SaveMasterKey(ctx context.Context, ownerID string, key []byte) error

	// RevokeOwner destroys an owner's master key, invalidating every
	// document key wrapped by it in one operation.
	RevokeOwner(ctx context.Context, ownerID string) error
}
