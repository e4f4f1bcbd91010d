// Package vault encrypts document bytes and manages per-document keys.
//
// Every document gets a unique data key (AES-256-GCM); data keys are stored
// wrapped by a per-owner master key, so revoking the master key invalidates
// every document of that owner in one operation. Plaintext keys never touch
// the key store.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
	"github.com/custodia-labs/docvault/internal/logger"
)

const keySize = 32 // AES-256

// Ensure Vault implements the interface.
var _ driven.Encryptor = (*Vault)(nil)

// Vault wraps and unwraps per-document encryption keys.
type Vault struct {
	keys driven.KeyStore
}

// New creates a vault backed by the given key store.
func New(keys driven.KeyStore) *Vault {
	return &Vault{keys: keys}
}

// Encrypt encrypts plaintext under a fresh document key and returns the
// ciphertext plus the reference of the stored wrapped key.
// Each call emits a usage event for audit correlation; the ledger is not
// touched here.
func (v *Vault) Encrypt(ctx context.Context, ownerID string, plaintext []byte) ([]byte, string, error) {
	master, err := v.masterKey(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("master key for %s: %w", ownerID, err)
	}

	dek := make([]byte, keySize)
	if _, err := rand.Read(dek); err != nil {
		return nil, "", fmt.Errorf("generating data key: %w", err)
	}

	ciphertext, err := seal(dek, plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("sealing document: %w", err)
	}

	wrapped, err := seal(master, dek)
	if err != nil {
		return nil, "", fmt.Errorf("wrapping data key: %w", err)
	}

	keyRef := uuid.New().String()
	if err := v.keys.SaveWrappedKey(ctx, keyRef, ownerID, wrapped); err != nil {
		return nil, "", fmt.Errorf("storing wrapped key: %w", err)
	}

	logger.Usage("vault encrypt owner=%s key=%s bytes=%d", ownerID, keyRef, len(plaintext))
	return ciphertext, keyRef, nil
}

// Decrypt unwraps the document key referenced by keyRef and decrypts the
// ciphertext. A revoked key fails with domain.ErrKeyRevoked, distinct from
// a missing document.
func (v *Vault) Decrypt(ctx context.Context, keyRef string, ciphertext []byte) ([]byte, error) {
	ownerID, wrapped, err := v.keys.GetWrappedKey(ctx, keyRef)
	if err != nil {
		return nil, fmt.Errorf("loading wrapped key %s: %w", keyRef, err)
	}

	master, err := v.keys.GetMasterKey(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Owner master key destroyed: every document key is dead.
			return nil, fmt.Errorf("master key for %s: %w", ownerID, domain.ErrKeyRevoked)
		}
		return nil, fmt.Errorf("master key for %s: %w", ownerID, err)
	}

	dek, err := open(master, wrapped)
	if err != nil {
		return nil, fmt.Errorf("unwrapping data key %s: %w", keyRef, err)
	}

	plaintext, err := open(dek, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}

	logger.Usage("vault decrypt owner=%s key=%s bytes=%d", ownerID, keyRef, len(plaintext))
	return plaintext, nil
}

// Revoke irreversibly destroys the document key behind keyRef.
// Subsequent Decrypt calls fail with domain.ErrKeyRevoked.
func (v *Vault) Revoke(ctx context.Context, keyRef string) error {
	if err := v.keys.RevokeKey(ctx, keyRef); err != nil {
		return fmt.Errorf("revoking key %s: %w", keyRef, err)
	}
	logger.Usage("vault revoke key=%s", keyRef)
	return nil
}

// RevokeOwner destroys the owner's master key, invalidating all their
// documents at once.
func (v *Vault) RevokeOwner(ctx context.Context, ownerID string) error {
	if err := v.keys.RevokeOwner(ctx, ownerID); err != nil {
		return fmt.Errorf("revoking owner %s: %w", ownerID, err)
	}
	logger.Usage("vault revoke owner=%s", ownerID)
	return nil
}

// masterKey loads the owner's master key, creating one on first use.
func (v *Vault) masterKey(ctx context.Context, ownerID string) ([]byte, error) {
	key, err := v.keys.GetMasterKey(ctx, ownerID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}
	if err := v.keys.SaveMasterKey(ctx, ownerID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// seal encrypts data with AES-256-GCM; the random nonce is prepended.
func seal(key, data []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

// open decrypts data produced by seal.
func open(key, data []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(data) < aead.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, nil)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
