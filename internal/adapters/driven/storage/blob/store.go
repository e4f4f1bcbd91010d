// Package blob provides a filesystem-backed blob store for encrypted
// document bytes.
//
// Writes are staged to a temporary file and committed by rename, so a
// crash mid-write never leaves a partial blob behind a committed
// reference.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.BlobStore = (*Store)(nil)

// Store persists blobs as files under a root directory.
type Store struct {
	root string
}

// NewStore creates a blob store rooted at the given directory.
// If root is empty, defaults to ~/.docvault/data/blobs.
func NewStore(root string) (*Store, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		root = filepath.Join(home, ".docvault", "data", "blobs")
	}

	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	return &Store{root: root}, nil
}

// Put stages the blob to a temporary file and commits it with a rename.
func (s *Store) Put(_ context.Context, ref string, data []byte) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".staged-*")
	if err != nil {
		return fmt.Errorf("staging blob %s: %w", ref, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing blob %s: %w", ref, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing blob %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing staged blob %s: %w", ref, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing blob %s: %w", ref, err)
	}
	return nil
}

// Get retrieves a blob by reference.
func (s *Store) Get(_ context.Context, ref string) ([]byte, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", ref, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("reading blob %s: %w", ref, err)
	}
	return data, nil
}

// Delete removes a blob. A missing blob is not an error.
func (s *Store) Delete(_ context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting blob %s: %w", ref, err)
	}
	return nil
}

// path maps a reference to a file path, rejecting refs that would escape
// the root directory.
func (s *Store) path(ref string) (string, error) {
	if ref == "" || strings.ContainsAny(ref, "/\\") || strings.Contains(ref, "..") {
		return "", fmt.Errorf("blob ref %q: %w", ref, domain.ErrInvalidInput)
	}
	return filepath.Join(s.root, ref), nil
}
