// Package blobstore implements a filesystem-backed blob store for derived
// images. Blobs live in a single flat directory under the share root, each
// named by a freshly generated identifier; format is implied by the linked
// metadata record, so entries carry no extension.
//
// Physical references use the "share://" logical scheme, resolved relative
// to the share root. References of any other scheme are rejected with
// domain.ErrStorageLocation.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/madnificent/mu-image-service/image/domain"
)

const (
	// Scheme is the logical prefix of share-relative storage references.
	Scheme = "share://"

	derivedDirName = "derivedImages"
	tempDirName    = ".tmp"
)

// Store is a flat-directory blob store rooted at the share folder.
// All methods are safe for concurrent use; writes never collide because
// every write targets a freshly generated identifier.
type Store struct {
	root string
}

// New creates a Store rooted at root and ensures the derived-images and
// temp directories exist. Creation is idempotent and runs once during
// process setup.
func New(root string) (*Store, error) {
	root = filepath.Clean(root)

	if err := os.MkdirAll(filepath.Join(root, derivedDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create derived images directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Store{root: root}, nil
}

// Open resolves a storage reference and opens the referenced blob. A
// reference that resolves but points at missing bytes is a dangling
// metadata record, so it is reported as domain.ErrStorageLocation, not as
// a not-found.
func (s *Store) Open(ctx context.Context, reference string) (io.ReadCloser, error) {
	path, err := s.resolve(reference)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %q missing: %w", reference, domain.ErrStorageLocation)
		}
		return nil, fmt.Errorf("failed to open blob %q: %w", reference, err)
	}

	return f, nil
}

// Create opens a writable blob for the given identifier. Bytes go to a
// temp file first; the blob only becomes visible under the derived-images
// directory when Commit renames it into place.
func (s *Store) Create(ctx context.Context, id string) (domain.BlobWriter, error) {
	tempPath := filepath.Join(s.root, tempDirName, id)

	f, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob %q: %w", id, err)
	}

	return &Writer{
		file:      f,
		tempPath:  tempPath,
		finalPath: filepath.Join(s.root, derivedDirName, id),
		reference: Scheme + derivedDirName + "/" + id,
	}, nil
}

// resolve maps a share:// reference to a path under the store root.
// Absolute paths are accepted as already-resolved references.
func (s *Store) resolve(reference string) (string, error) {
	if filepath.IsAbs(reference) {
		return filepath.Clean(reference), nil
	}

	if !strings.HasPrefix(reference, Scheme) {
		return "", fmt.Errorf("reference %q: %w", reference, domain.ErrStorageLocation)
	}

	relative := strings.TrimPrefix(reference, Scheme)
	if strings.Contains(relative, "..") {
		return "", fmt.Errorf("reference %q: %w", reference, domain.ErrStorageLocation)
	}

	return filepath.Join(s.root, filepath.FromSlash(relative)), nil
}
