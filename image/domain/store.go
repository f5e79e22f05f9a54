package domain

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound indicates no record exists for the requested identifier
	// or cache key.
	ErrNotFound = errors.New("file not found")

	// ErrStorageLocation indicates a metadata record references a physical
	// location of an unrecognized scheme, or the referenced blob is
	// unreadable. This is a data/configuration error, not a cache miss.
	ErrStorageLocation = errors.New("unsupported storage location")
)

// MetadataStore is the read/write contract against the durable metadata
// store holding file and derivative-relationship records.
type MetadataStore interface {
	// LookupSource resolves a source image by its stable identifier.
	// Returns ErrNotFound when no record carries the identifier.
	LookupSource(ctx context.Context, id string) (*SourceImage, error)

	// LookupDerived finds the storage location of an existing derivative
	// for the exact (sourceURI, width, height) key. A dimension of 0 means
	// unset and only matches records lacking that attribute. Returns
	// ErrNotFound on a cache miss.
	LookupDerived(ctx context.Context, sourceURI string, width, height int) (*StorageLocation, error)

	// RecordDerived creates the derivative record, its storage location and
	// the linking relations in a single atomic write.
	RecordDerived(ctx context.Context, img *DerivedImage) error
}

// BlobWriter is a writable blob that becomes visible only on Commit.
type BlobWriter interface {
	io.Writer

	// Commit makes the blob readable and returns its storage reference.
	Commit() (string, error)

	// Discard drops the pending blob. Safe to call after Commit.
	Discard() error
}

// BlobStore is a flat, append-only byte store addressed by generated
// identifiers.
type BlobStore interface {
	// Open resolves a storage reference and opens the blob for reading.
	// Returns ErrStorageLocation for references of an unrecognized scheme
	// and for records whose referenced bytes are missing or unreadable.
	Open(ctx context.Context, reference string) (io.ReadCloser, error)

	// Create opens a writable blob at a fresh location. The caller supplies
	// a collision-resistant identifier.
	Create(ctx context.Context, id string) (BlobWriter, error)
}
