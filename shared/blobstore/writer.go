package blobstore

import (
	"fmt"
	"os"

	"github.com/madnificent/mu-image-service/image/domain"
)

var _ domain.BlobWriter = (*Writer)(nil)

// Writer accumulates blob bytes in a temp file and publishes them
// atomically on Commit. A blob is never partially visible under the
// derived-images directory.
type Writer struct {
	file      *os.File
	tempPath  string
	finalPath string
	reference string
	committed bool
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Commit flushes the temp file and renames it into the derived-images
// directory, returning the blob's share:// reference.
func (w *Writer) Commit() (string, error) {
	if err := w.file.Close(); err != nil {
		return "", fmt.Errorf("failed to flush blob: %w", err)
	}

	if err := os.Rename(w.tempPath, w.finalPath); err != nil {
		return "", fmt.Errorf("failed to publish blob: %w", err)
	}

	w.committed = true

	return w.reference, nil
}

// Discard drops the pending temp file. It is a no-op after Commit and is
// safe to call multiple times.
func (w *Writer) Discard() error {
	if w.committed {
		return nil
	}

	_ = w.file.Close()

	if err := os.Remove(w.tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard blob: %w", err)
	}

	return nil
}
