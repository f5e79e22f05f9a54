package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/madnificent/mu-image-service/image/domain"
	"github.com/madnificent/mu-image-service/shared/db"
)

var _ domain.MetadataStore = (*SQLiteStore)(nil)

// SQLiteStore implements domain.MetadataStore on the embedded SQLite
// database. It satisfies the same contract as SPARQLStore, including the
// attribute-presence cache key semantics: an unset dimension is stored as
// NULL and only matches NULL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store from a migrated database connection.
func NewSQLiteStore(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqlDB}
}

const lookupSourceSQL = `
	SELECT uri, format, storage_ref
	FROM source_images
	WHERE uuid = ?
`

// LookupSource resolves a source image by its stable identifier.
func (s *SQLiteStore) LookupSource(ctx context.Context, id string) (*domain.SourceImage, error) {
	src := domain.SourceImage{ID: id}

	err := s.db.QueryRowContext(ctx, lookupSourceSQL, id).Scan(&src.URI, &src.Format, &src.Location.Reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source image %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up source image %q: %w", id, err)
	}

	return &src, nil
}

const lookupDerivedSQL = `
	SELECT sl.uuid, sl.reference
	FROM derived_images di
	JOIN storage_locations sl ON sl.data_source_uri = di.uri
	WHERE di.source_uri = ? AND di.width IS ? AND di.height IS ?
	LIMIT 1
`

// LookupDerived finds a cached derivative for the exact cache key.
func (s *SQLiteStore) LookupDerived(ctx context.Context, sourceURI string, width, height int) (*domain.StorageLocation, error) {
	var loc domain.StorageLocation

	err := s.db.QueryRowContext(ctx, lookupDerivedSQL, sourceURI, dimension(width), dimension(height)).
		Scan(&loc.ID, &loc.Reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up derived image: %w", err)
	}

	return &loc, nil
}

const insertDerivedSQL = `
	INSERT INTO derived_images (uri, uuid, source_uri, format, width, height)
	VALUES (?, ?, ?, ?, ?, ?)
`

const insertLocationSQL = `
	INSERT INTO storage_locations (uuid, data_source_uri, reference)
	VALUES (?, ?, ?)
`

// RecordDerived creates the derivative and its storage location in a
// single transaction.
func (s *SQLiteStore) RecordDerived(ctx context.Context, img *domain.DerivedImage) error {
	if img == nil {
		return fmt.Errorf("derived image cannot be nil")
	}

	return db.RunInTransaction(ctx, s.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, s.db)

		_, err := executor.ExecContext(txCtx, insertDerivedSQL,
			img.URI,
			img.ID,
			img.SourceURI,
			img.Format,
			dimension(img.Width),
			dimension(img.Height),
		)
		if err != nil {
			return fmt.Errorf("failed to insert derived image record: %w", err)
		}

		_, err = executor.ExecContext(txCtx, insertLocationSQL,
			img.Location.ID,
			img.URI,
			img.Location.Reference,
		)
		if err != nil {
			return fmt.Errorf("failed to insert storage location record: %w", err)
		}

		return nil
	})
}

// dimension maps the unset sentinel to NULL so binding with IS compares
// attribute presence, not numbers.
func dimension(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
