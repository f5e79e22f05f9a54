package sqlite

import (
	"database/sql"
	"fmt"
)

// migration is a single schema migration step.
type migration struct {
	version int
	name    string
	up      string
}

// migrations is the ordered list of schema migrations. Each one must be
// idempotent and safe to run multiple times.
var migrations = []migration{
	{
		version: 1,
		name:    "create_source_images_table",
		up: `
			CREATE TABLE IF NOT EXISTS source_images (
				uuid TEXT PRIMARY KEY,
				uri TEXT NOT NULL UNIQUE,
				format TEXT NOT NULL,
				storage_ref TEXT NOT NULL
			);
		`,
	},
	{
		version: 2,
		name:    "create_derived_images_table",
		up: `
			CREATE TABLE IF NOT EXISTS derived_images (
				uri TEXT PRIMARY KEY,
				uuid TEXT NOT NULL,
				source_uri TEXT NOT NULL,
				format TEXT NOT NULL,
				width INTEGER,
				height INTEGER
			);

			CREATE INDEX IF NOT EXISTS idx_derived_images_key
			ON derived_images(source_uri, width, height);
		`,
	},
	{
		version: 3,
		name:    "create_storage_locations_table",
		up: `
			CREATE TABLE IF NOT EXISTS storage_locations (
				uuid TEXT PRIMARY KEY,
				data_source_uri TEXT NOT NULL,
				reference TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_storage_locations_data_source
			ON storage_locations(data_source_uri);
		`,
	},
}

// RunMigrations executes all pending migrations.
func RunMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion := 0
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d (%s): %w", m.version, m.name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			m.version,
			m.name,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
