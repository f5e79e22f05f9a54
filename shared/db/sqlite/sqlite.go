// Package sqlite provides the embedded metadata database used when the
// service runs without an external graph store.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/madnificent/mu-image-service/shared/db"
	_ "modernc.org/sqlite"
)

const defaultPath = "./image-service.db"

type Config struct {
	Path string
}

// NewConfig reads the database path from the SQLITE_DB_PATH environment
// variable, defaulting to a file next to the binary.
func NewConfig() *Config {
	path := os.Getenv("SQLITE_DB_PATH")
	if path == "" {
		path = defaultPath
	}

	return &Config{Path: path}
}

var _ db.Database = (*DB)(nil)

// DB implements the db.Database interface for SQLite.
type DB struct {
	dbPath string
	db     *sql.DB
}

// NewDB creates a SQLite database instance for the configured path.
func NewDB(cfg *Config) *DB {
	return &DB{dbPath: cfg.Path}
}

// Connect opens the database, applies the pragmas the service relies on
// and runs any pending migrations.
func (s *DB) Connect() error {
	if s.db != nil {
		return fmt.Errorf("database already connected")
	}

	conn, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := RunMigrations(conn); err != nil {
		conn.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s.db = conn

	return nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the underlying *sql.DB instance.
func (s *DB) DB() *sql.DB {
	return s.db
}
