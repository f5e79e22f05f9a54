// Package db holds the SQL plumbing shared by the embedded metadata
// store: the connection lifecycle contract and context-carried
// transactions.
package db

import (
	"database/sql"
)

// Database is the lifecycle contract of a metadata database backend.
type Database interface {
	Connect() error
	Close() error
	DB() *sql.DB
}
