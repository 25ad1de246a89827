// Package storage keeps the optional sqlite audit log of handled
// exchanges. Conversation state itself is never persisted.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"chatrelay/internal/config"
	"chatrelay/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// DB wraps the audit database connection.
type DB struct {
	*sql.DB
	path string
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*DB, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", expandedPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{DB: db, path: expandedPath}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SchemaVersion returns the applied migration version.
func (db *DB) SchemaVersion() (int, error) {
	return migrations.Version(db.DB)
}

// Tx wraps a transaction.
type Tx struct {
	*sql.Tx
}

// WithTx runs fn in a transaction, committing on success and rolling back
// on error.
func (db *DB) WithTx(fn func(*Tx) error) error {
	tx, err := db.DB.Begin()
	if err != nil {
		return err
	}

	if err := fn(&Tx{Tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
