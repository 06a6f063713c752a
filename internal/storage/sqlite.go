// Package storage persists the semantic graph in SQLite: the seeded atom
// table, compositions and relations with their sequences, ratings,
// evidence, and ingested content records.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		-- Seeding bookkeeping (seed version)
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		-- Immutable atom table, written once by the seeding pass
		CREATE TABLE IF NOT EXISTS atoms (
			code_point INTEGER PRIMARY KEY,
			x0 REAL NOT NULL,
			x1 REAL NOT NULL,
			x2 REAL NOT NULL,
			x3 REAL NOT NULL,
			key_hi INTEGER NOT NULL,
			key_lo INTEGER NOT NULL
		);

		-- Content-addressed composition rows; the hash is the identity
		CREATE TABLE IF NOT EXISTS compositions (
			hash TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			x0 REAL NOT NULL,
			x1 REAL NOT NULL,
			x2 REAL NOT NULL,
			x3 REAL NOT NULL,
			key_hi INTEGER NOT NULL,
			key_lo INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_compositions_key
			ON compositions(key_hi, key_lo);

		-- Ordered run-length-encoded children of each composition
		CREATE TABLE IF NOT EXISTS composition_entries (
			composition_hash TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			child_kind TEXT NOT NULL,
			child_code_point INTEGER,
			child_hash TEXT,
			occurrences INTEGER NOT NULL,
			PRIMARY KEY (composition_hash, ordinal)
		);
		CREATE INDEX IF NOT EXISTS idx_composition_entries_child
			ON composition_entries(child_hash) WHERE child_hash IS NOT NULL;

		CREATE TABLE IF NOT EXISTS relations (
			hash TEXT PRIMARY KEY,
			x0 REAL NOT NULL,
			x1 REAL NOT NULL,
			x2 REAL NOT NULL,
			x3 REAL NOT NULL,
			key_hi INTEGER NOT NULL,
			key_lo INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_relations_key
			ON relations(key_hi, key_lo);

		CREATE TABLE IF NOT EXISTS relation_entries (
			relation_hash TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			composition_hash TEXT NOT NULL,
			occurrences INTEGER NOT NULL,
			PRIMARY KEY (relation_hash, ordinal)
		);
		CREATE INDEX IF NOT EXISTS idx_relation_entries_composition
			ON relation_entries(composition_hash);

		-- Aggregate rating per relation; version guards read-modify-write
		CREATE TABLE IF NOT EXISTS relation_ratings (
			relation_hash TEXT PRIMARY KEY,
			rating REAL NOT NULL,
			observations REAL NOT NULL,
			version INTEGER NOT NULL
		);

		-- Append-only provenance; invalidation flips valid, never deletes
		CREATE TABLE IF NOT EXISTS relation_evidence (
			id TEXT PRIMARY KEY,
			relation_hash TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			rating REAL NOT NULL,
			weight REAL NOT NULL,
			valid INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			invalidated_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_evidence_relation
			ON relation_evidence(relation_hash);
		CREATE INDEX IF NOT EXISTS idx_evidence_content
			ON relation_evidence(content_hash);

		-- One row per ingestion event
		CREATE TABLE IF NOT EXISTS contents (
			hash TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			composition_hash TEXT NOT NULL,
			mode TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			mime TEXT,
			encoding TEXT,
			created_at INTEGER NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
