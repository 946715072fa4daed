// Package embedded implements the C2 "embedded" backend: a single SQLite
// file for relational state plus an in-process coder/hnsw index for
// vector similarity, matching spec.md §4.2's "single-file database;
// vector similarity... in-memory cosine with per-project filtering
// (acceptable up to ~100,000 vectors); graph is a pair of relational
// tables with recursive CTEs for traversal".
//
// Grounded on Aman-CERP-amanmcp's internal/store/hnsw.go (HNSW wrapper
// idiom) and internal/store/sqlite_bm25.go (SQLite pragmas and
// single-writer concurrency model), adapted from a local code-search
// index to this module's per-project graph+vector+cache schema.
package embedded

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the single SQLite file backing every embedded contract. Per
// spec.md §4.2, writes are serialized through a single connection while
// reads may use a larger pool; per spec.md §6 the file is opened with
// WAL, synchronous=NORMAL, foreign_keys=on, a busy_timeout >= 30s, and a
// generous page cache.
type DB struct {
	write *sql.DB // one connection, serialized writes
	read  *sql.DB // pooled, read-only workloads
}

func NewDB(path string) (*DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	pragmas := "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=30000&_cache_size=-65536"
	writeDSN := "file:" + dsn + pragmas
	readDSN := "file:" + dsn + pragmas + "&mode=ro"
	if dsn == "file::memory:?cache=shared" {
		writeDSN = dsn
		readDSN = dsn
	}

	w, err := sql.Open("sqlite3", writeDSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite (write): %w", err)
	}
	w.SetMaxOpenConns(1)

	r, err := sql.Open("sqlite3", readDSN)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("open sqlite (read): %w", err)
	}
	r.SetMaxOpenConns(8)

	d := &DB{write: w, read: r}
	if err := d.migrate(); err != nil {
		w.Close()
		r.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	err1 := d.write.Close()
	err2 := d.read.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			description TEXT NOT NULL,
			source_chunk_ids TEXT NOT NULL,
			PRIMARY KEY (project_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			project_id TEXT NOT NULL,
			src TEXT NOT NULL,
			tgt TEXT NOT NULL,
			description TEXT NOT NULL,
			keywords TEXT NOT NULL,
			weight REAL NOT NULL,
			source_chunk_ids TEXT NOT NULL,
			PRIMARY KEY (project_id, src, tgt)
		)`,
		`CREATE INDEX IF NOT EXISTS relations_src ON relations(project_id, src)`,
		`CREATE INDEX IF NOT EXISTS relations_tgt ON relations(project_id, tgt)`,
		`CREATE TABLE IF NOT EXISTS vectors (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			owner_type TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			document_id TEXT,
			vector BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS vectors_project ON vectors(project_id, owner_type)`,
		`CREATE INDEX IF NOT EXISTS vectors_document ON vectors(document_id)`,
		`CREATE TABLE IF NOT EXISTS extraction_cache (
			project_id TEXT NOT NULL,
			cache_type TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			result TEXT NOT NULL,
			tokens_used INTEGER NOT NULL,
			PRIMARY KEY (project_id, cache_type, content_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS doc_status (
			document_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			chunks INTEGER NOT NULL DEFAULT 0,
			entities INTEGER NOT NULL DEFAULT 0,
			relations INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at TEXT,
			completed_at TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := d.write.Exec(s); err != nil {
			return fmt.Errorf("migrate: %w: %s", err, s)
		}
	}
	return nil
}
