// Package distributed implements the C2 "distributed" backend: Postgres
// (with pgvector) for relational and vector state, matching spec.md §4.2's
// "horizontally scalable; dedicated vector index; graph as relational
// tables with recursive CTEs, or a native graph store behind the same
// interface". A Qdrant-backed VectorStorage is also provided as an
// alternative to pgvector, selected by configuration.
//
// Grounded on intelligencedev-manifold's internal/persistence/databases
// (postgres_graph.go, postgres_vector.go, qdrant_vector.go), generalized
// from its single-tenant nodes/edges/embeddings tables to this module's
// per-project multi-tenant schema, and from hand-built vector literals to
// pgvector/pgvector-go's typed Vector.
package distributed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the shared pgxpool.Pool and runs schema bootstrap once at
// startup (grounded on sefii/engine.go's EnsureTable/to_regclass idiom:
// idempotent CREATE TABLE IF NOT EXISTS rather than a migration runner).
type DB struct {
	Pool       *pgxpool.Pool
	Dimensions int
}

func NewDB(ctx context.Context, dsn string, dimensions int) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	d := &DB{Pool: pool, Dimensions: dimensions}
	if err := d.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	d.Pool.Close()
	return nil
}

func (d *DB) migrate(ctx context.Context) error {
	_, _ = d.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)

	vecType := "vector"
	if d.Dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", d.Dimensions)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source_chunk_ids TEXT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (project_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			project_id TEXT NOT NULL,
			src TEXT NOT NULL,
			tgt TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			weight DOUBLE PRECISION NOT NULL DEFAULT 0,
			source_chunk_ids TEXT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (project_id, src, tgt)
		)`,
		`CREATE INDEX IF NOT EXISTS relations_src ON relations(project_id, src)`,
		`CREATE INDEX IF NOT EXISTS relations_tgt ON relations(project_id, tgt)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vectors (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			owner_type TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			document_id TEXT,
			model TEXT NOT NULL DEFAULT '',
			vec %s
		)`, vecType),
		`CREATE INDEX IF NOT EXISTS vectors_project ON vectors(project_id, owner_type)`,
		`CREATE INDEX IF NOT EXISTS vectors_document ON vectors(document_id)`,
	}
	if d.Dimensions > 0 {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS vectors_hnsw ON vectors USING hnsw (vec vector_cosine_ops)`)
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS extraction_cache (
			project_id TEXT NOT NULL,
			cache_type TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			result TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (project_id, cache_type, content_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS doc_status (
			document_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			chunks INTEGER NOT NULL DEFAULT 0,
			entities INTEGER NOT NULL DEFAULT 0,
			relations INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
	}
	for _, s := range stmts {
		if _, err := d.Pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w: %s", err, s)
		}
	}
	return nil
}
