package distributed

import (
	"context"

	"github.com/jackc/pgx/v5"

	"ragcore/internal/storage"
)

// ExtractionCacheStore is the Postgres ExtractionCacheStorage implementation.
type ExtractionCacheStore struct {
	db *DB
}

func NewExtractionCacheStore(db *DB) *ExtractionCacheStore { return &ExtractionCacheStore{db: db} }

func (c *ExtractionCacheStore) Get(ctx context.Context, projectID string, cacheType storage.CacheType, contentHash string) (storage.ExtractionCacheEntry, bool, error) {
	var e storage.ExtractionCacheEntry
	e.ProjectID, e.CacheType, e.ContentHash = projectID, cacheType, contentHash
	err := c.db.Pool.QueryRow(ctx, `SELECT result, tokens_used FROM extraction_cache WHERE project_id=$1 AND cache_type=$2 AND content_hash=$3`,
		projectID, string(cacheType), contentHash).Scan(&e.Result, &e.TokensUsed)
	if err == pgx.ErrNoRows {
		return storage.ExtractionCacheEntry{}, false, nil
	}
	if err != nil {
		return storage.ExtractionCacheEntry{}, false, err
	}
	return e, true, nil
}

func (c *ExtractionCacheStore) Put(ctx context.Context, entry storage.ExtractionCacheEntry) error {
	_, err := c.db.Pool.Exec(ctx, `
INSERT INTO extraction_cache(project_id, cache_type, content_hash, result, tokens_used)
VALUES($1,$2,$3,$4,$5)
ON CONFLICT(project_id, cache_type, content_hash) DO UPDATE SET result=excluded.result, tokens_used=excluded.tokens_used`,
		entry.ProjectID, string(entry.CacheType), entry.ContentHash, entry.Result, entry.TokensUsed)
	return err
}

// DeleteByProject removes every cache entry for projectID (C11 cascade).
func (c *ExtractionCacheStore) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := c.db.Pool.Exec(ctx, `DELETE FROM extraction_cache WHERE project_id=$1`, projectID)
	return err
}
