package embedded

import (
	"context"
	"database/sql"

	"ragcore/internal/storage"
)

// ExtractionCacheStore is the embedded ExtractionCacheStorage implementation,
// keyed on (projectId, cacheType, contentHash) per spec.md §3.
type ExtractionCacheStore struct {
	db *DB
}

func NewExtractionCacheStore(db *DB) *ExtractionCacheStore { return &ExtractionCacheStore{db: db} }

func (c *ExtractionCacheStore) Get(ctx context.Context, projectID string, cacheType storage.CacheType, contentHash string) (storage.ExtractionCacheEntry, bool, error) {
	var e storage.ExtractionCacheEntry
	e.ProjectID, e.CacheType, e.ContentHash = projectID, cacheType, contentHash
	err := c.db.read.QueryRowContext(ctx, `SELECT result, tokens_used FROM extraction_cache WHERE project_id=? AND cache_type=? AND content_hash=?`,
		projectID, string(cacheType), contentHash).Scan(&e.Result, &e.TokensUsed)
	if err == sql.ErrNoRows {
		return storage.ExtractionCacheEntry{}, false, nil
	}
	if err != nil {
		return storage.ExtractionCacheEntry{}, false, err
	}
	return e, true, nil
}

func (c *ExtractionCacheStore) Put(ctx context.Context, entry storage.ExtractionCacheEntry) error {
	_, err := c.db.write.ExecContext(ctx, `
INSERT INTO extraction_cache(project_id, cache_type, content_hash, result, tokens_used)
VALUES(?,?,?,?,?)
ON CONFLICT(project_id, cache_type, content_hash) DO UPDATE SET result=excluded.result, tokens_used=excluded.tokens_used`,
		entry.ProjectID, string(entry.CacheType), entry.ContentHash, entry.Result, entry.TokensUsed)
	return err
}

// DeleteByProject removes every cache entry for projectID (C11 cascade).
func (c *ExtractionCacheStore) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := c.db.write.ExecContext(ctx, `DELETE FROM extraction_cache WHERE project_id=?`, projectID)
	return err
}
