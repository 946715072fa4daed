package distributed

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"ragcore/internal/merge"
	"ragcore/internal/storage"
)

// GraphStore is the Postgres GraphStorage implementation. Every row is
// scoped by project_id; no query crosses that boundary (spec.md §4.2).
type GraphStore struct {
	db *DB
}

func NewGraphStore(db *DB) *GraphStore { return &GraphStore{db: db} }

func (g *GraphStore) CreateProjectGraph(ctx context.Context, projectID string) error {
	_, err := g.db.Pool.Exec(ctx, `INSERT INTO projects(id) VALUES($1) ON CONFLICT DO NOTHING`, projectID)
	return err
}

func (g *GraphStore) DeleteProjectGraph(ctx context.Context, projectID string) error {
	tx, err := g.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, stmt := range []string{
		`DELETE FROM entities WHERE project_id=$1`,
		`DELETE FROM relations WHERE project_id=$1`,
		`DELETE FROM projects WHERE id=$1`,
	} {
		if _, err := tx.Exec(ctx, stmt, projectID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (g *GraphStore) GraphExists(ctx context.Context, projectID string) (bool, error) {
	var n int
	err := g.db.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM projects WHERE id=$1`, projectID).Scan(&n)
	return n > 0, err
}

func (g *GraphStore) UpsertEntity(ctx context.Context, e storage.Entity) error {
	return g.UpsertEntities(ctx, []storage.Entity{e})
}

func (g *GraphStore) UpsertEntities(ctx context.Context, es []storage.Entity) error {
	if len(es) == 0 {
		return nil
	}
	tx, err := g.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, e := range es {
		if err := upsertEntityTx(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func upsertEntityTx(ctx context.Context, tx pgx.Tx, e storage.Entity) error {
	var existingDesc string
	var existingIDs []string
	err := tx.QueryRow(ctx, `SELECT description, source_chunk_ids FROM entities WHERE project_id=$1 AND name=$2`,
		e.ProjectID, e.EntityName).Scan(&existingDesc, &existingIDs)
	if err == pgx.ErrNoRows {
		_, err = tx.Exec(ctx, `INSERT INTO entities(project_id, name, entity_type, description, source_chunk_ids) VALUES($1,$2,$3,$4,$5)`,
			e.ProjectID, e.EntityName, e.EntityType, e.Description, merge.CapFIFO(dedupeStrings(e.SourceChunkIDs), merge.DefaultMaxSourceIDs))
		return err
	}
	if err != nil {
		return err
	}
	mergedDesc := mergeDescriptions(existingDesc, e.Description)
	mergedIDs := merge.CapFIFO(dedupeStrings(append(existingIDs, e.SourceChunkIDs...)), merge.DefaultMaxSourceIDs)
	_, err = tx.Exec(ctx, `UPDATE entities SET description=$1, source_chunk_ids=$2 WHERE project_id=$3 AND name=$4`,
		mergedDesc, mergedIDs, e.ProjectID, e.EntityName)
	return err
}

func mergeDescriptions(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" || strings.Contains(a, b) {
		return a
	}
	return a + " | " + b
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (g *GraphStore) UpsertRelation(ctx context.Context, r storage.Relation) error {
	return g.UpsertRelations(ctx, []storage.Relation{r})
}

func (g *GraphStore) UpsertRelations(ctx context.Context, rs []storage.Relation) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := g.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, r := range rs {
		if strings.EqualFold(r.SrcID, r.TgtID) {
			continue
		}
		if err := upsertRelationTx(ctx, tx, r); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func upsertRelationTx(ctx context.Context, tx pgx.Tx, r storage.Relation) error {
	var existingDesc string
	var existingKeywords, existingIDs []string
	var existingWeight float64
	err := tx.QueryRow(ctx, `SELECT description, keywords, weight, source_chunk_ids FROM relations WHERE project_id=$1 AND src=$2 AND tgt=$3`,
		r.ProjectID, r.SrcID, r.TgtID).Scan(&existingDesc, &existingKeywords, &existingWeight, &existingIDs)
	if err == pgx.ErrNoRows {
		_, err = tx.Exec(ctx, `INSERT INTO relations(project_id, src, tgt, description, keywords, weight, source_chunk_ids) VALUES($1,$2,$3,$4,$5,$6,$7)`,
			r.ProjectID, r.SrcID, r.TgtID, r.Description, dedupeStrings(r.Keywords), r.Weight, merge.CapFIFO(dedupeStrings(r.SourceChunkIDs), merge.DefaultMaxSourceIDs))
		return err
	}
	if err != nil {
		return err
	}
	mergedDesc := mergeDescriptions(existingDesc, r.Description)
	mergedKw := dedupeStrings(append(existingKeywords, r.Keywords...))
	mergedIDs := merge.CapFIFO(dedupeStrings(append(existingIDs, r.SourceChunkIDs...)), merge.DefaultMaxSourceIDs)
	_, err = tx.Exec(ctx, `UPDATE relations SET description=$1, keywords=$2, weight=$3, source_chunk_ids=$4 WHERE project_id=$5 AND src=$6 AND tgt=$7`,
		mergedDesc, mergedKw, existingWeight+r.Weight, mergedIDs, r.ProjectID, r.SrcID, r.TgtID)
	return err
}

func (g *GraphStore) GetEntity(ctx context.Context, projectID, name string) (storage.Entity, bool, error) {
	var e storage.Entity
	e.ProjectID, e.EntityName = projectID, name
	err := g.db.Pool.QueryRow(ctx, `SELECT entity_type, description, source_chunk_ids FROM entities WHERE project_id=$1 AND name=$2`,
		projectID, name).Scan(&e.EntityType, &e.Description, &e.SourceChunkIDs)
	if err == pgx.ErrNoRows {
		return storage.Entity{}, false, nil
	}
	if err != nil {
		return storage.Entity{}, false, err
	}
	return e, true, nil
}

func (g *GraphStore) GetEntities(ctx context.Context, projectID string, names []string) (map[string]storage.Entity, error) {
	if len(names) == 0 {
		return map[string]storage.Entity{}, nil
	}
	rows, err := g.db.Pool.Query(ctx, `SELECT name, entity_type, description, source_chunk_ids FROM entities WHERE project_id=$1 AND name = ANY($2)`,
		projectID, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]storage.Entity, len(names))
	for rows.Next() {
		e := storage.Entity{ProjectID: projectID}
		if err := rows.Scan(&e.EntityName, &e.EntityType, &e.Description, &e.SourceChunkIDs); err != nil {
			return nil, err
		}
		out[e.EntityName] = e
	}
	return out, rows.Err()
}

func (g *GraphStore) GetNodeDegreesBatch(ctx context.Context, projectID string, names []string) (map[string]int, error) {
	out := make(map[string]int, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := g.db.Pool.Query(ctx, `
SELECT n.name, COUNT(r.*) FROM unnest($2::text[]) AS n(name)
LEFT JOIN relations r ON r.project_id=$1 AND (r.src=n.name OR r.tgt=n.name)
GROUP BY n.name`, projectID, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var c int
		if err := rows.Scan(&name, &c); err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, rows.Err()
}

func (g *GraphStore) GetRelationsForEntity(ctx context.Context, projectID, name string) ([]storage.Relation, error) {
	rows, err := g.db.Pool.Query(ctx, `SELECT src, tgt, description, keywords, weight, source_chunk_ids FROM relations WHERE project_id=$1 AND (src=$2 OR tgt=$2)`,
		projectID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Relation
	for rows.Next() {
		r := storage.Relation{ProjectID: projectID}
		if err := rows.Scan(&r.SrcID, &r.TgtID, &r.Description, &r.Keywords, &r.Weight, &r.SourceChunkIDs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *GraphStore) GetEntitiesBySourceChunk(ctx context.Context, projectID, chunkID string) ([]storage.Entity, error) {
	rows, err := g.db.Pool.Query(ctx, `SELECT name, entity_type, description, source_chunk_ids FROM entities WHERE project_id=$1 AND $2 = ANY(source_chunk_ids)`,
		projectID, chunkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Entity
	for rows.Next() {
		e := storage.Entity{ProjectID: projectID}
		if err := rows.Scan(&e.EntityName, &e.EntityType, &e.Description, &e.SourceChunkIDs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TraverseBFS uses a recursive CTE to walk the graph breadth-first,
// matching spec.md §4.2's suggested implementation for the distributed
// backend. The depth cap is applied in the query; the results are then
// ordered by discovery depth then lexicographic name, and the node-count
// cap keeps the first maxNodes of that order.
func (g *GraphStore) TraverseBFS(ctx context.Context, projectID, startName string, maxDepth, maxNodes int) ([]string, error) {
	const q = `
WITH RECURSIVE bfs(name, depth, path) AS (
	SELECT $2::text, 0, ARRAY[$2::text]
	UNION
	SELECT CASE WHEN r.src = b.name THEN r.tgt ELSE r.src END, b.depth + 1, b.path || CASE WHEN r.src = b.name THEN r.tgt ELSE r.src END
	FROM bfs b
	JOIN relations r ON r.project_id = $1 AND (r.src = b.name OR r.tgt = b.name)
	WHERE b.depth < $3
	  AND NOT (CASE WHEN r.src = b.name THEN r.tgt ELSE r.src END = ANY(b.path))
)
SELECT DISTINCT ON (name) name, depth FROM bfs ORDER BY name, depth`
	rows, err := g.db.Pool.Query(ctx, q, projectID, startName, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	type hit struct {
		name  string
		depth int
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.name, &h.depth); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].depth != hits[j].depth {
			return hits[i].depth < hits[j].depth
		}
		return hits[i].name < hits[j].name
	})
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.name)
		if maxNodes > 0 && len(out) >= maxNodes {
			break
		}
	}
	return out, nil
}

func (g *GraphStore) FindShortestPath(ctx context.Context, projectID, src, tgt string) ([]string, error) {
	if src == tgt {
		return []string{src}, nil
	}
	const q = `
WITH RECURSIVE bfs(name, path) AS (
	SELECT $2::text, ARRAY[$2::text]
	UNION
	SELECT CASE WHEN r.src = b.name THEN r.tgt ELSE r.src END, b.path || CASE WHEN r.src = b.name THEN r.tgt ELSE r.src END
	FROM bfs b
	JOIN relations r ON r.project_id = $1 AND (r.src = b.name OR r.tgt = b.name)
	WHERE NOT (CASE WHEN r.src = b.name THEN r.tgt ELSE r.src END = ANY(b.path))
)
SELECT path FROM bfs WHERE name = $3 ORDER BY array_length(path, 1) ASC LIMIT 1`
	var path []string
	err := g.db.Pool.QueryRow(ctx, q, projectID, src, tgt).Scan(&path)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("no path from %s to %s", src, tgt)
	}
	return path, err
}

func (g *GraphStore) DeleteBySourceID(ctx context.Context, projectID, sourceID string) error {
	tx, err := g.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE project_id=$1 AND $2 = ANY(source_chunk_ids)`, projectID, sourceID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM relations WHERE project_id=$1 AND $2 = ANY(source_chunk_ids)`, projectID, sourceID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MergeEntities implements C7's transactional merge.
func (g *GraphStore) MergeEntities(ctx context.Context, projectID string, sourceNames []string, target storage.Entity, relations []storage.Relation) error {
	tx, err := g.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if len(sourceNames) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE project_id=$1 AND name = ANY($2)`, projectID, sourceNames); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM relations WHERE project_id=$1 AND (src = ANY($2) OR tgt = ANY($2))`, projectID, sourceNames); err != nil {
			return err
		}
	}
	if err := upsertEntityTx(ctx, tx, target); err != nil {
		return err
	}
	for _, r := range relations {
		if strings.EqualFold(r.SrcID, r.TgtID) {
			continue
		}
		if err := upsertRelationTx(ctx, tx, r); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (g *GraphStore) GetStats(ctx context.Context, projectID string) (storage.GraphStats, error) {
	var s storage.GraphStats
	if err := g.db.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM entities WHERE project_id=$1`, projectID).Scan(&s.EntityCount); err != nil {
		return s, err
	}
	if err := g.db.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM relations WHERE project_id=$1`, projectID).Scan(&s.RelationCount); err != nil {
		return s, err
	}
	return s, nil
}
