package embedded

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ragcore/internal/merge"
	"ragcore/internal/storage"
)

// GraphStore is the embedded GraphStorage implementation: two relational
// tables (entities, relations) scoped by project_id, with BFS performed
// in-process (spec.md §4.2 allows either a recursive CTE or equivalent
// traversal; the embedded backend's modest expected scale makes an
// in-memory walk straightforward and keeps the single writer connection
// free during reads).
type GraphStore struct {
	db *DB
}

func NewGraphStore(db *DB) *GraphStore { return &GraphStore{db: db} }

func (g *GraphStore) CreateProjectGraph(ctx context.Context, projectID string) error {
	_, err := g.db.write.ExecContext(ctx, `INSERT OR IGNORE INTO projects(id, created_at) VALUES(?, datetime('now'))`, projectID)
	return err
}

func (g *GraphStore) DeleteProjectGraph(ctx context.Context, projectID string) error {
	tx, err := g.db.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM entities WHERE project_id=?`,
		`DELETE FROM relations WHERE project_id=?`,
		`DELETE FROM projects WHERE id=?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, projectID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (g *GraphStore) GraphExists(ctx context.Context, projectID string) (bool, error) {
	var n int
	err := g.db.read.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id=?`, projectID).Scan(&n)
	return n > 0, err
}

func (g *GraphStore) UpsertEntity(ctx context.Context, e storage.Entity) error {
	return g.UpsertEntities(ctx, []storage.Entity{e})
}

func (g *GraphStore) UpsertEntities(ctx context.Context, es []storage.Entity) error {
	if len(es) == 0 {
		return nil
	}
	tx, err := g.db.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range es {
		if err := upsertEntityTx(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertEntityTx(ctx context.Context, tx *sql.Tx, e storage.Entity) error {
	var existingDesc, existingIDs string
	err := tx.QueryRowContext(ctx, `SELECT description, source_chunk_ids FROM entities WHERE project_id=? AND name=?`,
		e.ProjectID, e.EntityName).Scan(&existingDesc, &existingIDs)
	switch {
	case err == sql.ErrNoRows:
		ids, _ := json.Marshal(merge.CapFIFO(dedupeStrings(e.SourceChunkIDs), merge.DefaultMaxSourceIDs))
		_, err = tx.ExecContext(ctx, `INSERT INTO entities(project_id, name, entity_type, description, source_chunk_ids) VALUES(?,?,?,?,?)`,
			e.ProjectID, e.EntityName, e.EntityType, e.Description, string(ids))
		return err
	case err != nil:
		return err
	default:
		var prevIDs []string
		_ = json.Unmarshal([]byte(existingIDs), &prevIDs)
		mergedDesc := mergeDescriptions(existingDesc, e.Description)
		mergedIDs, _ := json.Marshal(merge.CapFIFO(dedupeStrings(append(prevIDs, e.SourceChunkIDs...)), merge.DefaultMaxSourceIDs))
		_, err = tx.ExecContext(ctx, `UPDATE entities SET description=?, source_chunk_ids=? WHERE project_id=? AND name=?`,
			mergedDesc, string(mergedIDs), e.ProjectID, e.EntityName)
		return err
	}
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
	tx, err := g.db.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, r := range rs {
		if strings.EqualFold(r.SrcID, r.TgtID) {
			continue // self-loops forbidden, spec.md §3
		}
		if err := upsertRelationTx(ctx, tx, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertRelationTx(ctx context.Context, tx *sql.Tx, r storage.Relation) error {
	var existingDesc, existingKeywords, existingIDs string
	var existingWeight float64
	err := tx.QueryRowContext(ctx, `SELECT description, keywords, weight, source_chunk_ids FROM relations WHERE project_id=? AND src=? AND tgt=?`,
		r.ProjectID, r.SrcID, r.TgtID).Scan(&existingDesc, &existingKeywords, &existingWeight, &existingIDs)
	switch {
	case err == sql.ErrNoRows:
		kw, _ := json.Marshal(dedupeStrings(r.Keywords))
		ids, _ := json.Marshal(merge.CapFIFO(dedupeStrings(r.SourceChunkIDs), merge.DefaultMaxSourceIDs))
		_, err = tx.ExecContext(ctx, `INSERT INTO relations(project_id, src, tgt, description, keywords, weight, source_chunk_ids) VALUES(?,?,?,?,?,?,?)`,
			r.ProjectID, r.SrcID, r.TgtID, r.Description, string(kw), r.Weight, string(ids))
		return err
	case err != nil:
		return err
	default:
		var prevKw, prevIDs []string
		_ = json.Unmarshal([]byte(existingKeywords), &prevKw)
		_ = json.Unmarshal([]byte(existingIDs), &prevIDs)
		mergedDesc := mergeDescriptions(existingDesc, r.Description)
		mergedKw, _ := json.Marshal(dedupeStrings(append(prevKw, r.Keywords...)))
		mergedIDs, _ := json.Marshal(merge.CapFIFO(dedupeStrings(append(prevIDs, r.SourceChunkIDs...)), merge.DefaultMaxSourceIDs))
		_, err = tx.ExecContext(ctx, `UPDATE relations SET description=?, keywords=?, weight=?, source_chunk_ids=? WHERE project_id=? AND src=? AND tgt=?`,
			mergedDesc, string(mergedKw), existingWeight+r.Weight, string(mergedIDs), r.ProjectID, r.SrcID, r.TgtID)
		return err
	}
}

func (g *GraphStore) GetEntity(ctx context.Context, projectID, name string) (storage.Entity, bool, error) {
	var e storage.Entity
	var idsJSON string
	e.ProjectID, e.EntityName = projectID, name
	err := g.db.read.QueryRowContext(ctx, `SELECT entity_type, description, source_chunk_ids FROM entities WHERE project_id=? AND name=?`,
		projectID, name).Scan(&e.EntityType, &e.Description, &idsJSON)
	if err == sql.ErrNoRows {
		return storage.Entity{}, false, nil
	}
	if err != nil {
		return storage.Entity{}, false, err
	}
	_ = json.Unmarshal([]byte(idsJSON), &e.SourceChunkIDs)
	return e, true, nil
}

func (g *GraphStore) GetEntities(ctx context.Context, projectID string, names []string) (map[string]storage.Entity, error) {
	out := make(map[string]storage.Entity, len(names))
	const batchSize = 1000
	for start := 0; start < len(names); start += batchSize {
		end := start + batchSize
		if end > len(names) {
			end = len(names)
		}
		for _, n := range names[start:end] {
			if e, ok, err := g.GetEntity(ctx, projectID, n); err != nil {
				return nil, err
			} else if ok {
				out[n] = e
			}
		}
	}
	return out, nil
}

func (g *GraphStore) GetNodeDegreesBatch(ctx context.Context, projectID string, names []string) (map[string]int, error) {
	out := make(map[string]int, len(names))
	const batchSize = 500
	for start := 0; start < len(names); start += batchSize {
		end := start + batchSize
		if end > len(names) {
			end = len(names)
		}
		for _, n := range names[start:end] {
			var c int
			err := g.db.read.QueryRowContext(ctx, `SELECT COUNT(1) FROM relations WHERE project_id=? AND (src=? OR tgt=?)`, projectID, n, n).Scan(&c)
			if err != nil {
				return nil, err
			}
			out[n] = c
		}
	}
	return out, nil
}

func (g *GraphStore) GetRelationsForEntity(ctx context.Context, projectID, name string) ([]storage.Relation, error) {
	rows, err := g.db.read.QueryContext(ctx, `SELECT src, tgt, description, keywords, weight, source_chunk_ids FROM relations WHERE project_id=? AND (src=? OR tgt=?)`,
		projectID, name, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Relation
	for rows.Next() {
		var r storage.Relation
		var kw, ids string
		r.ProjectID = projectID
		if err := rows.Scan(&r.SrcID, &r.TgtID, &r.Description, &kw, &r.Weight, &ids); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(kw), &r.Keywords)
		_ = json.Unmarshal([]byte(ids), &r.SourceChunkIDs)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *GraphStore) GetEntitiesBySourceChunk(ctx context.Context, projectID, chunkID string) ([]storage.Entity, error) {
	rows, err := g.db.read.QueryContext(ctx, `SELECT name, entity_type, description, source_chunk_ids FROM entities WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Entity
	for rows.Next() {
		var e storage.Entity
		var idsJSON string
		e.ProjectID = projectID
		if err := rows.Scan(&e.EntityName, &e.EntityType, &e.Description, &idsJSON); err != nil {
			return nil, err
		}
		var ids []string
		_ = json.Unmarshal([]byte(idsJSON), &ids)
		for _, id := range ids {
			if id == chunkID {
				e.SourceChunkIDs = ids
				out = append(out, e)
				break
			}
		}
	}
	return out, rows.Err()
}

func (g *GraphStore) neighbors(ctx context.Context, projectID, name string) ([]string, error) {
	rows, err := g.db.read.QueryContext(ctx, `SELECT tgt FROM relations WHERE project_id=? AND src=? UNION SELECT src FROM relations WHERE project_id=? AND tgt=?`,
		projectID, name, projectID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out, rows.Err()
}

// TraverseBFS performs a level-by-level breadth-first walk with a
// visited-set for cycle detection and deterministic (lexicographic)
// neighbor order within each level (spec.md §4.2, tested scenario §8.4).
func (g *GraphStore) TraverseBFS(ctx context.Context, projectID, startName string, maxDepth, maxNodes int) ([]string, error) {
	visited := map[string]bool{startName: true}
	order := []string{startName}
	frontier := []string{startName}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var nextFrontier []string
		for _, node := range frontier {
			neigh, err := g.neighbors(ctx, projectID, node)
			if err != nil {
				return nil, err
			}
			for _, n := range neigh {
				if visited[n] {
					continue
				}
				visited[n] = true
				order = append(order, n)
				nextFrontier = append(nextFrontier, n)
				if maxNodes > 0 && len(order) >= maxNodes {
					return order, nil
				}
			}
		}
		sort.Strings(nextFrontier)
		frontier = nextFrontier
	}
	return order, nil
}

// FindShortestPath runs BFS from src and reconstructs the path to tgt,
// ties broken by lexicographic neighbor order (spec.md §4.2).
func (g *GraphStore) FindShortestPath(ctx context.Context, projectID, src, tgt string) ([]string, error) {
	if src == tgt {
		return []string{src}, nil
	}
	visited := map[string]bool{src: true}
	parent := map[string]string{}
	frontier := []string{src}

	for len(frontier) > 0 {
		var nextFrontier []string
		for _, node := range frontier {
			neigh, err := g.neighbors(ctx, projectID, node)
			if err != nil {
				return nil, err
			}
			for _, n := range neigh {
				if visited[n] {
					continue
				}
				visited[n] = true
				parent[n] = node
				if n == tgt {
					return reconstructPath(parent, src, tgt), nil
				}
				nextFrontier = append(nextFrontier, n)
			}
		}
		sort.Strings(nextFrontier)
		frontier = nextFrontier
	}
	return nil, fmt.Errorf("no path from %s to %s", src, tgt)
}

func reconstructPath(parent map[string]string, src, tgt string) []string {
	var path []string
	for n := tgt; ; {
		path = append([]string{n}, path...)
		if n == src {
			break
		}
		n = parent[n]
	}
	return path
}

func (g *GraphStore) DeleteBySourceID(ctx context.Context, projectID, sourceID string) error {
	rows, err := g.db.read.QueryContext(ctx, `SELECT name, source_chunk_ids FROM entities WHERE project_id=?`, projectID)
	if err != nil {
		return err
	}
	var toDelete []string
	for rows.Next() {
		var name, idsJSON string
		if err := rows.Scan(&name, &idsJSON); err != nil {
			rows.Close()
			return err
		}
		var ids []string
		_ = json.Unmarshal([]byte(idsJSON), &ids)
		for _, id := range ids {
			if id == sourceID {
				toDelete = append(toDelete, name)
				break
			}
		}
	}
	rows.Close()

	tx, err := g.db.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, name := range toDelete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE project_id=? AND name=?`, projectID, name); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE project_id=? AND (json_extract(source_chunk_ids,'$') LIKE ?)`, projectID, "%"+sourceID+"%"); err != nil {
		return err
	}
	return tx.Commit()
}

// MergeEntities implements C7's transactional merge: source entities and
// every relation touching them are deleted, then the target entity and
// the caller-computed redirected/deduped relations are upserted, all
// within one write transaction.
func (g *GraphStore) MergeEntities(ctx context.Context, projectID string, sourceNames []string, target storage.Entity, relations []storage.Relation) error {
	tx, err := g.db.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range sourceNames {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE project_id=? AND name=?`, projectID, name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE project_id=? AND (src=? OR tgt=?)`, projectID, name, name); err != nil {
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
	return tx.Commit()
}

func (g *GraphStore) GetStats(ctx context.Context, projectID string) (storage.GraphStats, error) {
	var s storage.GraphStats
	if err := g.db.read.QueryRowContext(ctx, `SELECT COUNT(1) FROM entities WHERE project_id=?`, projectID).Scan(&s.EntityCount); err != nil {
		return s, err
	}
	if err := g.db.read.QueryRowContext(ctx, `SELECT COUNT(1) FROM relations WHERE project_id=?`, projectID).Scan(&s.RelationCount); err != nil {
		return s, err
	}
	return s, nil
}
