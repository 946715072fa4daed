package embedded

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"ragcore/internal/storage"
)

// VectorStore is the embedded VectorStorage implementation: vectors are
// persisted as little-endian float32 blobs (spec.md §6) and mirrored into
// an in-process coder/hnsw graph for approximate search, filtered
// per-project after retrieval (spec.md §4.2's "in-memory cosine with
// per-project filtering").
type VectorStore struct {
	db *DB

	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	nextKey uint64
	keyByID map[string]uint64
	meta    map[uint64]vecMeta
}

type vecMeta struct {
	id         string
	projectID  string
	ownerType  storage.OwnerType
	documentID string
}

func NewVectorStore(db *DB) (*VectorStore, error) {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.Ml = 0.25

	vs := &VectorStore{
		db:      db,
		graph:   g,
		keyByID: make(map[string]uint64),
		meta:    make(map[uint64]vecMeta),
	}
	if err := vs.rebuildFromDisk(); err != nil {
		return nil, err
	}
	return vs, nil
}

func (vs *VectorStore) rebuildFromDisk() error {
	rows, err := vs.db.read.Query(`SELECT id, project_id, owner_type, owner_id, document_id, vector FROM vectors`)
	if err != nil {
		return fmt.Errorf("rebuild vector index: %w", err)
	}
	defer rows.Close()

	vs.mu.Lock()
	defer vs.mu.Unlock()
	for rows.Next() {
		var id, projectID, ownerType, ownerID string
		var documentID sql.NullString
		var blob []byte
		if err := rows.Scan(&id, &projectID, &ownerType, &ownerID, &documentID, &blob); err != nil {
			return err
		}
		vec := decodeVector(blob)
		key := vs.nextKey
		vs.nextKey++
		vs.graph.Add(hnsw.MakeNode(key, vec))
		vs.keyByID[id] = key
		vs.meta[key] = vecMeta{id: id, projectID: projectID, ownerType: storage.OwnerType(ownerType), documentID: documentID.String}
	}
	return rows.Err()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func (vs *VectorStore) Upsert(ctx context.Context, e storage.Embedding) error {
	return vs.UpsertBatch(ctx, []storage.Embedding{e})
}

func (vs *VectorStore) UpsertBatch(ctx context.Context, es []storage.Embedding) error {
	if len(es) == 0 {
		return nil
	}
	tx, err := vs.db.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO vectors(id, project_id, owner_type, owner_id, document_id, vector)
VALUES(?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET project_id=excluded.project_id, owner_type=excluded.owner_type,
  owner_id=excluded.owner_id, document_id=excluded.document_id, vector=excluded.vector`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range es {
		var docID any
		if e.DocumentID != "" {
			docID = e.DocumentID
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.ProjectID, string(e.OwnerType), e.OwnerID, docID, encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("upsert vector %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()
	for _, e := range es {
		key, exists := vs.keyByID[e.ID]
		if exists {
			delete(vs.meta, key) // lazy delete; coder/hnsw dislikes removing the last node
		}
		key = vs.nextKey
		vs.nextKey++
		vs.graph.Add(hnsw.MakeNode(key, e.Vector))
		vs.keyByID[e.ID] = key
		vs.meta[key] = vecMeta{id: e.ID, projectID: e.ProjectID, ownerType: e.OwnerType, documentID: e.DocumentID}
	}
	return nil
}

func (vs *VectorStore) Query(ctx context.Context, projectID string, vector []float32, topK int, owner storage.OwnerType) ([]storage.VectorResult, error) {
	if topK <= 0 {
		topK = 10
	}
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if vs.graph.Len() == 0 {
		return nil, nil
	}
	// Over-fetch to compensate for per-project/owner filtering after the
	// approximate search, matching the spec's "in-memory... per-project
	// filtering" design.
	fetch := topK * 8
	if fetch < 50 {
		fetch = 50
	}
	nodes := vs.graph.Search(vector, fetch)

	out := make([]storage.VectorResult, 0, topK)
	for _, n := range nodes {
		m, ok := vs.meta[n.Key]
		if !ok || m.projectID != projectID {
			continue
		}
		if owner != "" && m.ownerType != owner {
			continue
		}
		dist := vs.graph.Distance(vector, n.Value)
		out = append(out, storage.VectorResult{OwnerID: m.id, Score: 1 - float64(dist)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].OwnerID < out[j].OwnerID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (vs *VectorStore) Delete(ctx context.Context, projectID, ownerID string) error {
	return vs.DeleteBatch(ctx, projectID, []string{ownerID})
}

func (vs *VectorStore) DeleteBatch(ctx context.Context, projectID string, ownerIDs []string) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	tx, err := vs.db.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ownerIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE project_id=? AND owner_id=?`, projectID, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	for _, id := range ownerIDs {
		if key, ok := vs.keyByID[id]; ok {
			delete(vs.meta, key)
			delete(vs.keyByID, id)
		}
	}
	return nil
}

func (vs *VectorStore) DeleteByProject(ctx context.Context, projectID string) error {
	rows, err := vs.db.read.QueryContext(ctx, `SELECT owner_id FROM vectors WHERE project_id=?`, projectID)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	return vs.DeleteBatch(ctx, projectID, ids)
}

func (vs *VectorStore) DeleteEntityEmbeddings(ctx context.Context, projectID string, names []string) error {
	return vs.DeleteBatch(ctx, projectID, names)
}

func (vs *VectorStore) HasVectors(ctx context.Context, documentID string) (bool, error) {
	var n int
	err := vs.db.read.QueryRowContext(ctx, `SELECT COUNT(1) FROM vectors WHERE document_id=?`, documentID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
