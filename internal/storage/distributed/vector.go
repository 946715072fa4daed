package distributed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"ragcore/internal/storage"
)

// VectorStore is the pgvector-backed VectorStorage implementation,
// adapted from postgres_vector.go's raw vector-literal approach to the
// typed pgvector.Vector wire format.
type VectorStore struct {
	db     *DB
	metric string // cosine|l2|ip
}

func NewVectorStore(db *DB, metric string) *VectorStore {
	if metric == "" {
		metric = "cosine"
	}
	return &VectorStore{db: db, metric: metric}
}

func (v *VectorStore) Upsert(ctx context.Context, e storage.Embedding) error {
	return v.UpsertBatch(ctx, []storage.Embedding{e})
}

func (v *VectorStore) UpsertBatch(ctx context.Context, es []storage.Embedding) error {
	if len(es) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range es {
		var docID any
		if e.DocumentID != "" {
			docID = e.DocumentID
		}
		batch.Queue(`
INSERT INTO vectors(id, project_id, owner_type, owner_id, document_id, model, vec)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT(id) DO UPDATE SET project_id=excluded.project_id, owner_type=excluded.owner_type,
  owner_id=excluded.owner_id, document_id=excluded.document_id, model=excluded.model, vec=excluded.vec`,
			e.ID, e.ProjectID, string(e.OwnerType), e.OwnerID, docID, e.Model, pgvector.NewVector(e.Vector))
	}
	br := v.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range es {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert vector batch: %w", err)
		}
	}
	return nil
}

func (v *VectorStore) Query(ctx context.Context, projectID string, vector []float32, topK int, owner storage.OwnerType) ([]storage.VectorResult, error) {
	if topK <= 0 {
		topK = 10
	}
	op, scoreExpr := "<=>", "1 - (vec <=> $1)"
	switch v.metric {
	case "l2", "euclidean":
		op, scoreExpr = "<->", "-(vec <-> $1)"
	case "ip", "dot":
		op, scoreExpr = "<#>", "-(vec <#> $1)"
	}
	vec := pgvector.NewVector(vector)
	args := []any{vec, projectID, topK}
	where := "WHERE project_id=$2"
	if owner != "" {
		where += " AND owner_type=$4"
		args = append(args, string(owner))
	}
	query := fmt.Sprintf(`SELECT owner_id, %s AS score FROM vectors %s ORDER BY vec %s $1 LIMIT $3`, scoreExpr, where, op)
	rows, err := v.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]storage.VectorResult, 0, topK)
	for rows.Next() {
		var r storage.VectorResult
		if err := rows.Scan(&r.OwnerID, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (v *VectorStore) Delete(ctx context.Context, projectID, ownerID string) error {
	_, err := v.db.Pool.Exec(ctx, `DELETE FROM vectors WHERE project_id=$1 AND owner_id=$2`, projectID, ownerID)
	return err
}

func (v *VectorStore) DeleteBatch(ctx context.Context, projectID string, ownerIDs []string) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	_, err := v.db.Pool.Exec(ctx, `DELETE FROM vectors WHERE project_id=$1 AND owner_id = ANY($2)`, projectID, ownerIDs)
	return err
}

func (v *VectorStore) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := v.db.Pool.Exec(ctx, `DELETE FROM vectors WHERE project_id=$1`, projectID)
	return err
}

func (v *VectorStore) DeleteEntityEmbeddings(ctx context.Context, projectID string, names []string) error {
	return v.DeleteBatch(ctx, projectID, names)
}

func (v *VectorStore) HasVectors(ctx context.Context, documentID string) (bool, error) {
	var n int
	err := v.db.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM vectors WHERE document_id=$1`, documentID).Scan(&n)
	return n > 0, err
}
