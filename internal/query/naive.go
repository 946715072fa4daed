package query

import (
	"context"

	"ragcore/internal/storage"
)

// naiveCandidates embeds nothing itself; it takes an already-embedded
// query vector, searches chunk embeddings, and resolves each hit's
// content from the chunk KV store (spec.md §4.9 NAIVE).
func (x *Executor) naiveCandidates(ctx context.Context, projectID string, queryVec []float32, topK int) ([]Candidate, error) {
	hits, err := x.Vector.Query(ctx, projectID, queryVec, topK, storage.OwnerChunk)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		chunk, ok, err := storage.GetChunk(ctx, x.KV, h.OwnerID)
		if err != nil || !ok {
			continue
		}
		docID := chunk.DocumentID
		idx := chunk.ChunkIndex
		out = append(out, Candidate{
			ID: h.OwnerID, DocumentID: &docID, ChunkIndex: &idx,
			Content: chunk.Content, Source: "vector", Score: h.Score,
		})
	}
	return out, nil
}
