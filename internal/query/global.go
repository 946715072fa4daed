package query

import (
	"context"
	"sort"

	"ragcore/internal/storage"
)

// globalCandidates is entity-centric retrieval: vector search over
// entity embeddings, then a single synthesized "graph answer" pseudo-
// chunk aggregating the top entities' descriptions and 1-hop
// neighborhoods (spec.md §4.9 GLOBAL). It is returned as one source with
// a null document id.
func (x *Executor) globalCandidates(ctx context.Context, projectID string, queryVec []float32, topK int) ([]Candidate, error) {
	hits, err := x.Vector.Query(ctx, projectID, queryVec, topK, storage.OwnerEntity)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	var blob string
	var maxScore float64
	for _, h := range hits {
		e, ok, err := x.Graph.GetEntity(ctx, projectID, h.OwnerID)
		if err != nil || !ok {
			continue
		}
		rels, err := x.Graph.GetRelationsForEntity(ctx, projectID, e.EntityName)
		if err != nil {
			return nil, err
		}
		neighbors, err := x.resolveNeighbors(ctx, projectID, e.EntityName, rels)
		if err != nil {
			return nil, err
		}
		if blob != "" {
			blob += "\n\n"
		}
		blob += entityDescriptionBlob(e, neighbors)
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	if blob == "" {
		return nil, nil
	}
	return []Candidate{{
		ID: "graph-global:answer", Content: blob, Source: "graph-global", Score: maxScore,
	}}, nil
}

// resolveNeighbors fetches the Entity record for every endpoint of rels
// other than self, deduplicated and sorted for determinism.
func (x *Executor) resolveNeighbors(ctx context.Context, projectID, self string, rels []storage.Relation) ([]storage.Entity, error) {
	names := map[string]bool{}
	for _, r := range rels {
		if r.SrcID != self {
			names[r.SrcID] = true
		}
		if r.TgtID != self {
			names[r.TgtID] = true
		}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	byName, err := x.Graph.GetEntities(ctx, projectID, sorted)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Entity, 0, len(sorted))
	for _, n := range sorted {
		if e, ok := byName[n]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
