package query

import "context"

// localCandidates is NAIVE plus, for each retrieved chunk, its linked
// entities' 1-hop neighbor descriptions appended as additional
// graph-sourced pseudo-chunks (spec.md §4.9 LOCAL). Ranking of the
// original chunks stays by vector similarity; the graph context rides
// along as extra candidates so it still competes fairly in reranking.
func (x *Executor) localCandidates(ctx context.Context, projectID string, queryVec []float32, topK int) ([]Candidate, error) {
	base, err := x.naiveCandidates(ctx, projectID, queryVec, topK)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	out := append([]Candidate(nil), base...)
	for _, c := range base {
		entities, err := x.Graph.GetEntitiesBySourceChunk(ctx, projectID, c.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			if seen[e.EntityName] {
				continue
			}
			seen[e.EntityName] = true
			rels, err := x.Graph.GetRelationsForEntity(ctx, projectID, e.EntityName)
			if err != nil {
				return nil, err
			}
			neighbors, err := x.resolveNeighbors(ctx, projectID, e.EntityName, rels)
			if err != nil {
				return nil, err
			}
			out = append(out, Candidate{
				ID:      "graph-local:" + e.EntityName,
				Content: entityDescriptionBlob(e, neighbors),
				Source:  "graph-local",
				Score:   c.Score,
			})
		}
	}
	return out, nil
}
