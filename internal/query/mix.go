package query

import (
	"context"
	"sort"

	"ragcore/internal/storage"
)

// mixExpand runs a bounded multi-hop BFS from the given seed entity
// names, contributing each newly discovered entity's description as an
// additional pseudo-chunk (spec.md §4.9 MIX). maxNodes bounds total cost
// across all seeds combined, matching the "node cap to bound cost
// (default 50)" language.
func (x *Executor) mixExpand(ctx context.Context, projectID string, seeds []string, maxDepth, maxNodes int) ([]Candidate, error) {
	visited := map[string]bool{}
	var names []string
	for _, seed := range seeds {
		if maxNodes > 0 && len(names) >= maxNodes {
			break
		}
		budget := maxNodes
		if budget > 0 {
			budget -= len(names)
		}
		found, err := x.Graph.TraverseBFS(ctx, projectID, seed, maxDepth, budget)
		if err != nil {
			continue // unreachable seed; skip rather than fail the whole query
		}
		for _, n := range found {
			if visited[n] || n == seed {
				continue
			}
			visited[n] = true
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	entities, err := x.Graph.GetEntities(ctx, projectID, names)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(names))
	for _, n := range names {
		e, ok := entities[n]
		if !ok || e.Description == "" {
			continue
		}
		out = append(out, Candidate{
			ID: "graph-mix:" + n, Content: entityDescriptionBlob(e, nil),
			Source: "graph-mix", Score: 0.5,
		})
	}
	return out, nil
}

// globalSeedNames re-queries the entity vector index to recover the seed
// names GLOBAL used, for MIX's BFS expansion starting points.
func (x *Executor) globalSeedNames(ctx context.Context, projectID string, queryVec []float32, topK int) ([]string, error) {
	hits, err := x.Vector.Query(ctx, projectID, queryVec, topK, storage.OwnerEntity)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(hits))
	for _, h := range hits {
		names = append(names, h.OwnerID)
	}
	return names, nil
}
