package ingest

import (
	"context"
	"sort"
	"time"

	"ragcore/internal/extract"
	"ragcore/internal/merge"
	"ragcore/internal/resolve"
	"ragcore/internal/storage"
)

// stageResolveAndMerge runs C6 to collapse duplicate entity mentions
// within this document's extraction into canonical identities, redirects
// relation endpoints through the resulting mapping, and - for any
// canonical entity that already exists in the persisted graph from a
// prior ingestion - grows its description instead of overwriting it
// (spec.md §4.10 step 6, §4.7's description-merge strategies reused here
// since this is the same entity being re-observed, not a distinct
// duplicate needing the transactional redirect C7's Merger performs for
// explicit consolidation).
func (o *Orchestrator) stageResolveAndMerge(ctx context.Context, projectID string, extracted extract.BatchResult) ([]storage.Entity, []storage.Relation, error) {
	start := time.Now()
	defer func() { o.stage(projectID, "resolve_merge", start) }()

	resolved := o.Resolver.Resolve(ctx, extracted.Entities)

	names := make([]string, len(resolved.Clusters))
	for i, c := range resolved.Clusters {
		names[i] = c.Canonical
	}
	existing, err := o.Backend.Graph().GetEntities(ctx, projectID, names)
	if err != nil {
		return nil, nil, err
	}

	entities := make([]storage.Entity, 0, len(resolved.Clusters))
	for _, c := range resolved.Clusters {
		description := c.Description
		sourceChunkIDs := c.SourceChunkIDs
		if prior, ok := existing[c.Canonical]; ok {
			description = merge.ApplyStrategy(ctx, o.Strategy, []string{prior.Description, c.Description}, o.LLM)
			sourceChunkIDs = dedupeStrings(append(append([]string{}, prior.SourceChunkIDs...), c.SourceChunkIDs...))
		}
		entities = append(entities, storage.Entity{
			ProjectID: projectID, EntityName: c.Canonical, EntityType: c.EntityType,
			Description: description, SourceChunkIDs: sourceChunkIDs,
		})
	}

	relations := redirectAndDedupeRelations(extracted.Relations, resolved.RawToCanonical)
	return entities, relations, nil
}

// redirectAndDedupeRelations rewrites each raw relation's endpoints
// through rawToCanonical (falling back to the original name when a raw
// name was never observed as a group's first mention), drops self-loops
// created by the redirect, and merges relations that collide on
// (src,tgt) post-redirect.
func redirectAndDedupeRelations(raw []extract.RawRelation, rawToCanonical map[string]string) []storage.Relation {
	type key struct{ src, tgt string }
	merged := map[key]storage.Relation{}
	var order []key

	redirect := func(name string) string {
		if canonical, ok := rawToCanonical[name]; ok {
			return canonical
		}
		return name
	}

	for _, r := range raw {
		src, tgt := redirect(r.Src), redirect(r.Tgt)
		if src == tgt {
			continue
		}
		k := key{src, tgt}
		weight := r.Weight
		if weight == 0 {
			weight = 1.0
		}
		sourceIDs := []string(nil)
		if r.SourceChunkID != "" {
			sourceIDs = []string{r.SourceChunkID}
		}
		if existing, ok := merged[k]; ok {
			existing.Description = mergeDescription(existing.Description, r.Description)
			existing.Keywords = dedupeStrings(append(append([]string{}, existing.Keywords...), r.Keywords...))
			existing.Weight = maxFloat(existing.Weight, weight)
			existing.SourceChunkIDs = dedupeStrings(append(existing.SourceChunkIDs, sourceIDs...))
			merged[k] = existing
			continue
		}
		merged[k] = storage.Relation{
			SrcID: src, TgtID: tgt, Description: r.Description,
			Keywords: dedupeStrings(r.Keywords), Weight: weight, SourceChunkIDs: sourceIDs,
		}
		order = append(order, k)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].src != order[j].src {
			return order[i].src < order[j].src
		}
		return order[i].tgt < order[j].tgt
	})
	out := make([]storage.Relation, len(order))
	for i, k := range order {
		out[i] = merged[k]
	}
	return out
}

func mergeDescription(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" || a == b {
		return a
	}
	return a + " | " + b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
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
