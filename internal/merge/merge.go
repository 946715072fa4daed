// Package merge implements C7: transactional entity merge, plus the
// description merge strategies shared with C6's canonical-description
// assembly. Grounded on the teacher's transactional delete-then-upsert
// idiom in internal/persistence/databases/postgres_graph.go, generalized
// to a multi-source redirect-and-dedup merge.
package merge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ragcore/internal/apperr"
	"ragcore/internal/llmapi"
	"ragcore/internal/obs"
	"ragcore/internal/storage"
)

// Strategy is the description merge strategy enumerated in spec.md §4.7.
type Strategy string

const (
	Concatenate  Strategy = "CONCATENATE"
	KeepFirst    Strategy = "KEEP_FIRST"
	KeepLongest  Strategy = "KEEP_LONGEST"
	LLMSummarize Strategy = "LLM_SUMMARIZE"
)

// ApplyStrategy merges descriptions per strategy. On LLM_SUMMARIZE
// failure it falls back to CONCATENATE (spec.md §4.7 table).
func ApplyStrategy(ctx context.Context, strategy Strategy, descriptions []string, llm llmapi.LLMCapability) string {
	unique := dedupeNonEmpty(descriptions)
	if len(unique) == 0 {
		return ""
	}
	switch strategy {
	case KeepFirst:
		return unique[0]
	case KeepLongest:
		return longest(unique)
	case LLMSummarize:
		if llm == nil {
			return concatenate(unique)
		}
		summary, err := llm.Complete(ctx, []llmapi.Message{
			{Role: "system", Content: "Synthesize a single concise description from the following, preserving all distinct facts."},
			{Role: "user", Content: strings.Join(unique, "\n")},
		}, 400)
		if err != nil || strings.TrimSpace(summary) == "" {
			return concatenate(unique)
		}
		return summary
	default: // Concatenate is the default and the fallback.
		return concatenate(unique)
	}
}

func concatenate(descriptions []string) string { return strings.Join(descriptions, " | ") }

func longest(descriptions []string) string {
	best := descriptions[0]
	for _, d := range descriptions[1:] {
		if len(d) > len(best) || (len(d) == len(best) && d < best) {
			best = d
		}
	}
	return best
}

func dedupeNonEmpty(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Stats reports what a merge actually did; Merge returns it and passes
// its fields to obs.Events.MergeCompleted.
type Stats struct {
	Sources             int
	RelationsRedirected int
	RelationsDeduped    int
	SelfLoopsFiltered   int
}

// Merger is C7.
type Merger struct {
	Graph        storage.GraphStorage
	Vector       storage.VectorStorage
	Events       *obs.Events
	LLM          llmapi.LLMCapability
	Strategy     Strategy
	MaxSourceIDs int
}

// DefaultMaxSourceIDs is the SourceChunkIDs cap applied when no override is
// configured, shared by the C7 merge path and the ordinary graph-storage
// upsert path.
const DefaultMaxSourceIDs = 1000

func New(graph storage.GraphStorage, vector storage.VectorStorage, events *obs.Events, llm llmapi.LLMCapability, strategy Strategy, maxSourceIDs int) *Merger {
	if maxSourceIDs <= 0 {
		maxSourceIDs = DefaultMaxSourceIDs
	}
	return &Merger{Graph: graph, Vector: vector, Events: events, LLM: llm, Strategy: strategy, MaxSourceIDs: maxSourceIDs}
}

// Merge folds sources into target within a single storage-level
// transaction (GraphStorage.MergeEntities). Steps follow spec.md §4.7:
// validate, collect touching relations, redirect, filter self-loops,
// dedup by (src,tgt), merge target description, cap sourceChunkIds,
// delete sources, upsert target and relations.
func (m *Merger) Merge(ctx context.Context, projectID string, sources []string, target string) (Stats, error) {
	var stats Stats
	if err := validateSources(sources, target); err != nil {
		return stats, err
	}
	stats.Sources = len(sources)

	sourceEntities := make([]storage.Entity, 0, len(sources))
	for _, name := range sources {
		e, ok, err := m.Graph.GetEntity(ctx, projectID, name)
		if err != nil {
			return stats, err
		}
		if !ok {
			return stats, &apperr.Error{Kind: apperr.KindValidation, Op: "merge", Err: fmt.Errorf("source entity %q does not exist", name)}
		}
		sourceEntities = append(sourceEntities, e)
	}

	targetEntity, targetExists, err := m.Graph.GetEntity(ctx, projectID, target)
	if err != nil {
		return stats, err
	}
	if !targetExists {
		targetEntity = storage.Entity{ProjectID: projectID, EntityName: target, EntityType: sourceEntities[0].EntityType}
	}

	touching := map[string]storage.Relation{} // key: src|tgt after redirect
	order := map[string]int{}
	var keys []string
	collect := func(r storage.Relation) {
		src, tgt := redirect(r.SrcID, sources, target), redirect(r.TgtID, sources, target)
		if strings.EqualFold(src, tgt) {
			stats.SelfLoopsFiltered++
			return
		}
		key := src + "|" + tgt
		if existing, ok := touching[key]; ok {
			stats.RelationsDeduped++
			touching[key] = combineRelations(existing, r, src, tgt, m.MaxSourceIDs)
			return
		}
		touching[key] = storage.Relation{
			ProjectID: projectID, SrcID: src, TgtID: tgt,
			Description: r.Description, Keywords: append([]string(nil), r.Keywords...),
			Weight: r.Weight, SourceChunkIDs: append([]string(nil), r.SourceChunkIDs...),
		}
		order[key] = len(keys)
		keys = append(keys, key)
		if src != r.SrcID || tgt != r.TgtID {
			stats.RelationsRedirected++
		}
	}

	seenRel := map[string]bool{}
	for _, name := range sources {
		rels, err := m.Graph.GetRelationsForEntity(ctx, projectID, name)
		if err != nil {
			return stats, err
		}
		for _, r := range rels {
			dedupKey := r.SrcID + "\x00" + r.TgtID
			if seenRel[dedupKey] {
				continue
			}
			seenRel[dedupKey] = true
			collect(r)
		}
	}

	sort.Strings(keys)
	relations := make([]storage.Relation, 0, len(keys))
	for _, k := range keys {
		relations = append(relations, touching[k])
	}

	descriptions := make([]string, 0, len(sourceEntities)+1)
	if targetExists {
		descriptions = append(descriptions, targetEntity.Description)
	}
	var sourceIDs []string
	if targetExists {
		sourceIDs = append(sourceIDs, targetEntity.SourceChunkIDs...)
	}
	for _, e := range sourceEntities {
		descriptions = append(descriptions, e.Description)
		sourceIDs = append(sourceIDs, e.SourceChunkIDs...)
	}

	merged := storage.Entity{
		ProjectID:      projectID,
		EntityName:     target,
		EntityType:     targetEntity.EntityType,
		Description:    ApplyStrategy(ctx, m.Strategy, descriptions, m.LLM),
		SourceChunkIDs: CapFIFO(dedupeNonEmpty(sourceIDs), m.MaxSourceIDs),
	}

	if err := m.Graph.MergeEntities(ctx, projectID, sources, merged, relations); err != nil {
		return stats, err
	}
	if m.Vector != nil {
		_ = m.Vector.DeleteEntityEmbeddings(ctx, projectID, sources)
	}
	if m.Events != nil {
		m.Events.MergeCompleted(projectID, stats.Sources, stats.RelationsRedirected, stats.RelationsDeduped, stats.SelfLoopsFiltered)
	}
	return stats, nil
}

func validateSources(sources []string, target string) error {
	if len(sources) == 0 {
		return &apperr.Error{Kind: apperr.KindValidation, Op: "merge", Err: fmt.Errorf("no sources given")}
	}
	seen := map[string]bool{}
	for _, s := range sources {
		if s == "" {
			return &apperr.Error{Kind: apperr.KindValidation, Op: "merge", Err: fmt.Errorf("empty source name")}
		}
		if seen[s] {
			return &apperr.Error{Kind: apperr.KindValidation, Op: "merge", Err: fmt.Errorf("duplicate source %q", s)}
		}
		seen[s] = true
		if s == target {
			return &apperr.Error{Kind: apperr.KindValidation, Op: "merge", Err: fmt.Errorf("source %q equals target", s)}
		}
	}
	return nil
}

func redirect(name string, sources []string, target string) string {
	for _, s := range sources {
		if s == name {
			return target
		}
	}
	return name
}

func combineRelations(a, b storage.Relation, src, tgt string, cap int) storage.Relation {
	return storage.Relation{
		ProjectID:      a.ProjectID,
		SrcID:          src,
		TgtID:          tgt,
		Description:    ApplyStrategy(context.Background(), Concatenate, []string{a.Description, b.Description}, nil),
		Keywords:       dedupeNonEmpty(append(append([]string(nil), a.Keywords...), b.Keywords...)),
		Weight:         a.Weight + b.Weight,
		SourceChunkIDs: CapFIFO(dedupeNonEmpty(append(append([]string(nil), a.SourceChunkIDs...), b.SourceChunkIDs...)), cap),
	}
}

// CapFIFO caps in to max entries, dropping the oldest first. Used on both
// the C7 transactional-merge path and the ordinary entity/relation upsert
// path, so SourceChunkIDs stays "ordered, deduplicated, capped at N"
// everywhere, not just post-merge (spec.md §3).
func CapFIFO(in []string, max int) []string {
	if max <= 0 || len(in) <= max {
		return in
	}
	return in[len(in)-max:]
}
