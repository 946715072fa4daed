// Package resolve implements C6: entity resolution by type-blocked
// pairwise similarity, connected-component clustering, and canonical
// selection. Grounded on the teacher's internal/rag/retrieve/fusion.go
// deterministic-tiebreak idiom (sort by score desc, then name asc) and
// the parallel.threads config knob's worker-pool pattern shared with
// internal/extract's batch fan-out.
package resolve

import (
	"context"
	"sort"
	"strings"
	"sync"

	"ragcore/internal/config"
	"ragcore/internal/extract"
	"ragcore/internal/llmapi"
	"ragcore/internal/merge"
)

// Cluster is a resolved group of raw entities collapsed to one canonical
// identity.
type Cluster struct {
	Canonical      string
	EntityType     string
	Description    string
	Aliases        []string
	SourceChunkIDs []string
}

// Result is C6's output: the clustered entities plus a raw-name to
// canonical-name mapping callers use to rewrite relation endpoints
// before merge (C7).
type Result struct {
	Clusters       []Cluster
	RawToCanonical map[string]string
}

// Resolver is C6.
type Resolver struct {
	Weights   Weights
	Threshold float64
	Threads   int
	Strategy  merge.Strategy
	LLM       llmapi.LLMCapability
}

func New(cfg config.EntityResolutionConfig, strategy merge.Strategy, llm llmapi.LLMCapability) *Resolver {
	threads := cfg.ParallelThreads
	if threads <= 0 {
		threads = 4
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.75
	}
	return &Resolver{
		Weights: Weights{
			Jaccard: cfg.Weights.Jaccard, Containment: cfg.Weights.Containment,
			Edit: cfg.Weights.Edit, Acronym: cfg.Weights.Acronym,
		},
		Threshold: threshold,
		Threads:   threads,
		Strategy:  strategy,
		LLM:       llm,
	}
}

type rawGroup struct {
	name           string
	entityType     string
	descriptions   []string
	sourceChunkIDs []string
}

// Resolve clusters the given raw entities. Entities sharing an exact
// normalized name are pre-grouped before similarity is computed, so a
// single name appearing in many chunks never gets compared against
// itself.
func (r *Resolver) Resolve(ctx context.Context, entities []extract.RawEntity) Result {
	groups, order := groupByName(entities)

	byType := map[string][]int{}
	for i, idx := range order {
		g := groups[idx]
		byType[g.entityType] = append(byType[g.entityType], i)
	}

	uf := newUnionFind(len(order))
	for _, idxs := range byType {
		r.clusterBlock(idxs, order, groups, uf)
	}

	clustersByRoot := map[int][]int{}
	for i := range order {
		root := uf.find(i)
		clustersByRoot[root] = append(clustersByRoot[root], i)
	}

	var clusters []Cluster
	rawToCanonical := map[string]string{}
	for _, members := range clustersByRoot {
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = groups[order[m]].name
		}
		sort.Strings(names)

		canonicalIdx := members[0]
		for _, m := range members[1:] {
			a, b := groups[order[canonicalIdx]], groups[order[m]]
			la, lb := longestOf(a.descriptions), longestOf(b.descriptions)
			if len(lb) > len(la) || (len(lb) == len(la) && groups[order[m]].name < groups[order[canonicalIdx]].name) {
				canonicalIdx = m
			}
		}
		canonicalName := groups[order[canonicalIdx]].name

		var allDescriptions, allSourceIDs []string
		var aliases []string
		for _, m := range members {
			g := groups[order[m]]
			allDescriptions = append(allDescriptions, g.descriptions...)
			allSourceIDs = append(allSourceIDs, g.sourceChunkIDs...)
			rawToCanonical[g.name] = canonicalName
			if g.name != canonicalName {
				aliases = append(aliases, g.name)
			}
		}
		sort.Strings(aliases)

		clusters = append(clusters, Cluster{
			Canonical:      canonicalName,
			EntityType:     groups[order[canonicalIdx]].entityType,
			Description:    merge.ApplyStrategy(ctx, r.Strategy, allDescriptions, r.LLM),
			Aliases:        aliases,
			SourceChunkIDs: dedupe(allSourceIDs),
		})
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Canonical < clusters[j].Canonical })
	return Result{Clusters: clusters, RawToCanonical: rawToCanonical}
}

// clusterBlock computes pairwise similarity within one type block,
// parallelized across r.Threads workers, and unions pairs meeting the
// threshold (spec.md §4.6 steps 1-4).
func (r *Resolver) clusterBlock(idxs []int, order []int, groups []rawGroup, uf *unionFind) {
	type pair struct{ i, j int }
	var pairs []pair
	for a := 0; a < len(idxs); a++ {
		for b := a + 1; b < len(idxs); b++ {
			pairs = append(pairs, pair{idxs[a], idxs[b]})
		}
	}
	if len(pairs) == 0 {
		return
	}

	threads := r.Threads
	if threads > len(pairs) {
		threads = len(pairs)
	}
	if threads < 1 {
		threads = 1
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	chunkSize := (len(pairs) + threads - 1) / threads
	for start := 0; start < len(pairs); start += chunkSize {
		end := start + chunkSize
		if end > len(pairs) {
			end = len(pairs)
		}
		wg.Add(1)
		go func(batch []pair) {
			defer wg.Done()
			for _, p := range batch {
				a, b := groups[order[p.i]].name, groups[order[p.j]].name
				if !ShouldCompare(a, b) {
					continue
				}
				if Similarity(a, b, r.Weights) >= r.Threshold {
					mu.Lock()
					uf.union(p.i, p.j)
					mu.Unlock()
				}
			}
		}(pairs[start:end])
	}
	wg.Wait()
}

func groupByName(entities []extract.RawEntity) (map[string]rawGroup, []string) {
	groups := map[string]rawGroup{}
	var order []string
	for _, e := range entities {
		entityType := strings.ToUpper(strings.TrimSpace(e.Type))
		key := entityType + "\x00" + NormalizeName(e.Name)
		g, ok := groups[key]
		if !ok {
			g = rawGroup{name: e.Name, entityType: entityType}
			order = append(order, key)
		}
		g.descriptions = append(g.descriptions, e.Description)
		if e.SourceChunkID != "" {
			g.sourceChunkIDs = append(g.sourceChunkIDs, e.SourceChunkID)
		}
		groups[key] = g
	}
	return groups, order
}

func longestOf(descriptions []string) string {
	best := ""
	for _, d := range descriptions {
		if len(d) > len(best) {
			best = d
		}
	}
	return best
}

func dedupe(in []string) []string {
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

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
