package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"ragcore/internal/llmapi"
	"ragcore/internal/obs"
	"ragcore/internal/rerank"
	"ragcore/internal/storage"
)

// Executor is C9: it wires the storage contracts, the embedding/LLM
// capabilities, and the reranker together into the five query modes.
type Executor struct {
	Vector    storage.VectorStorage
	Graph     storage.GraphStorage
	KV        storage.KVStorage
	Embedder  llmapi.EmbeddingCapability
	LLM       llmapi.LLMCapability
	Reranker  rerank.Reranker
	Events    *obs.Events
	TopK      int
	ChunkTopK int
	MixDepth  int
	MixMaxNodes int
}

func New(vector storage.VectorStorage, graph storage.GraphStorage, kv storage.KVStorage, embedder llmapi.EmbeddingCapability, llm llmapi.LLMCapability, reranker rerank.Reranker, events *obs.Events, topK, chunkTopK int) *Executor {
	if topK <= 0 {
		topK = 10
	}
	if chunkTopK <= 0 {
		chunkTopK = 5
	}
	return &Executor{
		Vector: vector, Graph: graph, KV: kv, Embedder: embedder, LLM: llm, Reranker: reranker, Events: events,
		TopK: topK, ChunkTopK: chunkTopK, MixDepth: 2, MixMaxNodes: 50,
	}
}

// Execute runs mode end to end: retrieve candidates, rerank, truncate,
// assemble a prompt, call the LLM, and post-process citations (spec.md
// §4.9).
func (x *Executor) Execute(ctx context.Context, projectID string, mode Mode, queryText string) (Result, error) {
	start := time.Now()

	vecs, err := x.Embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return Result{}, fmt.Errorf("embed query: no vector returned")
	}
	queryVec := vecs[0]

	candidates, err := x.gatherCandidates(ctx, projectID, mode, queryVec)
	if err != nil {
		return Result{}, err
	}

	candidates = x.rerankCandidates(ctx, queryText, candidates)

	if len(candidates) > x.ChunkTopK {
		candidates = candidates[:x.ChunkTopK]
	}

	answer, err := x.synthesize(ctx, queryText, candidates)
	if err != nil {
		return Result{}, err
	}

	sources := make([]Source, len(candidates))
	hasDocument := false
	for i, c := range candidates {
		sources[i] = candidateToSource(c)
		if c.DocumentID != nil {
			hasDocument = true
		}
	}
	if !hasDocument {
		answer = stripCitations(answer)
	}

	if x.Events != nil {
		x.Events.QueryCompleted(projectID, string(mode), len(sources), float64(time.Since(start).Milliseconds()))
	}

	return Result{Answer: answer, Sources: sources, Mode: mode, TotalSources: len(sources)}, nil
}

func (x *Executor) gatherCandidates(ctx context.Context, projectID string, mode Mode, queryVec []float32) ([]Candidate, error) {
	switch mode {
	case ModeNaive:
		return x.naiveCandidates(ctx, projectID, queryVec, x.TopK)
	case ModeLocal:
		return x.localCandidates(ctx, projectID, queryVec, x.TopK)
	case ModeGlobal:
		return x.globalCandidates(ctx, projectID, queryVec, x.TopK)
	case ModeHybrid:
		local, err := x.localCandidates(ctx, projectID, queryVec, x.TopK)
		if err != nil {
			return nil, err
		}
		global, err := x.globalCandidates(ctx, projectID, queryVec, x.TopK)
		if err != nil {
			return nil, err
		}
		return sortedByScore(mergeMax(local, global)), nil
	case ModeMix:
		local, err := x.localCandidates(ctx, projectID, queryVec, x.TopK)
		if err != nil {
			return nil, err
		}
		global, err := x.globalCandidates(ctx, projectID, queryVec, x.TopK)
		if err != nil {
			return nil, err
		}
		seeds, err := x.globalSeedNames(ctx, projectID, queryVec, x.TopK)
		if err != nil {
			return nil, err
		}
		expanded, err := x.mixExpand(ctx, projectID, seeds, x.MixDepth, x.MixMaxNodes)
		if err != nil {
			return nil, err
		}
		return sortedByScore(mergeMax(local, global, expanded)), nil
	default:
		return nil, fmt.Errorf("query: unknown mode %q", mode)
	}
}

func sortedByScore(cands []Candidate) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].ID < cands[j].ID
	})
	return cands
}

func (x *Executor) rerankCandidates(ctx context.Context, queryText string, candidates []Candidate) []Candidate {
	if x.Reranker == nil || len(candidates) == 0 {
		return candidates
	}
	items := make([]rerank.Item, len(candidates))
	for i, c := range candidates {
		items[i] = rerank.Item{ID: c.ID, Content: c.Content}
	}
	scored, err := x.Reranker.Rerank(ctx, queryText, items)
	if err != nil {
		return candidates
	}
	byID := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	out := make([]Candidate, 0, len(scored))
	for _, s := range scored {
		c, ok := byID[s.ID]
		if !ok {
			continue
		}
		c.Score = s.Score
		out = append(out, c)
	}
	return out
}

func (x *Executor) synthesize(ctx context.Context, queryText string, candidates []Candidate) (string, error) {
	var sb strings.Builder
	sb.WriteString("Answer the user's question using only the following context. Cite chunks using their tag.\n\n")
	for _, c := range candidates {
		tag := citationTag(c)
		if tag != "" {
			sb.WriteString(tag + " ")
		}
		sb.WriteString(c.Content)
		sb.WriteString("\n\n")
	}
	messages := []llmapi.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: queryText},
	}
	return x.LLM.Complete(ctx, messages, 1000)
}

func citationTag(c Candidate) string {
	if c.DocumentID == nil || c.ChunkIndex == nil {
		return ""
	}
	return fmt.Sprintf("[%s:chunk-%d]", *c.DocumentID, *c.ChunkIndex)
}

var citationRe = regexp.MustCompile(`\[[^\[\]]*\]`)

func stripCitations(answer string) string {
	return strings.TrimSpace(citationRe.ReplaceAllString(answer, ""))
}
