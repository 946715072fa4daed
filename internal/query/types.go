// Package query implements C9: the five retrieval modes (NAIVE, LOCAL,
// GLOBAL, HYBRID, MIX), grounded on the teacher's internal/rag/retrieve
// package (BuildQueryPlan's normalization, ParallelCandidates' goroutine
// fan-out, FuseRRF/Diversify's deterministic dedup-and-sort idiom,
// GenerateSnippets), generalized from a chunk-only FTS+vector model to
// this module's chunk+knowledge-graph model.
package query

import "ragcore/internal/storage"

// Mode selects one of the five retrieval strategies (spec.md §4.9).
type Mode string

const (
	ModeNaive  Mode = "NAIVE"
	ModeLocal  Mode = "LOCAL"
	ModeGlobal Mode = "GLOBAL"
	ModeHybrid Mode = "HYBRID"
	ModeMix    Mode = "MIX"
)

// graphAnswerSource is the external Source literal for every
// graph-synthesized pseudo-chunk, regardless of which mode produced it
// (spec.md Glossary).
const graphAnswerSource = "<Graph Answer>"

// Candidate is an internal retrieval unit before reranking: either a real
// chunk (DocumentID/ChunkIndex set) or a graph-synthesized pseudo-chunk
// (both nil).
type Candidate struct {
	ID         string
	DocumentID *string
	ChunkIndex *int
	Content    string
	Source     string // "vector" | "graph-local" | "graph-global" | "graph-mix"
	Score      float64
}

// Source is one entry of the result's sources[] (spec.md §4.9 return shape).
type Source struct {
	ChunkText   string
	DocumentID  *string
	ChunkIndex  *int
	Source      string
	Similarity  *float64
}

// Result is C9's output contract.
type Result struct {
	Answer       string
	Sources      []Source
	Mode         Mode
	TotalSources int
}

func candidateToSource(c Candidate) Source {
	score := c.Score
	src := c.Source
	if c.DocumentID == nil && c.ChunkIndex == nil {
		src = graphAnswerSource
	}
	return Source{
		ChunkText:  c.Content,
		DocumentID: c.DocumentID,
		ChunkIndex: c.ChunkIndex,
		Source:     src,
		Similarity: &score,
	}
}

func entityDescriptionBlob(e storage.Entity, neighbors []storage.Entity) string {
	blob := e.EntityName + ": " + e.Description
	for _, n := range neighbors {
		if n.Description == "" {
			continue
		}
		blob += "\n" + n.EntityName + ": " + n.Description
	}
	return blob
}
