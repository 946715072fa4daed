// Package extract implements C5: per-chunk LLM-backed entity/relation
// extraction with content-hash caching, grounded on the teacher's
// internal/rag/retrieve/candidates.go goroutine+channel fan-out idiom and
// wrapped with C1 resilience for per-chunk retry.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"ragcore/internal/llmapi"
	"ragcore/internal/obs"
	"ragcore/internal/resilience"
	"ragcore/internal/storage"
)

// promptTemplate is canonicalized (stable, versioned) so the cache
// fingerprint changes whenever extraction semantics change.
const promptTemplate = "ragcore.extract.v1"

// RawEntity is an extractor output, not yet resolved or merged.
type RawEntity struct {
	Name          string
	Type          string
	Description   string
	SourceChunkID string

	// Flagged marks an entity whose Type fell outside the configured
	// EntityTypes allowlist. It is retained verbatim rather than dropped
	// (spec.md §4.5).
	Flagged bool
}

// RawRelation is an extractor output, not yet resolved or merged.
type RawRelation struct {
	Src           string
	Tgt           string
	Description   string
	Keywords      []string
	Weight        float64
	SourceChunkID string
}

// ChunkResult is the outcome of extracting a single chunk.
type ChunkResult struct {
	Entities  []RawEntity
	Relations []RawRelation
}

// BatchResult aggregates extraction across a document's chunks.
type BatchResult struct {
	Entities     []RawEntity
	Relations    []RawRelation
	Attempted    int
	Succeeded    int
}

// SuccessRatio reports the fraction of chunks that extracted cleanly,
// used by the ingestion orchestrator's PROCESSED/FAILED threshold
// (spec.md §4.5: "status PROCESSED if >= 50% of chunks extracted").
func (b BatchResult) SuccessRatio() float64 {
	if b.Attempted == 0 {
		return 1
	}
	return float64(b.Succeeded) / float64(b.Attempted)
}

// Extractor is C5. EntityTypes is the allowlist surfaced to the LLM
// prompt; types the model returns outside this list are kept verbatim
// but flagged (spec.md §4.5 "unknown types are retained... but flagged").
type Extractor struct {
	LLM         llmapi.LLMCapability
	Cache       storage.ExtractionCacheStorage
	Events      *obs.Events
	Policy      resilience.Policy
	EntityTypes []string
	BatchSize   int
}

func New(llm llmapi.LLMCapability, cache storage.ExtractionCacheStorage, events *obs.Events, policy resilience.Policy, entityTypes []string, batchSize int) *Extractor {
	if batchSize <= 0 {
		batchSize = 20
	}
	if len(entityTypes) == 0 {
		entityTypes = []string{"PERSON", "ORGANIZATION", "LOCATION", "CONCEPT", "EVENT", "PRODUCT"}
	}
	return &Extractor{LLM: llm, Cache: cache, Events: events, Policy: policy, EntityTypes: entityTypes, BatchSize: batchSize}
}

// fingerprint implements spec.md §4.5's cache key: SHA-256 of the
// canonicalized prompt template, entity-type list, language, and chunk
// content.
func fingerprint(language, content string, entityTypes []string) string {
	h := sha256.New()
	h.Write([]byte(promptTemplate))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(entityTypes, ",")))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

type extractionPayload struct {
	Entities []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"entities"`
	Relations []struct {
		Src         string   `json:"src"`
		Tgt         string   `json:"tgt"`
		Description string   `json:"description"`
		Keywords    []string `json:"keywords"`
		Weight      float64  `json:"weight"`
	} `json:"relations"`
}

// ExtractChunk runs extraction for a single chunk, consulting the
// extraction cache first and retrying the LLM call under C1 on a miss.
func (x *Extractor) ExtractChunk(ctx context.Context, projectID, language string, chunk storage.Chunk) (ChunkResult, error) {
	fp := fingerprint(language, chunk.Content, x.EntityTypes)

	if entry, ok, err := x.Cache.Get(ctx, projectID, storage.CacheEntityExtraction, fp); err == nil && ok {
		if x.Events != nil {
			x.Events.ExtractCache(projectID, true)
		}
		return decodePayload(entry.Result, chunk.ID, x.EntityTypes)
	}
	if x.Events != nil {
		x.Events.ExtractCache(projectID, false)
	}

	raw, err := resilience.Retry(ctx, x.Policy, x.Events, projectID, "extract.chunk", func(ctx context.Context) (string, error) {
		return x.LLM.Complete(ctx, x.buildPrompt(chunk.Content, language), 2000)
	})
	if err != nil {
		return ChunkResult{}, fmt.Errorf("extract chunk %s: %w", chunk.ID, err)
	}

	result, err := decodePayload(raw, chunk.ID, x.EntityTypes)
	if err != nil {
		return ChunkResult{}, fmt.Errorf("parse extraction for chunk %s: %w", chunk.ID, err)
	}

	_ = x.Cache.Put(ctx, storage.ExtractionCacheEntry{
		ProjectID:   projectID,
		CacheType:   storage.CacheEntityExtraction,
		ContentHash: fp,
		Result:      raw,
	})
	return result, nil
}

func (x *Extractor) buildPrompt(content, language string) []llmapi.Message {
	sys := "Extract entities and relations from the provided text as strict JSON matching " +
		`{"entities":[{"name":"","type":"","description":""}],"relations":[{"src":"","tgt":"","description":"","keywords":[],"weight":1.0}]}. ` +
		"Allowed entity types: " + strings.Join(x.EntityTypes, ", ") + ". Types outside this list are allowed but unusual. Language: " + language + "."
	return []llmapi.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: content},
	}
}

func decodePayload(raw, chunkID string, entityTypes []string) (ChunkResult, error) {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return ChunkResult{}, err
	}
	var result ChunkResult
	for _, e := range payload.Entities {
		if e.Name == "" {
			continue
		}
		result.Entities = append(result.Entities, RawEntity{
			Name: e.Name, Type: e.Type, Description: e.Description, SourceChunkID: chunkID,
			Flagged: !containsType(entityTypes, e.Type),
		})
	}
	for _, r := range payload.Relations {
		if r.Src == "" || r.Tgt == "" {
			continue
		}
		weight := r.Weight
		if weight == 0 {
			weight = 1.0
		}
		result.Relations = append(result.Relations, RawRelation{
			Src: r.Src, Tgt: r.Tgt, Description: r.Description, Keywords: r.Keywords,
			Weight: weight, SourceChunkID: chunkID,
		})
	}
	return result, nil
}

func containsType(entityTypes []string, t string) bool {
	for _, want := range entityTypes {
		if want == t {
			return true
		}
	}
	return false
}

// ExtractBatch runs extraction over every chunk concurrently, bounded at
// BatchSize in-flight, matching spec.md §4.5's "batches of
// kgExtractionBatchSize chunks concurrently". A chunk whose extraction
// fails after C1 retry exhaustion is skipped and logged; it does not
// abort the batch (spec.md §4.5 failure semantics).
func (x *Extractor) ExtractBatch(ctx context.Context, projectID, language string, chunks []storage.Chunk) BatchResult {
	sem := make(chan struct{}, x.BatchSize)
	type outcome struct {
		res ChunkResult
		err error
	}
	results := make([]outcome, len(chunks))

	var wg sync.WaitGroup
	for i, c := range chunks {
		wg.Add(1)
		go func(i int, c storage.Chunk) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			res, err := x.ExtractChunk(ctx, projectID, language, c)
			results[i] = outcome{res: res, err: err}
		}(i, c)
	}
	wg.Wait()

	var batch BatchResult
	batch.Attempted = len(chunks)
	for i, o := range results {
		if o.err != nil {
			log.Warn().Str("project_id", projectID).Str("chunk_id", chunks[i].ID).
				Err(o.err).Msg("chunk extraction skipped")
			continue
		}
		batch.Succeeded++
		batch.Entities = append(batch.Entities, o.res.Entities...)
		batch.Relations = append(batch.Relations, o.res.Relations...)
	}
	return batch
}
