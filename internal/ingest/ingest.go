// Package ingest implements C10: the per-document ingestion pipeline
// that wires chunking (C3), embedding (C4), extraction (C5), resolution
// (C6), merge (C7), and storage (C2) into one orchestrated operation.
// Grounded on the teacher's internal/rag/service/service.go Ingest
// method: same stage-by-stage shape (preprocess/chunk/index/embed/graph)
// with per-stage duration events, generalized from the teacher's
// idempotency-by-content-hash to the spec's hasVectors precondition.
package ingest

import (
	"context"
	"fmt"
	"time"

	"ragcore/internal/chunk"
	"ragcore/internal/extract"
	"ragcore/internal/llmapi"
	"ragcore/internal/merge"
	"ragcore/internal/obs"
	"ragcore/internal/resolve"
	"ragcore/internal/storage"
)

// Orchestrator is C10.
type Orchestrator struct {
	Backend   storage.Backend
	Embedder  llmapi.EmbeddingCapability
	Extractor *extract.Extractor
	Resolver  *resolve.Resolver
	LLM       llmapi.LLMCapability // used to grow an existing entity's description across ingestions
	Strategy  merge.Strategy
	Events    *obs.Events

	ChunkOpts      chunk.Options
	EmbedBatchSize int
	EmbeddingModel string
}

func New(backend storage.Backend, embedder llmapi.EmbeddingCapability, extractor *extract.Extractor, resolver *resolve.Resolver, llm llmapi.LLMCapability, strategy merge.Strategy, events *obs.Events, chunkOpts chunk.Options, embedBatchSize int, embeddingModel string) *Orchestrator {
	if embedBatchSize <= 0 {
		embedBatchSize = 32
	}
	return &Orchestrator{
		Backend: backend, Embedder: embedder, Extractor: extractor, Resolver: resolver,
		LLM: llm, Strategy: strategy, Events: events,
		ChunkOpts: chunkOpts, EmbedBatchSize: embedBatchSize, EmbeddingModel: embeddingModel,
	}
}

// Ingest runs the full pipeline for one document (spec.md §4.10). On any
// unrecoverable storage error it records status FAILED and returns the
// error; whatever chunks/entities were already persisted are left in
// place, since re-ingestion converges through idempotent upserts rather
// than a rollback.
func (o *Orchestrator) Ingest(ctx context.Context, projectID, documentID, language string, content []byte, docType storage.DocType) (storage.DocStatus, error) {
	start := time.Now()

	has, err := o.Backend.Vector().HasVectors(ctx, documentID)
	if err != nil {
		return storage.DocStatus{}, fmt.Errorf("ingest: check existing vectors: %w", err)
	}
	if has {
		existing, ok, err := o.Backend.DocStatus().GetStatus(ctx, documentID)
		if err != nil {
			return storage.DocStatus{}, fmt.Errorf("ingest: load existing status: %w", err)
		}
		if ok {
			return existing, nil
		}
	}

	status := storage.DocStatus{DocumentID: documentID, ProjectID: projectID, Status: storage.StatusProcessing, StartedAt: time.Now()}
	if err := o.Backend.DocStatus().SetStatus(ctx, status); err != nil {
		return status, fmt.Errorf("ingest: set status processing: %w", err)
	}

	chunks, err := o.stageChunk(projectID, documentID, content, docType)
	if err != nil {
		return o.fail(ctx, status, fmt.Errorf("ingest: chunk: %w", err))
	}
	if err := o.stageEmbedChunks(ctx, projectID, chunks); err != nil {
		return o.fail(ctx, status, fmt.Errorf("ingest: embed chunks: %w", err))
	}

	extracted := o.stageExtract(ctx, projectID, language, chunks)

	entities, relations, err := o.stageResolveAndMerge(ctx, projectID, extracted)
	if err != nil {
		return o.fail(ctx, status, fmt.Errorf("ingest: resolve/merge: %w", err))
	}

	if err := o.stagePersistGraph(ctx, projectID, entities, relations); err != nil {
		return o.fail(ctx, status, fmt.Errorf("ingest: persist graph: %w", err))
	}

	status.Counts = storage.DocCounts{Chunks: len(chunks), Entities: len(entities), Relations: len(relations)}
	// A chunk that exhausted retries is skipped, not fatal on its own; the
	// document only fails outright below 50% extraction coverage (spec.md
	// §4.5, §5 "local recovery is preferred").
	if extracted.SuccessRatio() < 0.5 {
		return o.fail(ctx, status, fmt.Errorf("ingest: extraction coverage %.0f%% below 50%% threshold", extracted.SuccessRatio()*100))
	}
	status.Status = storage.StatusProcessed
	status.CompletedAt = time.Now()
	if err := o.Backend.DocStatus().SetStatus(ctx, status); err != nil {
		return status, fmt.Errorf("ingest: set status processed: %w", err)
	}

	if o.Events != nil {
		o.Events.IngestCompleted(projectID, len(chunks), len(entities), len(relations), float64(time.Since(start).Milliseconds()))
	}
	return status, nil
}

func (o *Orchestrator) fail(ctx context.Context, status storage.DocStatus, cause error) (storage.DocStatus, error) {
	status.Status = storage.StatusFailed
	status.ErrorMsg = cause.Error()
	status.CompletedAt = time.Now()
	_ = o.Backend.DocStatus().SetStatus(ctx, status) // best-effort; the original cause is what we return
	return status, cause
}

func (o *Orchestrator) stage(projectID, name string, start time.Time) {
	if o.Events != nil {
		o.Events.IngestStage(projectID, name, float64(time.Since(start).Milliseconds()))
	}
}
