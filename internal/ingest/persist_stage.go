package ingest

import (
	"context"
	"fmt"
	"time"

	"ragcore/internal/storage"
)

// stagePersistGraph upserts entities and relations in batches, then
// embeds entity names and persists their vectors (spec.md §4.10 step 7).
// Both UpsertEntities and UpsertRelations are idempotent by key, so a
// re-ingestion after a prior FAILED run converges without duplicating
// graph state.
func (o *Orchestrator) stagePersistGraph(ctx context.Context, projectID string, entities []storage.Entity, relations []storage.Relation) error {
	start := time.Now()
	defer func() { o.stage(projectID, "graph", start) }()

	if len(entities) > 0 {
		if err := o.Backend.Graph().UpsertEntities(ctx, entities); err != nil {
			return fmt.Errorf("upsert entities: %w", err)
		}
	}

	if len(relations) > 0 {
		for i := range relations {
			relations[i].ProjectID = projectID
		}
		if err := o.Backend.Graph().UpsertRelations(ctx, relations); err != nil {
			return fmt.Errorf("upsert relations: %w", err)
		}
	}

	return o.embedEntities(ctx, projectID, entities)
}

// embedEntities embeds each entity's name (the canonical retrieval key
// for GLOBAL/MIX mode) in batches and persists the vectors.
func (o *Orchestrator) embedEntities(ctx context.Context, projectID string, entities []storage.Entity) error {
	for off := 0; off < len(entities); off += o.EmbedBatchSize {
		end := off + o.EmbedBatchSize
		if end > len(entities) {
			end = len(entities)
		}
		batch := entities[off:end]

		names := make([]string, len(batch))
		for i, e := range batch {
			names[i] = e.EntityName
		}
		vectors, err := o.Embedder.Embed(ctx, names)
		if err != nil {
			return fmt.Errorf("embed entity batch [%d:%d]: %w", off, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed entity batch [%d:%d]: got %d vectors for %d entities", off, end, len(vectors), len(batch))
		}

		embeddings := make([]storage.Embedding, len(batch))
		for i, e := range batch {
			embeddings[i] = storage.Embedding{
				ID: e.EntityName, OwnerType: storage.OwnerEntity, OwnerID: e.EntityName,
				ProjectID: projectID, Vector: vectors[i], Model: o.EmbeddingModel,
			}
		}
		if err := o.Backend.Vector().UpsertBatch(ctx, embeddings); err != nil {
			return fmt.Errorf("persist entity embeddings [%d:%d]: %w", off, end, err)
		}
	}
	return nil
}
