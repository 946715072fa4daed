package ingest

import (
	"context"
	"fmt"
	"time"

	"ragcore/internal/chunk"
	"ragcore/internal/storage"
)

// stageChunk splits the document and stamps each chunk with its owning
// document id and a deterministic id (spec.md §4.10 step 3). The project
// id is stamped later, by stageEmbedChunks.
func (o *Orchestrator) stageChunk(projectID, documentID string, content []byte, docType storage.DocType) ([]storage.Chunk, error) {
	start := time.Now()
	defer func() { o.stage(projectID, "chunk", start) }()

	chunks, err := chunk.ChunkDocument(documentID, content, docType, o.ChunkOpts)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("%s:%d", documentID, chunks[i].ChunkIndex)
		chunks[i].DocumentID = documentID
	}
	return chunks, nil
}

// stageEmbedChunks embeds chunk content in batches and persists both the
// chunk text (via the KV-backed chunk store) and its vector (spec.md
// §4.10 step 4). Chunk order is preserved: embeddings are requested in
// the same order chunks were produced, so a batch failure never
// reorders already-persisted chunks relative to ones still pending.
func (o *Orchestrator) stageEmbedChunks(ctx context.Context, projectID string, chunks []storage.Chunk) error {
	start := time.Now()
	defer func() { o.stage(projectID, "embed_chunks", start) }()

	for i := range chunks {
		chunks[i].ProjectID = projectID
	}

	for off := 0; off < len(chunks); off += o.EmbedBatchSize {
		end := off + o.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[off:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := o.Embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunk batch [%d:%d]: %w", off, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed chunk batch [%d:%d]: got %d vectors for %d chunks", off, end, len(vectors), len(batch))
		}

		embeddings := make([]storage.Embedding, len(batch))
		for i, c := range batch {
			if err := storage.PutChunk(ctx, o.Backend.KV(), c); err != nil {
				return fmt.Errorf("persist chunk %s: %w", c.ID, err)
			}
			embeddings[i] = storage.Embedding{
				ID: c.ID, OwnerType: storage.OwnerChunk, OwnerID: c.ID,
				ProjectID: projectID, Vector: vectors[i], Model: o.EmbeddingModel,
				DocumentID: c.DocumentID,
			}
		}
		if err := o.Backend.Vector().UpsertBatch(ctx, embeddings); err != nil {
			return fmt.Errorf("persist chunk embeddings [%d:%d]: %w", off, end, err)
		}
	}
	return nil
}
