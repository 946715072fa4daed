package ingest

import (
	"context"
	"time"

	"ragcore/internal/extract"
	"ragcore/internal/storage"
)

// stageExtract runs C5 across every chunk concurrently up to the
// extractor's configured batch size (spec.md §4.10 step 5). A chunk that
// fails to extract is skipped rather than failing the document on its
// own; Ingest marks the document FAILED only when fewer than half of its
// chunks extract successfully.
func (o *Orchestrator) stageExtract(ctx context.Context, projectID, language string, chunks []storage.Chunk) extract.BatchResult {
	start := time.Now()
	defer func() { o.stage(projectID, "extract", start) }()
	return o.Extractor.ExtractBatch(ctx, projectID, language, chunks)
}
