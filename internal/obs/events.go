package obs

import "github.com/rs/zerolog/log"

// Events emits the structured events enumerated in spec.md §4.12, each
// carrying projectId/operation/attempt context as zerolog fields. This is
// a contract only: no transport, matching spec.md §1's explicit
// "telemetry sinks ... only the contract is specified".
type Events struct {
	metrics Metrics
}

func NewEvents(m Metrics) *Events {
	if m == nil {
		m = NoopMetrics{}
	}
	return &Events{metrics: m}
}

func (e *Events) RetryAttempt(projectID, operation string, attempt int, err error) {
	log.Warn().Str("event", "retry.attempt").Str("project_id", projectID).
		Str("operation", operation).Int("attempt", attempt).Err(err).Msg("retrying")
	e.metrics.IncCounter("retry_attempt_total", map[string]string{"operation": operation})
}

func (e *Events) RetrySuccess(projectID, operation string, attempts int) {
	log.Info().Str("event", "retry.success").Str("project_id", projectID).
		Str("operation", operation).Int("attempts", attempts).Msg("retry succeeded")
	e.metrics.IncCounter("retry_success_total", map[string]string{"operation": operation})
}

func (e *Events) RetryExhausted(projectID, operation string, attempts int, err error) {
	log.Error().Str("event", "retry.exhausted").Str("project_id", projectID).
		Str("operation", operation).Int("attempts", attempts).Err(err).Msg("retry exhausted")
	e.metrics.IncCounter("retry_exhausted_total", map[string]string{"operation": operation})
}

func (e *Events) ExtractCache(projectID string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	log.Debug().Str("event", "extract.cache."+result).Str("project_id", projectID).Msg("extraction cache")
	e.metrics.IncCounter("extract_cache_total", map[string]string{"result": result})
}

// MergeCompleted reports the outcome of an entity merge (C7).
func (e *Events) MergeCompleted(projectID string, sources int, relationsRedirected, relationsDeduped, selfLoopsFiltered int) {
	log.Info().Str("event", "merge.completed").Str("project_id", projectID).
		Int("sources", sources).Int("relations_redirected", relationsRedirected).
		Int("relations_deduped", relationsDeduped).Int("self_loops_filtered", selfLoopsFiltered).
		Msg("entity merge completed")
	e.metrics.IncCounter("merge_completed_total", map[string]string{"project_id": projectID})
}

// QueryCompleted reports a finished retrieval (C9).
func (e *Events) QueryCompleted(projectID, mode string, sources int, durationMs float64) {
	log.Info().Str("event", "query.completed").Str("project_id", projectID).
		Str("mode", mode).Int("sources", sources).Float64("duration_ms", durationMs).
		Msg("query completed")
	e.metrics.IncCounter("query_completed_total", map[string]string{"mode": mode})
	e.metrics.ObserveHistogram("query_duration_ms", durationMs, map[string]string{"mode": mode})
}

// IngestCompleted reports a finished ingestion (C10).
func (e *Events) IngestCompleted(projectID string, chunks, entities, relations int, durationMs float64) {
	log.Info().Str("event", "ingest.completed").Str("project_id", projectID).
		Int("chunks", chunks).Int("entities", entities).Int("relations", relations).
		Float64("duration_ms", durationMs).Msg("ingestion completed")
	e.metrics.IncCounter("ingest_completed_total", map[string]string{"project_id": projectID})
	e.metrics.ObserveHistogram("ingest_duration_ms", durationMs, nil)
}

// IngestStage reports the duration of one pipeline stage, supplementing
// the minimum event list per SPEC_FULL.md §9.
func (e *Events) IngestStage(projectID, stage string, durationMs float64) {
	log.Debug().Str("event", "ingest.stage").Str("project_id", projectID).
		Str("stage", stage).Float64("duration_ms", durationMs).Msg("ingestion stage")
	e.metrics.ObserveHistogram("ingestion_stage_ms", durationMs, map[string]string{"stage": stage})
}
