// Command ragcored is the HTTP entry point wiring C1-C12 into a single
// process: one storage backend, one ingestion orchestrator, one query
// executor, and one project lifecycle manager behind a small JSON API.
// Grounded on the teacher's cmd/agentd/main.go (config load, zerolog init before anything else, http.ServeMux with health endpoints,
// context-scoped handlers).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"ragcore/internal/chunk"
	"ragcore/internal/config"
	"ragcore/internal/extract"
	"ragcore/internal/ingest"
	"ragcore/internal/llmapi"
	"ragcore/internal/merge"
	"ragcore/internal/obs"
	"ragcore/internal/observability"
	"ragcore/internal/project"
	"ragcore/internal/query"
	"ragcore/internal/rerank"
	"ragcore/internal/resilience"
	"ragcore/internal/resolve"
	"ragcore/internal/storage"
	"ragcore/internal/storage/distributed"
	"ragcore/internal/storage/embedded"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; defaults are used when absent")
	addr := flag.String("addr", ":8090", "HTTP listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No logger yet; config governs log_path/log_level so config
		// failures go to stderr instead.
		os.Stderr.WriteString("ragcored: config load failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	backend, err := openBackend(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage backend")
	}
	defer backend.Close()

	metrics := obs.NewOtelMetrics()
	events := obs.NewEvents(metrics)

	embedder := llmapi.NewHTTPEmbedder(cfg.Embedding, observability.NewHTTPClient(&http.Client{Timeout: cfg.Timeouts.Embedding}))
	llm := llmapi.NewHTTPLLM(cfg.LLM, cfg.Timeouts.LLMChat, observability.NewHTTPClient(&http.Client{Timeout: cfg.Timeouts.LLMChat}))
	reranker := rerank.New(cfg.Reranker)

	policy := resilience.PolicyFromConfig(cfg.Retry)
	extractor := extract.New(llm, backend.ExtractionCache(), events, policy, nil, cfg.KGExtraction.BatchSize)
	resolver := resolve.New(cfg.EntityResolution, merge.Concatenate, llm)

	orchestrator := ingest.New(
		backend, embedder, extractor, resolver, llm, merge.Concatenate, events,
		chunk.Options{ChunkSize: cfg.Chunk.Size, ChunkOverlap: cfg.Chunk.Overlap},
		cfg.Embedding.BatchSize, cfg.Embedding.Model,
	)
	executor := query.New(backend.Vector(), backend.Graph(), backend.KV(), embedder, llm, reranker, events, cfg.Query.TopK, cfg.Query.ChunkTopK)
	lifecycle := project.New(backend)

	mux := http.NewServeMux()
	registerRoutes(mux, orchestrator, executor, lifecycle)

	log.Info().Str("addr", *addr).Str("backend", string(cfg.Storage.Backend)).Msg("ragcored listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func openBackend(cfg config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendDistributed:
		return distributed.Open(context.Background(), distributed.Options{
			PostgresDSN:      cfg.Storage.PostgresDSN,
			Dimensions:       cfg.Storage.VectorIndex.Dimension,
			Metric:           cfg.Storage.VectorIndex.DistanceMetric,
			QdrantDSN:        cfg.Storage.QdrantDSN,
			QdrantCollection: "ragcore",
		})
	default:
		return embedded.Open(cfg.Storage.SQLitePath)
	}
}

func registerRoutes(mux *http.ServeMux, orchestrator *ingest.Orchestrator, executor *query.Executor, lifecycle *project.Manager) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProjectID string `json:"projectId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if err := lifecycle.Create(r.Context(), req.ProjectID); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		case http.MethodDelete:
			if err := lifecycle.Delete(r.Context(), req.ProjectID); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ProjectID  string `json:"projectId"`
			DocumentID string `json:"documentId"`
			Language   string `json:"language"`
			Content    string `json:"content"`
			DocType    string `json:"docType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		docType := storage.DocText
		if req.DocType == "code" {
			docType = storage.DocCode
		}
		status, err := orchestrator.Ingest(r.Context(), req.ProjectID, req.DocumentID, req.Language, []byte(req.Content), docType)
		if err != nil {
			observability.LoggerWithTrace(r.Context()).Error().Err(err).
				Str("project_id", req.ProjectID).Str("document_id", req.DocumentID).Msg("ingest failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/v1/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ProjectID string `json:"projectId"`
			Mode      string `json:"mode"`
			Query     string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		mode := query.Mode(req.Mode)
		if mode == "" {
			mode = query.ModeHybrid
		}
		result, err := executor.Execute(r.Context(), req.ProjectID, mode, req.Query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})
}
