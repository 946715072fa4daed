// Package config loads ragcore's configuration from a YAML file with
// environment-variable overrides, following the layering used across the
// pack's config loaders: a typed struct tree, yaml.v3 unmarshal, then a
// thin pass of os.Getenv overrides for secrets that should not live in
// committed YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StorageBackend selects the active storage implementation. Exactly one is
// active per process (SPEC_FULL.md §4.2).
type StorageBackend string

const (
	BackendDistributed StorageBackend = "distributed"
	BackendEmbedded    StorageBackend = "embedded"
)

type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`

	// Distributed backend.
	PostgresDSN  string `yaml:"postgres_dsn"`
	VectorEngine string `yaml:"vector_engine"` // "pgvector" | "qdrant"
	QdrantDSN    string `yaml:"qdrant_dsn"`

	// Embedded backend.
	SQLitePath string `yaml:"sqlite_path"`

	VectorIndex VectorIndexConfig `yaml:"vector_index"`
}

type VectorIndexConfig struct {
	IndexType        string `yaml:"index_type"` // HNSW | IVF_FLAT
	HNSWM            int    `yaml:"hnsw_m"`
	HNSWEfConstruct  int    `yaml:"hnsw_ef_construction"`
	IVFFlatLists     int    `yaml:"ivf_flat_lists"`
	Dimension        int    `yaml:"dimension"`
	DistanceMetric   string `yaml:"distance_metric"` // cosine | l2 | ip
}

type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type QueryConfig struct {
	TopK      int `yaml:"top_k"`
	ChunkTopK int `yaml:"chunk_top_k"`
}

type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Path      string `yaml:"path"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	APIHeader string `yaml:"api_header"`
	BatchSize int    `yaml:"batch_size"`
	Dimension int    `yaml:"dimension"`
}

type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

type KGExtractionConfig struct {
	BatchSize int `yaml:"batch_size"`
}

type ResolutionWeights struct {
	Jaccard     float64 `yaml:"jaccard"`
	Containment float64 `yaml:"containment"`
	Edit        float64 `yaml:"edit"`
	Acronym     float64 `yaml:"acronym"`
}

type EntityResolutionConfig struct {
	Enabled         bool              `yaml:"enabled"`
	Threshold       float64           `yaml:"threshold"`
	Weights         ResolutionWeights `yaml:"weights"`
	MaxAliases      int               `yaml:"max_aliases"`
	ParallelThreads int               `yaml:"parallel_threads"`
	BatchSize       int               `yaml:"batch_size"`
}

type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	JitterMs          int     `yaml:"jitter_ms"`
	MaxDurationMs     int     `yaml:"max_duration_ms"`
}

type RerankerConfig struct {
	Provider   string `yaml:"provider"` // none | external_a | external_b
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	MinScore   float64 `yaml:"min_score"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type TimeoutsConfig struct {
	LLMChat   time.Duration `yaml:"llm_chat"`
	Embedding time.Duration `yaml:"embedding"`
	Rerank    time.Duration `yaml:"rerank"`
	Storage   time.Duration `yaml:"storage"`
	BFSLevel  time.Duration `yaml:"bfs_level"`
	Query     time.Duration `yaml:"query"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogPath     string `yaml:"log_path"`
	ServiceName string `yaml:"service_name"`
}

// Config is the root configuration tree, scoped to exactly the keys
// enumerated in SPEC_FULL.md §6.
type Config struct {
	Storage           StorageConfig          `yaml:"storage"`
	Chunk             ChunkConfig            `yaml:"chunk"`
	Query             QueryConfig            `yaml:"query"`
	Embedding         EmbeddingConfig        `yaml:"embedding"`
	LLM               LLMConfig              `yaml:"llm"`
	KGExtraction      KGExtractionConfig     `yaml:"kg_extraction"`
	EntityResolution  EntityResolutionConfig `yaml:"entity_resolution"`
	Retry             RetryConfig            `yaml:"retry"`
	Reranker          RerankerConfig         `yaml:"reranker"`
	Timeouts          TimeoutsConfig         `yaml:"timeouts"`
	Observability     ObservabilityConfig    `yaml:"observability"`
}

// Default returns a Config populated with the defaults named throughout
// spec.md (chunk size 1200/overlap 100, topK 10/chunkTopK 5, etc).
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:      BackendEmbedded,
			VectorEngine: "pgvector",
			VectorIndex: VectorIndexConfig{
				IndexType:       "HNSW",
				HNSWM:           16,
				HNSWEfConstruct: 64,
				IVFFlatLists:    100,
				DistanceMetric:  "cosine",
			},
		},
		Chunk: ChunkConfig{Size: 1200, Overlap: 100},
		Query: QueryConfig{TopK: 10, ChunkTopK: 5},
		Embedding: EmbeddingConfig{
			Path:      "/v1/embeddings",
			BatchSize: 32,
			APIHeader: "Authorization",
		},
		KGExtraction: KGExtractionConfig{BatchSize: 20},
		EntityResolution: EntityResolutionConfig{
			Enabled:   true,
			Threshold: 0.75,
			Weights: ResolutionWeights{
				Jaccard: 0.35, Containment: 0.25, Edit: 0.30, Acronym: 0.10,
			},
			MaxAliases:      5,
			ParallelThreads: 4,
			BatchSize:       200,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelayMs:    500,
			BackoffMultiplier: 2.0,
			JitterMs:          100,
			MaxDurationMs:     30000,
		},
		Reranker: RerankerConfig{Provider: "none", MinScore: 0.1, TimeoutMs: 2000},
		Timeouts: TimeoutsConfig{
			LLMChat:   60 * time.Second,
			Embedding: 30 * time.Second,
			Rerank:    3 * time.Second,
			Storage:   30 * time.Second,
			BFSLevel:  10 * time.Second,
			Query:     120 * time.Second,
		},
		Observability: ObservabilityConfig{LogLevel: "info", ServiceName: "ragcore"},
	}
}

// Load reads a YAML file at path (if non-empty and present), merges it
// onto Default(), loads a .env file (best-effort) and applies a small set
// of environment overrides for credentials that should not be committed
// to YAML, mirroring the teacher's env-over-file layering.
func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load() // best-effort; absence is not an error

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAGCORE_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("RAGCORE_QDRANT_DSN"); v != "" {
		cfg.Storage.QdrantDSN = v
	}
	if v := os.Getenv("RAGCORE_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("RAGCORE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = StorageBackend(strings.ToLower(v))
	}
	if v := os.Getenv("RAGCORE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("RAGCORE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("RAGCORE_RERANKER_API_KEY"); v != "" {
		cfg.Reranker.APIKey = v
	}
	if v := os.Getenv("RAGCORE_VECTOR_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimension = n
			cfg.Storage.VectorIndex.Dimension = n
		}
	}
}

// Validate enforces the startup invariants named in spec.md §8: entity
// resolution weights must sum to 1.0 within tolerance, and the storage
// backend must be a recognized value.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendDistributed, BackendEmbedded:
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	w := c.EntityResolution.Weights
	sum := w.Jaccard + w.Containment + w.Edit + w.Acronym
	if diff := sum - 1.0; diff > 0.01 || diff < -0.01 {
		return fmt.Errorf("config: entity_resolution.weights must sum to 1.0 (got %.4f)", sum)
	}
	return nil
}
