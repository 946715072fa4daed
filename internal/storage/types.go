// Package storage defines the C2 storage contracts: GraphStorage,
// VectorStorage, KVStorage, DocStatusStorage, and ExtractionCacheStorage.
// Two backends implement every contract (internal/storage/distributed,
// internal/storage/embedded); selection is a startup-time configuration
// flag (spec.md §4.2, §9 "Polymorphism over storage").
package storage

import (
	"context"
	"time"
)

// OwnerType distinguishes what an Embedding or cache entry belongs to.
type OwnerType string

const (
	OwnerChunk    OwnerType = "CHUNK"
	OwnerEntity   OwnerType = "ENTITY"
	OwnerRelation OwnerType = "RELATION"
)

type DocType string

const (
	DocText DocType = "TEXT"
	DocCode DocType = "CODE"
	DocPDF  DocType = "PDF"
	DocDOCX DocType = "DOCX"
	DocHTML DocType = "HTML"
	DocWeb  DocType = "WEB"
)

type DocProcessingStatus string

const (
	StatusNotProcessed DocProcessingStatus = "NOT_PROCESSED"
	StatusProcessing   DocProcessingStatus = "PROCESSING"
	StatusProcessed    DocProcessingStatus = "PROCESSED"
	StatusFailed       DocProcessingStatus = "FAILED"
)

type ScopeType string

const (
	ScopeFile     ScopeType = "FILE"
	ScopeClass    ScopeType = "CLASS"
	ScopeFunction ScopeType = "FUNCTION"
	ScopeImport   ScopeType = "IMPORT"
	ScopeOther    ScopeType = "OTHER"
)

// CodeMetadata is attached to chunks produced by the code-aware chunker.
type CodeMetadata struct {
	Language        string
	StartLine       int
	EndLine         int
	ContainingScope string
	ScopeType       ScopeType
}

// Chunk is the unit persisted by the ingestion pipeline (spec.md §3).
type Chunk struct {
	ID          string
	DocumentID  string
	ProjectID   string
	ChunkIndex  int
	Content     string
	TokenCount  int
	Code        *CodeMetadata
}

// Embedding is a vector owned by a chunk, entity, or relation.
type Embedding struct {
	ID        string
	OwnerType OwnerType
	OwnerID   string
	ProjectID string
	Vector    []float32
	Model     string

	// DocumentID links a chunk-owner embedding back to its document, so
	// HasVectors(documentID) can answer ingestion's idempotency check
	// (spec.md "Precondition: hasVectors(documentId) == false"). Left
	// empty for entity-owner embeddings.
	DocumentID string
}

// Entity is a node in the per-project knowledge graph.
type Entity struct {
	ProjectID      string
	EntityName     string // normalized key
	EntityType     string
	Description    string
	SourceChunkIDs []string
}

// Relation is a directed edge between two entities.
type Relation struct {
	ProjectID      string
	SrcID          string
	TgtID          string
	Description    string
	Keywords       []string
	Weight         float64
	SourceChunkIDs []string
}

// CacheType enumerates ExtractionCacheEntry kinds (spec.md §3).
type CacheType string

const (
	CacheEntityExtraction CacheType = "ENTITY_EXTRACTION"
	CacheGleaning         CacheType = "GLEANING"
	CacheSummarization    CacheType = "SUMMARIZATION"
	CacheKeywordExtract   CacheType = "KEYWORD_EXTRACTION"
)

type ExtractionCacheEntry struct {
	ProjectID   string
	CacheType   CacheType
	ContentHash string // SHA-256 hex of prompt + input
	Result      string
	TokensUsed  int
}

type DocCounts struct {
	Chunks    int
	Entities  int
	Relations int
}

type DocStatus struct {
	DocumentID  string
	ProjectID   string
	Status      DocProcessingStatus
	Counts      DocCounts
	ErrorMsg    string
	StartedAt   time.Time
	CompletedAt time.Time
}

// VectorResult is one hit from a similarity search, ordered descending by
// Score with ties broken by OwnerID (spec.md §4.2).
type VectorResult struct {
	OwnerID string
	Score   float64
}

// GraphStats is the approximate-or-exact entity/relation count for a
// project (spec.md §4.2 getStats).
type GraphStats struct {
	EntityCount   int
	RelationCount int
}

// GraphStorage is the C2 graph contract. All operations are scoped to a
// single project; no operation may observe another project's namespace.
type GraphStorage interface {
	CreateProjectGraph(ctx context.Context, projectID string) error
	DeleteProjectGraph(ctx context.Context, projectID string) error
	GraphExists(ctx context.Context, projectID string) (bool, error)

	UpsertEntity(ctx context.Context, e Entity) error
	UpsertEntities(ctx context.Context, es []Entity) error

	UpsertRelation(ctx context.Context, r Relation) error
	UpsertRelations(ctx context.Context, rs []Relation) error

	GetEntity(ctx context.Context, projectID, name string) (Entity, bool, error)
	GetEntities(ctx context.Context, projectID string, names []string) (map[string]Entity, error)

	GetNodeDegreesBatch(ctx context.Context, projectID string, names []string) (map[string]int, error)
	GetRelationsForEntity(ctx context.Context, projectID, name string) ([]Relation, error)

	// GetEntitiesBySourceChunk returns every entity whose SourceChunkIDs
	// contains chunkID, used by C9's LOCAL mode to find a retrieved
	// chunk's linked entities.
	GetEntitiesBySourceChunk(ctx context.Context, projectID, chunkID string) ([]Entity, error)

	// TraverseBFS walks the graph level by level from startName, returning
	// visited entity names in the order they were first discovered.
	// maxNodes=0 means unlimited.
	TraverseBFS(ctx context.Context, projectID, startName string, maxDepth, maxNodes int) ([]string, error)
	FindShortestPath(ctx context.Context, projectID, src, tgt string) ([]string, error)

	DeleteBySourceID(ctx context.Context, projectID, sourceID string) error
	GetStats(ctx context.Context, projectID string) (GraphStats, error)

	// MergeEntities atomically deletes sourceNames, their relations, and
	// upserts target plus the redirected/deduped relation set the caller
	// already computed (C7, spec.md §4.7). No partial state is visible to
	// readers: either every source is gone and target/relations exist, or
	// nothing changed.
	MergeEntities(ctx context.Context, projectID string, sourceNames []string, target Entity, relations []Relation) error
}

// VectorStorage is the C2 vector contract.
type VectorStorage interface {
	Upsert(ctx context.Context, e Embedding) error
	UpsertBatch(ctx context.Context, es []Embedding) error

	Query(ctx context.Context, projectID string, vector []float32, topK int, owner OwnerType) ([]VectorResult, error)

	Delete(ctx context.Context, projectID, ownerID string) error
	DeleteBatch(ctx context.Context, projectID string, ownerIDs []string) error
	DeleteByProject(ctx context.Context, projectID string) error
	DeleteEntityEmbeddings(ctx context.Context, projectID string, names []string) error

	HasVectors(ctx context.Context, documentID string) (bool, error)
}

// KVStorage holds small keyed blobs the pipeline needs, such as chunk
// content (see PutChunk/GetChunk). The extraction cache has its own
// contract, ExtractionCacheStorage.
type KVStorage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// DocStatusStorage tracks per-document ingestion progress (spec.md §3
// DocStatus).
type DocStatusStorage interface {
	SetStatus(ctx context.Context, s DocStatus) error
	GetStatus(ctx context.Context, documentID string) (DocStatus, bool, error)

	// DeleteByProject removes every document status row for projectID,
	// part of C11's delete-project cascade (spec.md §4.11).
	DeleteByProject(ctx context.Context, projectID string) error
}

// ExtractionCacheStorage is the C5 extraction cache, unique on
// (projectId, cacheType, contentHash).
type ExtractionCacheStorage interface {
	Get(ctx context.Context, projectID string, cacheType CacheType, contentHash string) (ExtractionCacheEntry, bool, error)
	Put(ctx context.Context, entry ExtractionCacheEntry) error

	// DeleteByProject removes every cache entry for projectID, part of
	// C11's delete-project cascade (spec.md §4.11).
	DeleteByProject(ctx context.Context, projectID string) error
}

// Backend bundles every contract a storage implementation must satisfy,
// plus lifecycle.
type Backend interface {
	Graph() GraphStorage
	Vector() VectorStorage
	KV() KVStorage
	DocStatus() DocStatusStorage
	ExtractionCache() ExtractionCacheStorage
	Close() error
}
