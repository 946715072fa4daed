package ingest

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/chunk"
	"ragcore/internal/config"
	"ragcore/internal/extract"
	"ragcore/internal/llmapi"
	"ragcore/internal/merge"
	"ragcore/internal/resilience"
	"ragcore/internal/resolve"
	"ragcore/internal/storage"
)

type fakeVector struct {
	embeddings map[string]storage.Embedding
	hasVecs    map[string]bool
}

func newFakeVector() *fakeVector {
	return &fakeVector{embeddings: map[string]storage.Embedding{}, hasVecs: map[string]bool{}}
}
func (f *fakeVector) Upsert(ctx context.Context, e storage.Embedding) error {
	f.embeddings[e.ID] = e
	f.hasVecs[e.ProjectID] = true
	return nil
}
func (f *fakeVector) UpsertBatch(ctx context.Context, es []storage.Embedding) error {
	for _, e := range es {
		_ = f.Upsert(ctx, e)
	}
	return nil
}
func (f *fakeVector) Query(ctx context.Context, projectID string, vector []float32, topK int, owner storage.OwnerType) ([]storage.VectorResult, error) {
	return nil, nil
}
func (f *fakeVector) Delete(ctx context.Context, projectID, ownerID string) error { return nil }
func (f *fakeVector) DeleteBatch(ctx context.Context, projectID string, ownerIDs []string) error {
	return nil
}
func (f *fakeVector) DeleteByProject(ctx context.Context, projectID string) error { return nil }
func (f *fakeVector) DeleteEntityEmbeddings(ctx context.Context, projectID string, names []string) error {
	return nil
}
func (f *fakeVector) HasVectors(ctx context.Context, documentID string) (bool, error) {
	for _, e := range f.embeddings {
		if e.OwnerType == storage.OwnerChunk && e.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}

type fakeGraph struct {
	entities  map[string]storage.Entity
	relations []storage.Relation
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{entities: map[string]storage.Entity{}}
}
func (f *fakeGraph) CreateProjectGraph(ctx context.Context, projectID string) error { return nil }
func (f *fakeGraph) DeleteProjectGraph(ctx context.Context, projectID string) error { return nil }
func (f *fakeGraph) GraphExists(ctx context.Context, projectID string) (bool, error) {
	return true, nil
}
func (f *fakeGraph) UpsertEntity(ctx context.Context, e storage.Entity) error {
	f.entities[e.EntityName] = e
	return nil
}
func (f *fakeGraph) UpsertEntities(ctx context.Context, es []storage.Entity) error {
	for _, e := range es {
		f.entities[e.EntityName] = e
	}
	return nil
}
func (f *fakeGraph) UpsertRelation(ctx context.Context, r storage.Relation) error {
	f.relations = append(f.relations, r)
	return nil
}
func (f *fakeGraph) UpsertRelations(ctx context.Context, rs []storage.Relation) error {
	f.relations = append(f.relations, rs...)
	return nil
}
func (f *fakeGraph) GetEntity(ctx context.Context, projectID, name string) (storage.Entity, bool, error) {
	e, ok := f.entities[name]
	return e, ok, nil
}
func (f *fakeGraph) GetEntities(ctx context.Context, projectID string, names []string) (map[string]storage.Entity, error) {
	out := map[string]storage.Entity{}
	for _, n := range names {
		if e, ok := f.entities[n]; ok {
			out[n] = e
		}
	}
	return out, nil
}
func (f *fakeGraph) GetNodeDegreesBatch(ctx context.Context, projectID string, names []string) (map[string]int, error) {
	return nil, nil
}
func (f *fakeGraph) GetRelationsForEntity(ctx context.Context, projectID, name string) ([]storage.Relation, error) {
	return nil, nil
}
func (f *fakeGraph) GetEntitiesBySourceChunk(ctx context.Context, projectID, chunkID string) ([]storage.Entity, error) {
	return nil, nil
}
func (f *fakeGraph) TraverseBFS(ctx context.Context, projectID, startName string, maxDepth, maxNodes int) ([]string, error) {
	return nil, nil
}
func (f *fakeGraph) FindShortestPath(ctx context.Context, projectID, src, tgt string) ([]string, error) {
	return nil, nil
}
func (f *fakeGraph) DeleteBySourceID(ctx context.Context, projectID, sourceID string) error {
	return nil
}
func (f *fakeGraph) GetStats(ctx context.Context, projectID string) (storage.GraphStats, error) {
	return storage.GraphStats{}, nil
}
func (f *fakeGraph) MergeEntities(ctx context.Context, projectID string, sourceNames []string, target storage.Entity, relations []storage.Relation) error {
	return nil
}

type fakeKV struct{ data map[string][]byte }

func newFakeKV() *fakeKV { return &fakeKV{data: map[string][]byte{}} }
func (f *fakeKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}
func (f *fakeKV) Set(ctx context.Context, key string, value []byte) error {
	f.data[key] = value
	return nil
}
func (f *fakeKV) Delete(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

type fakeDocStatus struct{ statuses map[string]storage.DocStatus }

func newFakeDocStatus() *fakeDocStatus { return &fakeDocStatus{statuses: map[string]storage.DocStatus{}} }
func (f *fakeDocStatus) SetStatus(ctx context.Context, s storage.DocStatus) error {
	f.statuses[s.DocumentID] = s
	return nil
}
func (f *fakeDocStatus) GetStatus(ctx context.Context, documentID string) (storage.DocStatus, bool, error) {
	s, ok := f.statuses[documentID]
	return s, ok, nil
}
func (f *fakeDocStatus) DeleteByProject(ctx context.Context, projectID string) error {
	for id, s := range f.statuses {
		if s.ProjectID == projectID {
			delete(f.statuses, id)
		}
	}
	return nil
}

type fakeCache struct{ entries map[string]storage.ExtractionCacheEntry }

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]storage.ExtractionCacheEntry{}} }
func (f *fakeCache) Get(ctx context.Context, projectID string, cacheType storage.CacheType, contentHash string) (storage.ExtractionCacheEntry, bool, error) {
	e, ok := f.entries[contentHash]
	return e, ok, nil
}
func (f *fakeCache) Put(ctx context.Context, entry storage.ExtractionCacheEntry) error {
	f.entries[entry.ContentHash] = entry
	return nil
}
func (f *fakeCache) DeleteByProject(ctx context.Context, projectID string) error {
	for k, e := range f.entries {
		if e.ProjectID == projectID {
			delete(f.entries, k)
		}
	}
	return nil
}

type fakeBackend struct {
	graph     *fakeGraph
	vector    *fakeVector
	kv        *fakeKV
	docStatus *fakeDocStatus
	cache     *fakeCache
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		graph: newFakeGraph(), vector: newFakeVector(), kv: newFakeKV(),
		docStatus: newFakeDocStatus(), cache: newFakeCache(),
	}
}
func (b *fakeBackend) Graph() storage.GraphStorage                   { return b.graph }
func (b *fakeBackend) Vector() storage.VectorStorage                 { return b.vector }
func (b *fakeBackend) KV() storage.KVStorage                         { return b.kv }
func (b *fakeBackend) DocStatus() storage.DocStatusStorage           { return b.docStatus }
func (b *fakeBackend) ExtractionCache() storage.ExtractionCacheStorage { return b.cache }
func (b *fakeBackend) Close() error                                  { return nil }

type fakeEmbedder struct{ calls int32 }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int { return 3 }
func (f *fakeEmbedder) Name() string   { return "fake" }

type fakeLLM struct{ reply string }

func (f fakeLLM) Name() string { return "fake" }
func (f fakeLLM) Complete(ctx context.Context, messages []llmapi.Message, maxTokens int) (string, error) {
	return f.reply, nil
}

func newTestOrchestrator(backend storage.Backend, embedder llmapi.EmbeddingCapability, llm llmapi.LLMCapability) *Orchestrator {
	extractor := extract.New(llm, backend.ExtractionCache(), nil, resilience.Policy{}, nil, 10)
	resolver := resolve.New(config.Default().EntityResolution, merge.Concatenate, llm)
	return New(backend, embedder, extractor, resolver, llm, merge.Concatenate, nil, chunk.Options{}, 10, "fake-embed-v1")
}

func TestIngest_ProducesProcessedStatusWithCounts(t *testing.T) {
	backend := newFakeBackend()
	embedder := &fakeEmbedder{}
	llm := fakeLLM{reply: `{"entities":[{"name":"Acme","type":"ORGANIZATION","description":"a widget maker"}],"relations":[]}`}
	o := newTestOrchestrator(backend, embedder, llm)

	status, err := o.Ingest(context.Background(), "proj-1", "doc-1", "en", []byte("Acme makes widgets. It is based in Springfield."), storage.DocText)
	require.NoError(t, err)

	assert.Equal(t, storage.StatusProcessed, status.Status)
	assert.Greater(t, status.Counts.Chunks, 0)
	assert.Equal(t, 1, status.Counts.Entities)

	entity, ok := backend.graph.entities["Acme"]
	require.True(t, ok)
	assert.Equal(t, "proj-1", entity.ProjectID)
	assert.Equal(t, "a widget maker", entity.Description)
}

func TestIngest_IsIdempotentOnReingest(t *testing.T) {
	backend := newFakeBackend()
	embedder := &fakeEmbedder{}
	llm := fakeLLM{reply: `{"entities":[],"relations":[]}`}
	o := newTestOrchestrator(backend, embedder, llm)

	first, err := o.Ingest(context.Background(), "proj-1", "doc-1", "en", []byte("hello world"), storage.DocText)
	require.NoError(t, err)

	callsAfterFirst := atomic.LoadInt32(&embedder.calls)

	second, err := o.Ingest(context.Background(), "proj-1", "doc-1", "en", []byte("hello world"), storage.DocText)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, callsAfterFirst, atomic.LoadInt32(&embedder.calls), "no further embedding work once vectors already exist")
}

func TestIngest_FailsBelowFiftyPercentExtractionCoverage(t *testing.T) {
	backend := newFakeBackend()
	embedder := &fakeEmbedder{}
	llm := fakeLLM{reply: "not json"}
	o := newTestOrchestrator(backend, embedder, llm)

	status, err := o.Ingest(context.Background(), "proj-1", "doc-1", "en", []byte("some content that will be chunked"), storage.DocText)
	require.Error(t, err)
	assert.Equal(t, storage.StatusFailed, status.Status)
	assert.NotEmpty(t, status.ErrorMsg)
}
