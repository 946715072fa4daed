package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/llmapi"
	"ragcore/internal/query"
	"ragcore/internal/storage"
)

// recordingBackend wraps four minimal fakes and records the order in
// which the cascade-delete methods fire, so tests can assert spec.md
// §4.11's required ordering: vectors -> graph -> doc status -> cache.
type recordingBackend struct {
	order []string

	graphCreated map[string]bool
	graphDeleted map[string]bool

	vectorDeleted map[string]bool
	statusDeleted map[string]bool
	cacheDeleted  map[string]bool
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		graphCreated:  map[string]bool{},
		graphDeleted:  map[string]bool{},
		vectorDeleted: map[string]bool{},
		statusDeleted: map[string]bool{},
		cacheDeleted:  map[string]bool{},
	}
}

func (b *recordingBackend) Graph() storage.GraphStorage           { return recordingGraph{b} }
func (b *recordingBackend) Vector() storage.VectorStorage         { return recordingVector{b} }
func (b *recordingBackend) KV() storage.KVStorage                 { return recordingKV{} }
func (b *recordingBackend) DocStatus() storage.DocStatusStorage   { return recordingDocStatus{b} }
func (b *recordingBackend) ExtractionCache() storage.ExtractionCacheStorage {
	return recordingCache{b}
}
func (b *recordingBackend) Close() error { return nil }

type recordingGraph struct{ b *recordingBackend }

func (g recordingGraph) CreateProjectGraph(ctx context.Context, projectID string) error {
	g.b.graphCreated[projectID] = true
	return nil
}
func (g recordingGraph) DeleteProjectGraph(ctx context.Context, projectID string) error {
	g.b.order = append(g.b.order, "graph")
	g.b.graphDeleted[projectID] = true
	return nil
}
func (g recordingGraph) GraphExists(ctx context.Context, projectID string) (bool, error) {
	return g.b.graphCreated[projectID] && !g.b.graphDeleted[projectID], nil
}
func (g recordingGraph) UpsertEntity(ctx context.Context, e storage.Entity) error   { return nil }
func (g recordingGraph) UpsertEntities(ctx context.Context, es []storage.Entity) error {
	return nil
}
func (g recordingGraph) UpsertRelation(ctx context.Context, r storage.Relation) error { return nil }
func (g recordingGraph) UpsertRelations(ctx context.Context, rs []storage.Relation) error {
	return nil
}
func (g recordingGraph) GetEntity(ctx context.Context, projectID, name string) (storage.Entity, bool, error) {
	return storage.Entity{}, false, nil
}
func (g recordingGraph) GetEntities(ctx context.Context, projectID string, names []string) (map[string]storage.Entity, error) {
	return map[string]storage.Entity{}, nil
}
func (g recordingGraph) GetNodeDegreesBatch(ctx context.Context, projectID string, names []string) (map[string]int, error) {
	return nil, nil
}
func (g recordingGraph) GetRelationsForEntity(ctx context.Context, projectID, name string) ([]storage.Relation, error) {
	return nil, nil
}
func (g recordingGraph) GetEntitiesBySourceChunk(ctx context.Context, projectID, chunkID string) ([]storage.Entity, error) {
	return nil, nil
}
func (g recordingGraph) TraverseBFS(ctx context.Context, projectID, startName string, maxDepth, maxNodes int) ([]string, error) {
	return nil, nil
}
func (g recordingGraph) FindShortestPath(ctx context.Context, projectID, src, tgt string) ([]string, error) {
	return nil, nil
}
func (g recordingGraph) DeleteBySourceID(ctx context.Context, projectID, sourceID string) error {
	return nil
}
func (g recordingGraph) GetStats(ctx context.Context, projectID string) (storage.GraphStats, error) {
	return storage.GraphStats{}, nil
}
func (g recordingGraph) MergeEntities(ctx context.Context, projectID string, sourceNames []string, target storage.Entity, relations []storage.Relation) error {
	return nil
}

type recordingVector struct{ b *recordingBackend }

func (v recordingVector) Upsert(ctx context.Context, e storage.Embedding) error { return nil }
func (v recordingVector) UpsertBatch(ctx context.Context, es []storage.Embedding) error {
	return nil
}
func (v recordingVector) Query(ctx context.Context, projectID string, vector []float32, topK int, owner storage.OwnerType) ([]storage.VectorResult, error) {
	return nil, nil
}
func (v recordingVector) Delete(ctx context.Context, projectID, ownerID string) error { return nil }
func (v recordingVector) DeleteBatch(ctx context.Context, projectID string, ownerIDs []string) error {
	return nil
}
func (v recordingVector) DeleteByProject(ctx context.Context, projectID string) error {
	v.b.order = append(v.b.order, "vector")
	v.b.vectorDeleted[projectID] = true
	return nil
}
func (v recordingVector) DeleteEntityEmbeddings(ctx context.Context, projectID string, names []string) error {
	return nil
}
func (v recordingVector) HasVectors(ctx context.Context, documentID string) (bool, error) {
	return false, nil
}

type recordingKV struct{}

func (recordingKV) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }
func (recordingKV) Set(ctx context.Context, key string, value []byte) error   { return nil }
func (recordingKV) Delete(ctx context.Context, key string) error              { return nil }

type recordingDocStatus struct{ b *recordingBackend }

func (d recordingDocStatus) SetStatus(ctx context.Context, s storage.DocStatus) error { return nil }
func (d recordingDocStatus) GetStatus(ctx context.Context, documentID string) (storage.DocStatus, bool, error) {
	return storage.DocStatus{}, false, nil
}
func (d recordingDocStatus) DeleteByProject(ctx context.Context, projectID string) error {
	d.b.order = append(d.b.order, "docstatus")
	d.b.statusDeleted[projectID] = true
	return nil
}

type recordingCache struct{ b *recordingBackend }

func (c recordingCache) Get(ctx context.Context, projectID string, cacheType storage.CacheType, contentHash string) (storage.ExtractionCacheEntry, bool, error) {
	return storage.ExtractionCacheEntry{}, false, nil
}
func (c recordingCache) Put(ctx context.Context, entry storage.ExtractionCacheEntry) error {
	return nil
}
func (c recordingCache) DeleteByProject(ctx context.Context, projectID string) error {
	c.b.order = append(c.b.order, "cache")
	c.b.cacheDeleted[projectID] = true
	return nil
}

func TestCreate_AllocatesGraphNamespace(t *testing.T) {
	backend := newRecordingBackend()
	m := New(backend)

	err := m.Create(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.True(t, backend.graphCreated["proj-1"])
}

func TestCreate_RejectsEmptyID(t *testing.T) {
	m := New(newRecordingBackend())
	err := m.Create(context.Background(), "")
	assert.Error(t, err)
}

func TestDelete_CascadesInSpecOrder(t *testing.T) {
	backend := newRecordingBackend()
	m := New(backend)
	require.NoError(t, m.Create(context.Background(), "proj-1"))

	err := m.Delete(context.Background(), "proj-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"vector", "graph", "docstatus", "cache"}, backend.order)
	assert.True(t, backend.vectorDeleted["proj-1"])
	assert.True(t, backend.graphDeleted["proj-1"])
	assert.True(t, backend.statusDeleted["proj-1"])
	assert.True(t, backend.cacheDeleted["proj-1"])
}

func TestDelete_RejectsEmptyID(t *testing.T) {
	m := New(newRecordingBackend())
	err := m.Delete(context.Background(), "")
	assert.Error(t, err)
}

type noopEmbedder struct{}

func (noopEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1}
	}
	return out, nil
}
func (noopEmbedder) Dimension() int { return 1 }
func (noopEmbedder) Name() string   { return "noop" }

type echoLLM struct{}

func (echoLLM) Name() string { return "echo" }
func (echoLLM) Complete(ctx context.Context, messages []llmapi.Message, maxTokens int) (string, error) {
	return "nothing found", nil
}

// After Delete, a query against the same project must return zero
// sources and must not error (spec.md §4.11): the storage layer simply
// has nothing left to return for that projectID, rather than needing a
// special "deleted" check anywhere in the query path.
func TestDelete_SubsequentQueryReturnsNoSourcesWithoutError(t *testing.T) {
	backend := newRecordingBackend()
	m := New(backend)
	require.NoError(t, m.Create(context.Background(), "proj-1"))
	require.NoError(t, m.Delete(context.Background(), "proj-1"))

	exec := query.New(backend.Vector(), backend.Graph(), backend.KV(), noopEmbedder{}, echoLLM{}, nil, nil, 10, 5)
	res, err := exec.Execute(context.Background(), "proj-1", query.ModeNaive, "what happened to Acme?")
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Equal(t, 0, res.TotalSources)
}
