package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/llmapi"
	"ragcore/internal/rerank"
	"ragcore/internal/storage"
)

type fakeVector struct {
	chunkHits  []storage.VectorResult
	entityHits []storage.VectorResult
}

func (f *fakeVector) Upsert(ctx context.Context, e storage.Embedding) error      { return nil }
func (f *fakeVector) UpsertBatch(ctx context.Context, es []storage.Embedding) error { return nil }
func (f *fakeVector) Query(ctx context.Context, projectID string, vector []float32, topK int, owner storage.OwnerType) ([]storage.VectorResult, error) {
	if owner == storage.OwnerEntity {
		return f.entityHits, nil
	}
	return f.chunkHits, nil
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
	return false, nil
}

type fakeGraph struct {
	entities  map[string]storage.Entity
	relations []storage.Relation
	bySource  map[string][]string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{entities: map[string]storage.Entity{}, bySource: map[string][]string{}}
}

func (f *fakeGraph) CreateProjectGraph(ctx context.Context, projectID string) error { return nil }
func (f *fakeGraph) DeleteProjectGraph(ctx context.Context, projectID string) error { return nil }
func (f *fakeGraph) GraphExists(ctx context.Context, projectID string) (bool, error) {
	return true, nil
}
func (f *fakeGraph) UpsertEntity(ctx context.Context, e storage.Entity) error { return nil }
func (f *fakeGraph) UpsertEntities(ctx context.Context, es []storage.Entity) error { return nil }
func (f *fakeGraph) UpsertRelation(ctx context.Context, r storage.Relation) error { return nil }
func (f *fakeGraph) UpsertRelations(ctx context.Context, rs []storage.Relation) error { return nil }
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
	var out []storage.Relation
	for _, r := range f.relations {
		if r.SrcID == name || r.TgtID == name {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeGraph) GetEntitiesBySourceChunk(ctx context.Context, projectID, chunkID string) ([]storage.Entity, error) {
	var out []storage.Entity
	for _, name := range f.bySource[chunkID] {
		if e, ok := f.entities[name]; ok {
			out = append(out, e)
		}
	}
	return out, nil
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

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}
func (fakeEmbedder) Dimension() int { return 3 }
func (fakeEmbedder) Name() string   { return "fake" }

type fakeLLM struct{ reply string }

func (f fakeLLM) Name() string { return "fake" }
func (f fakeLLM) Complete(ctx context.Context, messages []llmapi.Message, maxTokens int) (string, error) {
	return f.reply, nil
}

func TestExecute_Naive_ReturnsSourcesWithCitations(t *testing.T) {
	kv := newFakeKV()
	chunk := storage.Chunk{ID: "c1", DocumentID: "doc-1", ChunkIndex: 0, Content: "Acme makes widgets."}
	require.NoError(t, storage.PutChunk(context.Background(), kv, chunk))

	vector := &fakeVector{chunkHits: []storage.VectorResult{{OwnerID: "c1", Score: 0.9}}}
	graph := newFakeGraph()

	x := New(vector, graph, kv, fakeEmbedder{}, fakeLLM{reply: "The answer is [doc-1:chunk-0] widgets."}, rerank.NoneReranker{}, nil, 10, 5)
	res, err := x.Execute(context.Background(), "proj", ModeNaive, "what does acme make?")
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.Equal(t, "doc-1", *res.Sources[0].DocumentID)
	assert.Contains(t, res.Answer, "[doc-1:chunk-0]", "citations preserved when a source has a document id")
}

func TestExecute_Global_StripsCitationsWhenOnlyPseudoChunk(t *testing.T) {
	kv := newFakeKV()
	vector := &fakeVector{entityHits: []storage.VectorResult{{OwnerID: "acme", Score: 0.9}}}
	graph := newFakeGraph()
	graph.entities["acme"] = storage.Entity{EntityName: "acme", EntityType: "ORG", Description: "a widget maker"}

	x := New(vector, graph, kv, fakeEmbedder{}, fakeLLM{reply: "Acme makes widgets [fabricated:chunk-0]."}, rerank.NoneReranker{}, nil, 10, 5)
	res, err := x.Execute(context.Background(), "proj", ModeGlobal, "who makes widgets?")
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.Nil(t, res.Sources[0].DocumentID)
	assert.NotContains(t, res.Answer, "[", "citation tokens stripped when no source has a document id")
}

func TestMergeMax_KeepsHigherScorePerID(t *testing.T) {
	a := []Candidate{{ID: "x", Score: 0.4}, {ID: "y", Score: 0.9}}
	b := []Candidate{{ID: "x", Score: 0.8}}
	merged := mergeMax(a, b)
	byID := map[string]float64{}
	for _, c := range merged {
		byID[c.ID] = c.Score
	}
	assert.Equal(t, 0.8, byID["x"])
	assert.Equal(t, 0.9, byID["y"])
}
