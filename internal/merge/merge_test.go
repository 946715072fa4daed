package merge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/storage"
)

type fakeGraph struct {
	entities  map[string]storage.Entity
	relations []storage.Relation
}

func newFakeGraph() *fakeGraph { return &fakeGraph{entities: map[string]storage.Entity{}} }

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
	var out []storage.Relation
	for _, r := range f.relations {
		if r.SrcID == name || r.TgtID == name {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeGraph) GetEntitiesBySourceChunk(ctx context.Context, projectID, chunkID string) ([]storage.Entity, error) {
	return nil, nil
}
func (f *fakeGraph) TraverseBFS(ctx context.Context, projectID, startName string, maxDepth, maxNodes int) ([]string, error) {
	return nil, nil
}
func (f *fakeGraph) FindShortestPath(ctx context.Context, projectID, src, tgt string) ([]string, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeGraph) DeleteBySourceID(ctx context.Context, projectID, sourceID string) error {
	return nil
}
func (f *fakeGraph) GetStats(ctx context.Context, projectID string) (storage.GraphStats, error) {
	return storage.GraphStats{}, nil
}
func (f *fakeGraph) MergeEntities(ctx context.Context, projectID string, sourceNames []string, target storage.Entity, relations []storage.Relation) error {
	for _, n := range sourceNames {
		delete(f.entities, n)
	}
	var kept []storage.Relation
	for _, r := range f.relations {
		touches := false
		for _, n := range sourceNames {
			if r.SrcID == n || r.TgtID == n {
				touches = true
				break
			}
		}
		if !touches {
			kept = append(kept, r)
		}
	}
	f.relations = append(kept, relations...)
	f.entities[target.EntityName] = target
	return nil
}

func TestApplyStrategy_KeepLongestPicksLongestDeterministically(t *testing.T) {
	got := ApplyStrategy(context.Background(), KeepLongest, []string{"short", "a much longer description"}, nil)
	assert.Equal(t, "a much longer description", got)
}

func TestApplyStrategy_LLMSummarizeFallsBackOnNilLLM(t *testing.T) {
	got := ApplyStrategy(context.Background(), LLMSummarize, []string{"a", "b"}, nil)
	assert.Equal(t, "a | b", got)
}

func TestMerge_RedirectsFiltersSelfLoopsAndDedups(t *testing.T) {
	g := newFakeGraph()
	g.entities["apple-inc"] = storage.Entity{EntityName: "apple-inc", EntityType: "ORG", Description: "the company"}
	g.entities["apple-computer"] = storage.Entity{EntityName: "apple-computer", EntityType: "ORG", Description: "makes computers"}
	g.entities["steve-jobs"] = storage.Entity{EntityName: "steve-jobs", EntityType: "PERSON", Description: "cofounder"}
	g.relations = []storage.Relation{
		{SrcID: "apple-inc", TgtID: "steve-jobs", Description: "founded by", Weight: 1},
		{SrcID: "apple-computer", TgtID: "steve-jobs", Description: "founded by", Weight: 1},
		{SrcID: "apple-computer", TgtID: "apple-inc", Description: "renamed to", Weight: 1},
	}

	m := New(g, nil, nil, nil, Concatenate, 0)
	stats, err := m.Merge(context.Background(), "proj", []string{"apple-computer", "apple-inc"}, "apple-corp")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SelfLoopsFiltered, "apple-computer->apple-inc becomes a self loop once both redirect to apple-corp")
	assert.Equal(t, 1, stats.RelationsDeduped, "both founded-by relations redirect to the same (apple-corp, steve-jobs) pair")

	for _, name := range []string{"apple-computer", "apple-inc"} {
		_, ok := g.entities[name]
		assert.False(t, ok, "source entity must be deleted")
	}
	merged := g.entities["apple-corp"]
	assert.Contains(t, merged.Description, "the company")
	assert.Contains(t, merged.Description, "makes computers")

	for _, r := range g.relations {
		assert.NotEqual(t, "apple-computer", r.SrcID)
		assert.NotEqual(t, "apple-computer", r.TgtID)
		assert.NotEqual(t, "apple-inc", r.SrcID)
		assert.NotEqual(t, "apple-inc", r.TgtID)
	}
}

func TestMerge_RejectsDuplicateOrEmptySources(t *testing.T) {
	g := newFakeGraph()
	m := New(g, nil, nil, nil, Concatenate, 0)
	_, err := m.Merge(context.Background(), "proj", []string{"a", "a"}, "target")
	assert.Error(t, err)
}
