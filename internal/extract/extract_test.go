package extract

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/llmapi"
	"ragcore/internal/resilience"
	"ragcore/internal/storage"
)

type fakeLLM struct {
	calls int32
	reply string
}

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Complete(ctx context.Context, messages []llmapi.Message, maxTokens int) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.reply, nil
}

type memCache struct {
	entries map[string]storage.ExtractionCacheEntry
}

func newMemCache() *memCache { return &memCache{entries: map[string]storage.ExtractionCacheEntry{}} }

func (c *memCache) Get(ctx context.Context, projectID string, cacheType storage.CacheType, hash string) (storage.ExtractionCacheEntry, bool, error) {
	e, ok := c.entries[projectID+"|"+string(cacheType)+"|"+hash]
	return e, ok, nil
}

func (c *memCache) Put(ctx context.Context, entry storage.ExtractionCacheEntry) error {
	c.entries[entry.ProjectID+"|"+string(entry.CacheType)+"|"+entry.ContentHash] = entry
	return nil
}

func (c *memCache) DeleteByProject(ctx context.Context, projectID string) error {
	for k, e := range c.entries {
		if e.ProjectID == projectID {
			delete(c.entries, k)
		}
	}
	return nil
}

func TestExtractChunk_CachesOnSecondCall(t *testing.T) {
	llm := &fakeLLM{reply: `{"entities":[{"name":"Acme","type":"ORGANIZATION","description":"a company"}],"relations":[]}`}
	x := New(llm, newMemCache(), nil, resilience.Policy{MaxAttempts: 1}, nil, 4)

	chunk := storage.Chunk{ID: "c1", Content: "Acme makes widgets."}
	r1, err := x.ExtractChunk(context.Background(), "proj", "english", chunk)
	require.NoError(t, err)
	require.Len(t, r1.Entities, 1)
	assert.Equal(t, "Acme", r1.Entities[0].Name)

	r2, err := x.ExtractChunk(context.Background(), "proj", "english", chunk)
	require.NoError(t, err)
	assert.Equal(t, r1.Entities, r2.Entities)
	assert.Equal(t, int32(1), atomic.LoadInt32(&llm.calls), "second call must be served from cache")
}

func TestExtractChunk_FlagsUnrecognizedEntityType(t *testing.T) {
	llm := &fakeLLM{reply: `{"entities":[{"name":"Acme","type":"ORGANIZATION","description":"a company"},{"name":"Thing","type":"GADGET","description":"a widget"}],"relations":[]}`}
	x := New(llm, newMemCache(), nil, resilience.Policy{MaxAttempts: 1}, []string{"PERSON", "ORGANIZATION"}, 4)

	chunk := storage.Chunk{ID: "c1", Content: "Acme makes the Thing."}
	r, err := x.ExtractChunk(context.Background(), "proj", "english", chunk)
	require.NoError(t, err)
	require.Len(t, r.Entities, 2)
	assert.False(t, r.Entities[0].Flagged, "ORGANIZATION is in the allowlist")
	assert.True(t, r.Entities[1].Flagged, "GADGET is outside the allowlist")
	assert.Equal(t, "Thing", r.Entities[1].Name, "unrecognized type is retained, not dropped")
}

func TestExtractBatch_SkipsFailingChunksButContinues(t *testing.T) {
	llm := &fakeLLM{reply: "not json"}
	x := New(llm, newMemCache(), nil, resilience.Policy{MaxAttempts: 1}, nil, 4)

	chunks := []storage.Chunk{{ID: "a", Content: "x"}, {ID: "b", Content: "y"}}
	batch := x.ExtractBatch(context.Background(), "proj", "english", chunks)
	assert.Equal(t, 2, batch.Attempted)
	assert.Equal(t, 0, batch.Succeeded)
	assert.Equal(t, 0.0, batch.SuccessRatio())
}

func TestExtractBatch_SuccessRatioAboveThreshold(t *testing.T) {
	llm := &fakeLLM{reply: `{"entities":[],"relations":[]}`}
	x := New(llm, newMemCache(), nil, resilience.Policy{MaxAttempts: 1}, nil, 4)

	chunks := []storage.Chunk{{ID: "a", Content: "x"}, {ID: "b", Content: "y"}}
	batch := x.ExtractBatch(context.Background(), "proj", "english", chunks)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 1.0, batch.SuccessRatio())
}
