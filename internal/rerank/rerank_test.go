package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/config"
)

func TestNoneReranker_PreservesOrderWithSyntheticScores(t *testing.T) {
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	scored, err := NoneReranker{}.Rerank(context.Background(), "q", items)
	require.NoError(t, err)
	require.Len(t, scored, 3)
	assert.Equal(t, "a", scored[0].ID)
	assert.Equal(t, "b", scored[1].ID)
	assert.Equal(t, "c", scored[2].ID)
	assert.Greater(t, scored[0].Score, scored[1].Score)
	assert.Greater(t, scored[1].Score, scored[2].Score)
}

func TestIdentityScores_FloorsAtPointOne(t *testing.T) {
	items := make([]Item, 50)
	for i := range items {
		items[i] = Item{ID: string(rune('a' + i%26))}
	}
	scored := identityScores(items)
	for _, s := range scored {
		assert.GreaterOrEqual(t, s.Score, 0.1)
	}
}

func TestNew_NoneProviderIsIdentity(t *testing.T) {
	r := New(config.RerankerConfig{Provider: "none"})
	_, ok := r.(NoneReranker)
	assert.True(t, ok)
}

func TestHTTPReranker_FallsBackWhenEndpointUnreachable(t *testing.T) {
	cfg := config.RerankerConfig{Provider: "external_a", Endpoint: "http://127.0.0.1:1/does-not-exist", MinScore: 0.1, TimeoutMs: 100}
	r := NewHTTPReranker(cfg, 0)
	items := []Item{{ID: "x", Content: "hello"}}
	scored, err := r.Rerank(context.Background(), "q", items)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "x", scored[0].ID)
}
