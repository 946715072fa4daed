package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/extract"
	"ragcore/internal/merge"
)

func defaultWeights() Weights {
	return Weights{Jaccard: 0.35, Containment: 0.25, Edit: 0.30, Acronym: 0.10}
}

func TestResolve_ClustersNearDuplicateNames(t *testing.T) {
	r := &Resolver{Weights: defaultWeights(), Threshold: 0.75, Threads: 2, Strategy: merge.Concatenate}
	entities := []extract.RawEntity{
		{Name: "International Business Machines", Type: "ORGANIZATION", Description: "a technology company", SourceChunkID: "c1"},
		{Name: "International Business Machines Corp", Type: "ORGANIZATION", Description: "headquartered in Armonk, New York", SourceChunkID: "c3"},
	}
	res := r.Resolve(context.Background(), entities)
	require.Len(t, res.Clusters, 1)
	c := res.Clusters[0]
	assert.Equal(t, "International Business Machines Corp", c.Canonical, "longest description wins canonical selection")
	assert.Len(t, c.Aliases, 1)
	assert.Equal(t, "International Business Machines Corp", res.RawToCanonical["International Business Machines"])
}

func TestResolve_DoesNotMergeAcrossTypes(t *testing.T) {
	r := &Resolver{Weights: defaultWeights(), Threshold: 0.75, Threads: 2, Strategy: merge.Concatenate}
	entities := []extract.RawEntity{
		{Name: "Washington", Type: "LOCATION", Description: "a US state"},
		{Name: "Washington", Type: "PERSON", Description: "George Washington"},
	}
	res := r.Resolve(context.Background(), entities)
	require.Len(t, res.Clusters, 2)
}

func TestResolve_DistinctEntitiesStayUnmerged(t *testing.T) {
	r := &Resolver{Weights: defaultWeights(), Threshold: 0.75, Threads: 2, Strategy: merge.Concatenate}
	entities := []extract.RawEntity{
		{Name: "Apple Inc", Type: "ORGANIZATION", Description: "maker of the iPhone"},
		{Name: "Banana Republic", Type: "ORGANIZATION", Description: "a clothing retailer"},
	}
	res := r.Resolve(context.Background(), entities)
	assert.Len(t, res.Clusters, 2)
}

func TestAcronymMatch(t *testing.T) {
	assert.Equal(t, 1.0, acronymMatch("ibm", "international business machines"))
	assert.Equal(t, 0.0, acronymMatch("ibm", "international machines"))
}

func TestShouldCompare_SkipsVeryDifferentLengths(t *testing.T) {
	assert.False(t, ShouldCompare("elephant", "a very long entity name that shares no prefix"))
}
