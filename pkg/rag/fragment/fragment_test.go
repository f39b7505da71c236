package fragment

import (
	"math"
	"testing"

	"kb-assistant/pkg/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevanceBounds(t *testing.T) {
	assert.Equal(t, 1.0, Relevance(0))

	prev := Relevance(0)
	for _, s := range []float64{0.001, 0.25, 1, 10, 1e6} {
		r := Relevance(s)
		assert.Greater(t, r, 0.0, "score %v", s)
		assert.LessOrEqual(t, r, 1.0, "score %v", s)
		assert.Less(t, r, prev, "relevance must strictly decrease (score %v)", s)
		prev = r
	}
}

func TestRelevanceNegativeDistance(t *testing.T) {
	assert.Equal(t, 1.0, Relevance(-3))
}

func TestFromSourcesKeepsBackendOrder(t *testing.T) {
	sources := []gateway.Source{
		{Content: "first", Score: 0.25},
		{Content: "second", Score: 1.0},
		{Content: "third", Score: 0.1},
	}

	got := FromSources(sources)
	require.Len(t, got, 3)

	ids := map[string]struct{}{}
	for i, f := range got {
		assert.Equal(t, i+1, f.Index)
		assert.Equal(t, sources[i].Content, f.Content)
		ids[f.ID] = struct{}{}
	}
	assert.Len(t, ids, 3)

	assert.InDelta(t, 0.8, got[0].Relevance, 1e-9)
	assert.InDelta(t, 0.5, got[1].Relevance, 1e-9)
	assert.InDelta(t, 1/1.1, got[2].Relevance, 1e-9)
}

func TestFromSourcesEmpty(t *testing.T) {
	got := FromSources(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, math.IsNaN(Relevance(0)))
}
