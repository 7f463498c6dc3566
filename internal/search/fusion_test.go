package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citeseek/citeseek/internal/store"
)

func TestRRFFusion_ReciprocalRankSums(t *testing.T) {
	f := NewRRFFusion(60)

	lexical := []*store.BM25Result{
		{DocID: "chunk-a", Score: 8.2, MatchedTerms: []string{"protein"}},
		{DocID: "chunk-b", Score: 5.1},
		{DocID: "chunk-c", Score: 3.0},
	}
	vector := []*store.VectorResult{
		{ID: "chunk-c", Score: 0.91},
		{ID: "chunk-d", Score: 0.85},
	}

	fused := f.Fuse(lexical, vector)
	require.Len(t, fused, 4)

	byID := make(map[string]*FusedResult)
	for _, r := range fused {
		byID[r.ChunkID] = r
	}

	// chunk-c is rank 3 lexically and rank 1 in the vector list, so its
	// score is exactly 1/63 + 1/61. A list that did not return a chunk
	// contributes nothing.
	assert.InDelta(t, 1.0/63.0+1.0/61.0, byID["chunk-c"].Score, 1e-12)
	assert.InDelta(t, 1.0/61.0, byID["chunk-a"].Score, 1e-12)
	assert.InDelta(t, 1.0/62.0, byID["chunk-b"].Score, 1e-12)
	assert.InDelta(t, 1.0/62.0, byID["chunk-d"].Score, 1e-12)

	assert.True(t, byID["chunk-c"].InBothLists)
	assert.False(t, byID["chunk-a"].InBothLists)
	assert.Equal(t, 3, byID["chunk-c"].BM25Rank)
	assert.Equal(t, 1, byID["chunk-c"].VectorRank)
	assert.Equal(t, 0, byID["chunk-d"].BM25Rank)
	assert.Equal(t, []string{"protein"}, byID["chunk-a"].MatchedTerms)

	// chunk-c tops the list: two contributions beat any single one.
	assert.Equal(t, "chunk-c", fused[0].ChunkID)
}

func TestRRFFusion_EmptyInputs(t *testing.T) {
	f := NewRRFFusion(60)

	fused := f.Fuse(nil, nil)
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestRRFFusion_SingleBranch(t *testing.T) {
	f := NewRRFFusion(60)

	lexical := []*store.BM25Result{
		{DocID: "chunk-a", Score: 4.0},
		{DocID: "chunk-b", Score: 2.0},
	}

	fused := f.Fuse(lexical, nil)
	require.Len(t, fused, 2)
	assert.Equal(t, "chunk-a", fused[0].ChunkID)
	assert.InDelta(t, 1.0/61.0, fused[0].Score, 1e-12)
	assert.False(t, fused[0].InBothLists)
}

func TestRRFFusion_TieBreakDeterministic(t *testing.T) {
	f := NewRRFFusion(60)

	// chunk-b at lexical rank 1 and chunk-a at vector rank 1 have equal
	// RRF scores and neither is in both lists, so BM25 score breaks the
	// tie in chunk-b's favor.
	lexical := []*store.BM25Result{{DocID: "chunk-b", Score: 3.0}}
	vector := []*store.VectorResult{{ID: "chunk-a", Score: 0.9}}

	fused := f.Fuse(lexical, vector)
	require.Len(t, fused, 2)
	assert.Equal(t, "chunk-b", fused[0].ChunkID)
	assert.Equal(t, "chunk-a", fused[1].ChunkID)
}

func TestRRFFusion_DefaultsKOnNonPositive(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewRRFFusion(0).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFFusion(-5).K)
	assert.Equal(t, 10, NewRRFFusion(10).K)
}

func TestWeightedFusion_NormalizedCombination(t *testing.T) {
	f := NewWeightedFusion(0.4, 0.6)

	lexical := []*store.BM25Result{
		{DocID: "chunk-a", Score: 10.0},
		{DocID: "chunk-b", Score: 5.0},
		{DocID: "chunk-c", Score: 0.0},
	}
	vector := []*store.VectorResult{
		{ID: "chunk-b", Score: 0.9},
		{ID: "chunk-c", Score: 0.5},
	}

	fused := f.Fuse(lexical, vector)
	require.Len(t, fused, 3)

	byID := make(map[string]*FusedResult)
	for _, r := range fused {
		byID[r.ChunkID] = r
	}

	// Lexical normalizes to 1.0, 0.5, 0.0; vector to 1.0, 0.0.
	assert.InDelta(t, 0.4*1.0, byID["chunk-a"].Score, 1e-12)
	assert.InDelta(t, 0.4*0.5+0.6*1.0, byID["chunk-b"].Score, 1e-12)
	assert.InDelta(t, 0.0, byID["chunk-c"].Score, 1e-12)

	assert.Equal(t, "chunk-b", fused[0].ChunkID)
	assert.True(t, byID["chunk-b"].InBothLists)
}

func TestWeightedFusion_UniformScoresNormalizeToOne(t *testing.T) {
	f := NewWeightedFusion(0.5, 0.5)

	lexical := []*store.BM25Result{
		{DocID: "chunk-a", Score: 2.0},
		{DocID: "chunk-b", Score: 2.0},
	}

	fused := f.Fuse(lexical, nil)
	require.Len(t, fused, 2)
	assert.InDelta(t, 0.5, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.5, fused[1].Score, 1e-12)
	// Equal everything falls through to chunk ID order.
	assert.Equal(t, "chunk-a", fused[0].ChunkID)
}

func TestNewFuser_SelectsByMethod(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.IsType(t, &RRFFusion{}, NewFuser(cfg))

	cfg.Fusion = FusionWeighted
	assert.IsType(t, &WeightedFusion{}, NewFuser(cfg))
}

func TestMinMaxNormalize(t *testing.T) {
	assert.Nil(t, minMaxNormalize(nil))
	assert.Equal(t, []float64{1.0}, minMaxNormalize([]float64{7.5}))

	norm := minMaxNormalize([]float64{1.0, 3.0, 5.0})
	assert.InDelta(t, 0.0, norm[0], 1e-12)
	assert.InDelta(t, 0.5, norm[1], 1e-12)
	assert.InDelta(t, 1.0, norm[2], 1e-12)
}
