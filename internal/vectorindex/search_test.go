package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeScores_MinMaxToUnitRange(t *testing.T) {
	hits := []Hit{{ChunkID: "a", Score: 1}, {ChunkID: "b", Score: 3}, {ChunkID: "c", Score: 2}}
	norm := normalizeScores(hits)
	require.InDelta(t, 0.0, norm[0], 1e-9)
	require.InDelta(t, 1.0, norm[1], 1e-9)
	require.InDelta(t, 0.5, norm[2], 1e-9)
}

func TestNormalizeScores_EmptyInput(t *testing.T) {
	require.Empty(t, normalizeScores(nil))
}

func TestNormalizeScores_ConstantScoresAllOne(t *testing.T) {
	hits := []Hit{{ChunkID: "a", Score: 5}, {ChunkID: "b", Score: 5}}
	norm := normalizeScores(hits)
	require.Equal(t, []float64{1, 1}, norm)
}

// Given a chunk present in both the dense and text-proxy legs, When fuseConvex
// combines them, Then its score is the 0.7/0.3 weighted sum of both legs
// rather than just one leg's contribution.
func TestFuseConvex_CombinesOverlappingHitsWithFixedWeights(t *testing.T) {
	dense := []Hit{{ChunkID: "x", Score: 1}, {ChunkID: "y", Score: 0}}
	text := []Hit{{ChunkID: "x", Score: 1}, {ChunkID: "z", Score: 0}}

	fused := fuseConvex(dense, text, 10)
	require.Len(t, fused, 3)

	var xScore float64
	for _, h := range fused {
		if h.ChunkID == "x" {
			xScore = h.Score
		}
	}
	require.InDelta(t, 1.0, xScore, 1e-9) // 0.7*1 + 0.3*1
	require.Equal(t, "x", fused[0].ChunkID)
}

func TestFuseConvex_RespectsTopK(t *testing.T) {
	dense := []Hit{{ChunkID: "a", Score: 1}, {ChunkID: "b", Score: 0.5}, {ChunkID: "c", Score: 0}}
	fused := fuseConvex(dense, nil, 2)
	require.Len(t, fused, 2)
}

func TestFilter_ToQdrant_AlwaysIncludesProjectID(t *testing.T) {
	f := Filter{ProjectID: "proj-1", Tags: []string{"nlp", "survey"}}
	q := f.toQdrant()
	require.GreaterOrEqual(t, len(q.Must), 3) // project_id + 2 tags
}
