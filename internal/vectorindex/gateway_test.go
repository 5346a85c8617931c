package vectorindex

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDistanceFromMetric(t *testing.T) {
	require.Equal(t, distanceFromMetric("cosine"), distanceFromMetric(""))
	require.NotEqual(t, distanceFromMetric("l2"), distanceFromMetric("cosine"))
	require.NotEqual(t, distanceFromMetric("ip"), distanceFromMetric("cosine"))
}

func TestPointID_DeterministicAndUUIDShaped(t *testing.T) {
	id1 := pointID("chunk-abc123")
	id2 := pointID("chunk-abc123")
	require.Equal(t, id1, id2)
	require.Len(t, id1, 36) // canonical UUID string length

	id3 := pointID("chunk-different")
	require.NotEqual(t, id1, id3)
}

// Given a fresh gateway with no recorded binding, When checkWriteGuard
// observes a collection for the first time, Then it trusts and records the
// caller's model ids rather than failing.
func TestCheckWriteGuard_FirstObservationIsTrusted(t *testing.T) {
	g := &Gateway{log: zerolog.Nop(), bindings: make(map[string]binding)}

	err := g.checkWriteGuard("papers", "text-embedding-3-small", "bm25-v1")
	require.NoError(t, err)

	g.mu.Lock()
	b := g.bindings["papers"]
	g.mu.Unlock()
	require.Equal(t, "text-embedding-3-small", b.DenseModelID)
	require.Equal(t, "bm25-v1", b.SparseModelID)
}

// Given a collection already bound to one dense model, When a write arrives
// declaring a different dense model, Then the guard fails fatally.
func TestCheckWriteGuard_DenseMismatchIsFatal(t *testing.T) {
	g := &Gateway{log: zerolog.Nop(), bindings: map[string]binding{
		"papers": {DenseModelID: "text-embedding-3-small", SparseModelID: "bm25-v1"},
	}}

	err := g.checkWriteGuard("papers", "text-embedding-3-large", "bm25-v1")
	require.Error(t, err)
}

// Given a collection bound to one sparse model, When a write declares a
// different sparse model, Then the guard logs but does not fail.
func TestCheckWriteGuard_SparseMismatchIsWarningOnly(t *testing.T) {
	g := &Gateway{log: zerolog.Nop(), bindings: map[string]binding{
		"papers": {DenseModelID: "text-embedding-3-small", SparseModelID: "bm25-v1"},
	}}

	err := g.checkWriteGuard("papers", "text-embedding-3-small", "bm25-v2")
	require.NoError(t, err)
}

func TestCheckWriteGuard_MatchingIdsIsNoop(t *testing.T) {
	g := &Gateway{log: zerolog.Nop(), bindings: map[string]binding{
		"papers": {DenseModelID: "m1", SparseModelID: "s1"},
	}}
	require.NoError(t, g.checkWriteGuard("papers", "m1", "s1"))
}
