package retrieve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashingSparseEncoder_RepeatedTermsAccumulate(t *testing.T) {
	enc := NewHashingSparseEncoder(1024)
	vec := enc.Encode("fox fox fox")
	require.Len(t, vec.Indices, 1)
	require.Equal(t, float32(3), vec.Values[0])
}

func TestHashingSparseEncoder_DistinctTermsGetDistinctIndices(t *testing.T) {
	enc := NewHashingSparseEncoder(1 << 16)
	vec := enc.Encode("fox jumps over dog")
	require.Len(t, vec.Indices, 4)
}

func TestHashingSparseEncoder_EmptyTextProducesEmptyVector(t *testing.T) {
	enc := NewHashingSparseEncoder(0)
	vec := enc.Encode("")
	require.Empty(t, vec.Indices)
}

func TestHashingSparseEncoder_IndicesAreSorted(t *testing.T) {
	enc := NewHashingSparseEncoder(1 << 16)
	vec := enc.Encode("zebra apple mango banana")
	for i := 1; i < len(vec.Indices); i++ {
		require.LessOrEqual(t, vec.Indices[i-1], vec.Indices[i])
	}
}
