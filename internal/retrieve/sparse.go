package retrieve

import (
	"hash/fnv"
	"sort"
	"strings"

	"github.com/Sims2k/citeloom-sub000/internal/vectorindex"
)

// HashingSparseEncoder turns query text into the "sparse as text-proxy"
// vector vectorindex.HybridSearch expects on its sparse leg: term counts
// hashed into a fixed-width index space, the same hashing-trick shape
// embedder.NewDeterministic uses for its dense fallback.
type HashingSparseEncoder struct {
	dim int
}

// NewHashingSparseEncoder builds an encoder with the given index space
// width. A non-positive dim falls back to a sane default.
func NewHashingSparseEncoder(dim int) *HashingSparseEncoder {
	if dim <= 0 {
		dim = 1 << 16
	}
	return &HashingSparseEncoder{dim: dim}
}

// Encode tokenizes on whitespace/punctuation, lowercases, and accumulates a
// term-frequency count per hashed index. Repeated terms hashing to the same
// index accumulate rather than overwrite.
func (e *HashingSparseEncoder) Encode(text string) vectorindex.SparseVector {
	counts := make(map[uint32]float32)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		idx := h.Sum32() % uint32(e.dim)
		counts[idx]++
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	// Deterministic ordering regardless of map iteration order.
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = counts[idx]
	}
	return vectorindex.SparseVector{Indices: indices, Values: values}
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
