package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// Filter narrows a search to the caller's project plus optional fields. Tags
// use AND semantics: every supplied tag must match.
type Filter struct {
	ProjectID     string
	Tags          []string
	Year          *int
	ItemKey       string
	AttachmentKey string
}

// Hit is one ranked result, carrying the full stored payload.
type Hit struct {
	ChunkID string
	Score   float64
	Payload map[string]any
}

func (f Filter) toQdrant() *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch("project_id", f.ProjectID)}
	for _, tag := range f.Tags {
		must = append(must, qdrant.NewMatch("tags", tag))
	}
	if f.Year != nil {
		must = append(must, qdrant.NewMatchInt("year", int64(*f.Year)))
	}
	if f.ItemKey != "" {
		must = append(must, qdrant.NewMatch("zotero.item_key", f.ItemKey))
	}
	if f.AttachmentKey != "" {
		must = append(must, qdrant.NewMatch("zotero.attachment_key", f.AttachmentKey))
	}
	return &qdrant.Filter{Must: must}
}

// DenseSearch runs a pure dense-vector query. ProjectID in filter is
// mandatory and always enforced server-side.
func (g *Gateway) DenseSearch(ctx context.Context, collection string, queryVector []float32, topK int, filter Filter) ([]Hit, error) {
	if filter.ProjectID == "" {
		return nil, errs.New(errs.KindInvalidInput, "project_id filter is required for dense search")
	}
	if topK <= 0 {
		topK = 10
	}

	limit := uint64(topK)
	using := DenseVectorName
	results, err := g.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(queryVector),
		Using:          &using,
		Limit:          &limit,
		Filter:         filter.toQdrant(),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dense search failed: %w", err)
	}
	return toHits(results), nil
}

// HybridSearch requires both a dense and sparse vector to be supplied and
// both models to be bound for the collection; otherwise it fails with
// HybridNotSupported. It prefers the store's native RRF fusion and falls
// back to a convex combination computed from two separate result sets.
func (g *Gateway) HybridSearch(ctx context.Context, collection string, denseVector []float32, sparse SparseVector, topK int, filter Filter) ([]Hit, error) {
	g.mu.Lock()
	b, ok := g.bindings[collection]
	g.mu.Unlock()
	if !ok || b.DenseModelID == "" || b.SparseModelID == "" {
		return nil, errs.HybridNotSupported(fmt.Sprintf("collection %s has no bound sparse model", collection))
	}
	if filter.ProjectID == "" {
		return nil, errs.New(errs.KindInvalidInput, "project_id filter is required for hybrid search")
	}
	if topK <= 0 {
		topK = 10
	}

	hits, err := g.hybridSearchNative(ctx, collection, denseVector, sparse, topK, filter)
	if err == nil {
		return hits, nil
	}
	g.log.Debug().Err(err).Str("collection", collection).
		Msg("native hybrid fusion unavailable, falling back to manual convex combination")

	return g.hybridSearchConvex(ctx, collection, denseVector, sparse, topK, filter)
}

func (g *Gateway) hybridSearchNative(ctx context.Context, collection string, denseVector []float32, sparse SparseVector, topK int, filter Filter) ([]Hit, error) {
	limit := uint64(topK)
	prefetchLimit := uint64(topK * 4)

	results, err := g.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Prefetch: []*qdrant.PrefetchQuery{
			{
				Query:  qdrant.NewQueryDense(denseVector),
				Using:  ptrString(DenseVectorName),
				Limit:  &prefetchLimit,
				Filter: filter.toQdrant(),
			},
			{
				Query:  qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
				Using:  ptrString(SparseVectorName),
				Limit:  &prefetchLimit,
				Filter: filter.toQdrant(),
			},
		},
		Query:       qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:       &limit,
		Filter:      filter.toQdrant(),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	return toHits(results), nil
}

// hybridSearchConvex computes dense and "sparse as text-proxy" result sets
// independently and fuses them with the fixed weights of spec §4.11:
// 0.3 * normalized_text + 0.7 * normalized_dense.
func (g *Gateway) hybridSearchConvex(ctx context.Context, collection string, denseVector []float32, sparse SparseVector, topK int, filter Filter) ([]Hit, error) {
	limit := uint64(topK * 2)

	usingDense := DenseVectorName
	denseResults, err := g.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(denseVector),
		Using:          &usingDense,
		Limit:          &limit,
		Filter:         filter.toQdrant(),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dense leg of convex fusion failed: %w", err)
	}

	usingSparse := SparseVectorName
	sparseResults, err := g.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
		Using:          &usingSparse,
		Limit:          &limit,
		Filter:         filter.toQdrant(),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: sparse leg of convex fusion failed: %w", err)
	}

	return fuseConvex(toHits(denseResults), toHits(sparseResults), topK), nil
}

// fuseConvex min-max normalizes each leg's scores then combines them
// 0.3*text + 0.7*dense, matching spec §4.11's fallback formula exactly.
func fuseConvex(dense, sparseText []Hit, topK int) []Hit {
	denseNorm := normalizeScores(dense)
	textNorm := normalizeScores(sparseText)

	combined := make(map[string]*Hit, len(dense)+len(sparseText))
	for i, h := range dense {
		hit := h
		hit.Score = 0.7 * denseNorm[i]
		combined[h.ChunkID] = &hit
	}
	for i, h := range sparseText {
		if existing, ok := combined[h.ChunkID]; ok {
			existing.Score += 0.3 * textNorm[i]
			continue
		}
		hit := h
		hit.Score = 0.3 * textNorm[i]
		combined[h.ChunkID] = &hit
	}

	out := make([]Hit, 0, len(combined))
	for _, h := range combined {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func normalizeScores(hits []Hit) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	spread := max - min
	for i, h := range hits {
		if spread == 0 {
			out[i] = 1
			continue
		}
		out[i] = (h.Score - min) / spread
	}
	return out
}

func toHits(results []*qdrant.ScoredPoint) []Hit {
	out := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			payload[k] = valueToAny(v)
		}
		out = append(out, Hit{
			ChunkID: chunkIDFromPayload(payload, r),
			Score:   float64(r.Score),
			Payload: payload,
		})
	}
	return out
}

func chunkIDFromPayload(payload map[string]any, r *qdrant.ScoredPoint) string {
	if id, ok := payload["chunk_id"].(string); ok && id != "" {
		return id
	}
	if r.Id != nil {
		return r.Id.GetUuid()
	}
	return ""
}

func valueToAny(v *qdrant.Value) any {
	switch {
	case v.GetListValue() != nil:
		items := v.GetListValue().GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = valueToAny(item)
		}
		return out
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetIntegerValue() != 0:
		return v.GetIntegerValue()
	case v.GetDoubleValue() != 0:
		return v.GetDoubleValue()
	case v.GetBoolValue():
		return v.GetBoolValue()
	default:
		return nil
	}
}

func ptrString(s string) *string { return &s }
