package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

// CollectionInfo is a read-only diagnostic snapshot of a collection, for the
// inspect_collection tool of spec §6.
type CollectionInfo struct {
	Name            string
	PointsCount     uint64
	PayloadKeys     []string
	KeywordIndexed  []string
	FulltextIndexed []string
	Sample          []Hit
}

// Inspect reports point count, observed payload keys with their index kind,
// and an optional small sample of points.
func (g *Gateway) Inspect(ctx context.Context, collection string, sampleSize int) (CollectionInfo, error) {
	info, err := g.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("vectorindex: failed fetching collection info for %s: %w", collection, err)
	}

	out := CollectionInfo{Name: collection, PointsCount: info.GetPointsCount()}
	for field, schema := range info.GetPayloadSchema() {
		out.PayloadKeys = append(out.PayloadKeys, field)
		switch schema.GetDataType() {
		case qdrant.PayloadSchemaType_Keyword:
			out.KeywordIndexed = append(out.KeywordIndexed, field)
		case qdrant.PayloadSchemaType_Text:
			out.FulltextIndexed = append(out.FulltextIndexed, field)
		}
	}
	sort.Strings(out.PayloadKeys)
	sort.Strings(out.KeywordIndexed)
	sort.Strings(out.FulltextIndexed)

	if sampleSize <= 0 {
		return out, nil
	}

	limit := uint32(sampleSize)
	points, err := g.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return out, fmt.Errorf("vectorindex: failed sampling collection %s: %w", collection, err)
	}
	out.Sample = make([]Hit, 0, len(points))
	for _, p := range points {
		payload := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = valueToAny(v)
		}
		chunkID, _ := payload["chunk_id"].(string)
		if chunkID == "" && p.Id != nil {
			chunkID = p.Id.GetUuid()
		}
		out.Sample = append(out.Sample, Hit{ChunkID: chunkID, Payload: payload})
	}
	return out, nil
}
