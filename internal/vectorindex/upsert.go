package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// SparseVector is a sparse embedding as (index, value) pairs.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Point is one chunk ready to be written to the index: its dense (and
// optionally sparse) embedding plus the full payload of spec §3.
type Point struct {
	ChunkID string
	Dense   []float32
	Sparse  *SparseVector
	Payload map[string]any
}

// UpsertRequest carries the write-guard identity alongside the batch.
type UpsertRequest struct {
	Collection    string
	ProjectID     string
	DenseModelID  string
	SparseModelID string
	Points        []Point
}

// Upsert writes a batch of points, enforcing the model-binding write-guard
// first, retrying transient failures with exponential backoff, and
// re-asserting the binding afterward.
func (g *Gateway) Upsert(ctx context.Context, req UpsertRequest) error {
	if err := g.checkWriteGuard(req.Collection, req.DenseModelID, req.SparseModelID); err != nil {
		return err
	}
	if len(req.Points) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(req.Points))
	for _, p := range req.Points {
		payload := make(map[string]any, len(p.Payload)+2)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload["project_id"] = req.ProjectID
		payload["embed_model"] = req.DenseModelID
		if req.SparseModelID != "" {
			payload["sparse_model"] = req.SparseModelID
		}

		vectors := map[string]*qdrant.Vector{
			DenseVectorName: qdrant.NewVectorDense(p.Dense),
		}
		if p.Sparse != nil {
			vectors[SparseVectorName] = qdrant.NewVectorSparse(p.Sparse.Indices, p.Sparse.Values)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(p.ChunkID)),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	err := errs.Retry(ctx, errs.QdrantUpsertRetryConfig(), func() error {
		_, err := g.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: req.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("vectorindex: upsert failed for collection %s: %w", req.Collection, err)
	}

	if verifyErr := g.checkWriteGuard(req.Collection, req.DenseModelID, req.SparseModelID); verifyErr != nil {
		g.log.Warn().Err(verifyErr).Str("collection", req.Collection).
			Msg("model binding could not be re-verified after upsert")
	}
	return nil
}
