// Package vectorindex is the per-project vector store gateway (C11): named
// dense/sparse vector collections, a model-binding write-guard, keyword and
// full-text payload indexes, and dense/hybrid search with a manual fusion
// fallback.
package vectorindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// DenseVectorName and SparseVectorName are the fixed named-vector keys every
// collection uses, per spec §4.11.
const (
	DenseVectorName  = "dense"
	SparseVectorName = "sparse"
)

// keywordIndexedFields get a keyword payload index on every collection.
var keywordIndexedFields = []string{
	"project_id", "doc_id", "citekey", "year", "tags",
	"zotero.item_key", "zotero.attachment_key",
}

// binding records which embedding model ids a collection is bound to.
type binding struct {
	DenseModelID  string
	SparseModelID string
}

// Gateway owns the Qdrant client connection and the in-process model-binding
// cache (local metadata keyed by collection name, per spec §4.11 step 4).
type Gateway struct {
	client *qdrant.Client
	log    zerolog.Logger

	mu       sync.Mutex
	bindings map[string]binding
}

// Open connects to Qdrant at dsn (e.g. "http://localhost:6334?api_key=...").
func Open(dsn string, log zerolog.Logger) (*Gateway, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: invalid dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("vectorindex: invalid port in dsn: %w", err)
		}
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: failed connecting to qdrant: %w", err)
	}

	return &Gateway{client: client, log: log, bindings: make(map[string]binding)}, nil
}

func (g *Gateway) Close() error { return g.client.Close() }

// CollectionSpec describes the collection to create or bind against.
type CollectionSpec struct {
	Name          string
	DenseDim      int
	DenseModelID  string
	HybridEnabled bool
	SparseModelID string
	Metric        string // cosine|l2|ip, defaults to cosine
}

// EnsureCollection creates the collection (with named vectors and payload
// indexes) on first use, or verifies the write-guard against an existing
// binding on subsequent calls. Binding a dense/sparse model id that matches
// the stored one is a no-op.
func (g *Gateway) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	exists, err := g.client.CollectionExists(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("vectorindex: failed checking collection existence: %w", err)
	}

	if !exists {
		if err := g.createCollection(ctx, spec); err != nil {
			return err
		}
		if err := g.createPayloadIndexes(ctx, spec); err != nil {
			return err
		}
		g.setBinding(spec.Name, binding{DenseModelID: spec.DenseModelID, SparseModelID: spec.SparseModelID})
		return nil
	}

	g.recoverBinding(ctx, spec.Name)
	return g.checkWriteGuard(spec.Name, spec.DenseModelID, spec.SparseModelID)
}

// recoverBinding repopulates the in-process binding cache for a collection
// that already exists but was never bound in this process (true on every
// fresh CLI invocation). It scrolls a single point and reads the
// "embed_model"/"sparse_model" payload fields every point carries, mirroring
// the original implementation's fallback so the write-guard isn't a no-op
// across process restarts. A no-op if the binding is already cached or the
// collection has no points yet.
func (g *Gateway) recoverBinding(ctx context.Context, collection string) {
	g.mu.Lock()
	_, ok := g.bindings[collection]
	g.mu.Unlock()
	if ok {
		return
	}

	limit := uint32(1)
	points, err := g.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil || len(points) == 0 {
		return
	}

	denseModelID, _ := valueToAny(points[0].Payload["embed_model"]).(string)
	if denseModelID == "" {
		return
	}
	sparseModelID, _ := valueToAny(points[0].Payload["sparse_model"]).(string)

	g.setBinding(collection, binding{DenseModelID: denseModelID, SparseModelID: sparseModelID})
	g.log.Debug().Str("collection", collection).Str("embed_model", denseModelID).
		Msg("recovered model binding from existing collection contents")
}

func (g *Gateway) createCollection(ctx context.Context, spec CollectionSpec) error {
	if spec.DenseDim <= 0 {
		return errs.New(errs.KindInvalidInput, "dense vector dimension must be > 0")
	}

	distance := distanceFromMetric(spec.Metric)
	vectorsConfig := qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
		DenseVectorName: {Size: uint64(spec.DenseDim), Distance: distance},
	})

	create := &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig:  vectorsConfig,
	}

	if spec.HybridEnabled {
		create.SparseVectorsConfig = qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			SparseVectorName: {},
		})
	}

	if err := g.client.CreateCollection(ctx, create); err != nil {
		return fmt.Errorf("vectorindex: failed creating collection %s: %w", spec.Name, err)
	}
	return nil
}

func distanceFromMetric(metric string) qdrant.Distance {
	switch metric {
	case "l2", "euclidean":
		return qdrant.Distance_Euclid
	case "ip", "dot":
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func (g *Gateway) createPayloadIndexes(ctx context.Context, spec CollectionSpec) error {
	for _, field := range keywordIndexedFields {
		fieldType := qdrant.FieldType_FieldTypeKeyword
		if err := g.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: spec.Name,
			FieldName:      field,
			FieldType:      &fieldType,
		}); err != nil {
			return fmt.Errorf("vectorindex: failed creating keyword index on %s: %w", field, err)
		}
	}

	if spec.HybridEnabled {
		textType := qdrant.FieldType_FieldTypeText
		if err := g.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: spec.Name,
			FieldName:      "chunk_text",
			FieldType:      &textType,
		}); err != nil {
			return fmt.Errorf("vectorindex: failed creating fulltext index on chunk_text: %w", err)
		}
	}
	return nil
}

func (g *Gateway) setBinding(collection string, b binding) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bindings[collection] = b
}

// checkWriteGuard implements spec §4.11's write-guard: a dense model
// mismatch is fatal, a sparse mismatch is a warning only.
func (g *Gateway) checkWriteGuard(collection, denseModelID, sparseModelID string) error {
	g.mu.Lock()
	b, ok := g.bindings[collection]
	g.mu.Unlock()

	if !ok {
		// First observation this process; trust the caller and record it.
		g.setBinding(collection, binding{DenseModelID: denseModelID, SparseModelID: sparseModelID})
		return nil
	}

	if b.DenseModelID != "" && denseModelID != "" && b.DenseModelID != denseModelID {
		return errs.EmbeddingModelMismatch(b.DenseModelID, denseModelID)
	}
	if sparseModelID != "" && b.SparseModelID != "" && b.SparseModelID != sparseModelID {
		g.log.Warn().Str("collection", collection).Str("expected", b.SparseModelID).
			Str("provided", sparseModelID).Msg("sparse embedding model mismatch, hybrid search may degrade")
	}
	return nil
}

// ForceRebuild deletes and recreates the collection, the only sanctioned way
// to change a bound model id.
func (g *Gateway) ForceRebuild(ctx context.Context, spec CollectionSpec) error {
	if err := g.client.DeleteCollection(ctx, spec.Name); err != nil {
		return fmt.Errorf("vectorindex: failed deleting collection %s: %w", spec.Name, err)
	}
	g.mu.Lock()
	delete(g.bindings, spec.Name)
	g.mu.Unlock()
	return g.EnsureCollection(ctx, spec)
}

// pointID derives the deterministic UUID Qdrant requires from a chunk id.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}
