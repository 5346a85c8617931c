// Package retrieve is the query-side use case of C13: embed a query, dispatch
// it to dense or hybrid search against a project's bound collection, and
// shape the raw vector hits into citation-carrying results under a fixed
// retrieval policy (top_k clamp, score floor, per-chunk text trim).
package retrieve

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sims2k/citeloom-sub000/internal/embedder"
	"github.com/Sims2k/citeloom-sub000/internal/errs"
	"github.com/Sims2k/citeloom-sub000/internal/obsmetrics"
	"github.com/Sims2k/citeloom-sub000/internal/vectorindex"
)

// ProjectBinding is everything retrieval needs to know about one configured
// project: which collection it writes to and which models that collection
// is bound to.
type ProjectBinding struct {
	ID            string
	Collection    string
	Embedding     embedder.Config
	SparseModelID string
	HybridEnabled bool
}

// ProjectResolver looks up a project's binding by id. Callers wire this to
// whatever holds the `[project.<id>]` configuration tables.
type ProjectResolver interface {
	Resolve(ctx context.Context, projectID string) (ProjectBinding, bool, error)
}

// Searcher is the read side of the vector index gateway (C11) that retrieval
// depends on; *vectorindex.Gateway satisfies it.
type Searcher interface {
	DenseSearch(ctx context.Context, collection string, queryVector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Hit, error)
	HybridSearch(ctx context.Context, collection string, denseVector []float32, sparse vectorindex.SparseVector, topK int, filter vectorindex.Filter) ([]vectorindex.Hit, error)
}

// Request carries one retrieval call's parameters, common to both the dense
// and hybrid entry points.
type Request struct {
	ProjectID     string
	Query         string
	TopK          int
	Tags          []string
	Year          *int
	ItemKey       string
	AttachmentKey string
}

// Item is one shaped retrieval result, per spec §4.13.
type Item struct {
	Text        string   `json:"text"`
	Score       float64  `json:"score"`
	Citekey     string   `json:"citekey"`
	Section     string   `json:"section"`
	PageSpan    [2]int   `json:"page_span"`
	SectionPath []string `json:"section_path"`
	DOI         string   `json:"doi"`
	URL         string   `json:"url"`
}

// Response is the shaped result set of one retrieval call.
type Response struct {
	Items []Item `json:"items"`
	Count int    `json:"count"`
}

// Service wires query embedding, search dispatch, and result shaping behind
// the fixed retrieval policy.
type Service struct {
	projects ProjectResolver
	pool     *embedder.Pool
	gateway  Searcher
	sparse   *HashingSparseEncoder
	policy   Policy
	log      zerolog.Logger
	metrics  obsmetrics.Recorder
}

// NewService builds a retrieval Service. pool supplies the dense embedder
// for whichever model a project is bound to; sparse encodes query text into
// the text-proxy sparse vector hybrid search needs.
func NewService(projects ProjectResolver, pool *embedder.Pool, gateway Searcher, sparse *HashingSparseEncoder, policy Policy, log zerolog.Logger) *Service {
	return &Service{projects: projects, pool: pool, gateway: gateway, sparse: sparse, policy: policy, log: log}
}

// SetMetrics attaches a metrics recorder; a Service with none attached
// records nothing.
func (s *Service) SetMetrics(m obsmetrics.Recorder) {
	s.metrics = m
}

func (s *Service) recordQuery(projectID, mode string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.IncCounter(obsmetrics.MetricQueryCount, map[string]string{"project": projectID, "mode": mode, "status": status})
	s.metrics.ObserveHistogram(obsmetrics.MetricQueryDuration, time.Since(start).Seconds(), map[string]string{"project": projectID, "mode": mode})
}

// Find runs a pure dense-vector query.
func (s *Service) Find(ctx context.Context, req Request) (resp Response, err error) {
	start := time.Now()
	defer func() { s.recordQuery(req.ProjectID, "dense", start, err) }()

	binding, queryVec, err := s.prepare(ctx, req)
	if err != nil {
		return Response{}, err
	}

	topK := s.policy.ClampTopK(req.TopK)
	hits, err := s.gateway.DenseSearch(ctx, binding.Collection, queryVec, topK, s.filterFor(req))
	if err != nil {
		return Response{}, fmt.Errorf("retrieve: dense search failed: %w", err)
	}
	return s.shape(hits), nil
}

// QueryHybrid runs a combined dense+sparse query. HybridNotSupported and
// ProjectNotFound propagate unchanged, per spec §4.13.
func (s *Service) QueryHybrid(ctx context.Context, req Request) (resp Response, err error) {
	start := time.Now()
	defer func() { s.recordQuery(req.ProjectID, "hybrid", start, err) }()

	binding, queryVec, err := s.prepare(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if !binding.HybridEnabled {
		return Response{}, errs.HybridNotSupported(fmt.Sprintf("project %q is not hybrid-enabled", req.ProjectID))
	}

	topK := s.policy.ClampTopK(req.TopK)
	sparseVec := s.sparse.Encode(req.Query)
	hits, err := s.gateway.HybridSearch(ctx, binding.Collection, queryVec, sparseVec, topK, s.filterFor(req))
	if err != nil {
		return Response{}, err
	}
	return s.shape(hits), nil
}

// prepare resolves the project binding and embeds the query text with that
// project's bound model, in the single place both entry points share.
func (s *Service) prepare(ctx context.Context, req Request) (ProjectBinding, []float32, error) {
	if req.ProjectID == "" {
		return ProjectBinding{}, nil, errs.New(errs.KindInvalidInput, "project is required")
	}
	binding, ok, err := s.projects.Resolve(ctx, req.ProjectID)
	if err != nil {
		return ProjectBinding{}, nil, fmt.Errorf("retrieve: resolving project %q: %w", req.ProjectID, err)
	}
	if !ok {
		return ProjectBinding{}, nil, errs.ProjectNotFound(req.ProjectID)
	}

	eng := s.pool.Get(binding.Embedding)
	vecs, err := eng.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return ProjectBinding{}, nil, fmt.Errorf("retrieve: embedding query: %w", err)
	}
	return binding, vecs[0], nil
}

func (s *Service) filterFor(req Request) vectorindex.Filter {
	return vectorindex.Filter{
		ProjectID:     req.ProjectID,
		Tags:          req.Tags,
		Year:          req.Year,
		ItemKey:       req.ItemKey,
		AttachmentKey: req.AttachmentKey,
	}
}

// shape applies the min-score floor and per-chunk trim, converting raw hits
// into the result contract of spec §4.13.
func (s *Service) shape(hits []vectorindex.Hit) Response {
	items := make([]Item, 0, len(hits))
	for _, h := range hits {
		if h.Score < s.policy.MinScore {
			continue
		}
		items = append(items, itemFromHit(h, s.policy.MaxCharsPerChunk))
	}
	return Response{Items: items, Count: len(items)}
}

func itemFromHit(h vectorindex.Hit, maxChars int) Item {
	text, _ := h.Payload["chunk_text"].(string)
	citekey, _ := h.Payload["citekey"].(string)
	section, _ := h.Payload["section_heading"].(string)
	doi, _ := h.Payload["doi"].(string)
	url, _ := h.Payload["url"].(string)

	return Item{
		Text:        TrimToWordBoundary(text, maxChars),
		Score:       h.Score,
		Citekey:     citekey,
		Section:     section,
		PageSpan:    pageSpanFromPayload(h.Payload),
		SectionPath: sectionPathFromPayload(h.Payload),
		DOI:         doi,
		URL:         url,
	}
}

func pageSpanFromPayload(payload map[string]any) [2]int {
	start := intFromAny(payload["page_span_start"])
	end := intFromAny(payload["page_span_end"])
	return [2]int{start, end}
}

func sectionPathFromPayload(payload map[string]any) []string {
	raw, ok := payload["section_path"].([]any)
	if !ok {
		if strs, ok := payload["section_path"].([]string); ok {
			return strs
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
