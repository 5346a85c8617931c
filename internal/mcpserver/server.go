// Package mcpserver exposes the five-tool stdio protocol of spec §6:
// store_chunks, find_chunks, query_hybrid, inspect_collection, and
// list_projects. The first four run under their own deadlines (list_projects
// has none), and all report failures through the
// {error:{code,message,details}} envelope rather than a protocol fault.
package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
	"github.com/Sims2k/citeloom-sub000/internal/retrieve"
	"github.com/Sims2k/citeloom-sub000/internal/vectorindex"
)

// Per-tool deadlines, per spec §6's tool protocol table.
const (
	storeChunksDeadline      = 15 * time.Second
	findChunksDeadline       = 8 * time.Second
	queryHybridDeadline      = 15 * time.Second
	inspectCollectionDeadline = 5 * time.Second

	storeChunksMinItems = 100
	storeChunksMaxItems = 500
)

// ProjectRegistry resolves and enumerates configured projects.
type ProjectRegistry interface {
	retrieve.ProjectResolver
	List(ctx context.Context) ([]retrieve.ProjectBinding, error)
}

// VectorStore is the write/diagnostics side of the vector index gateway
// (C11) the store_chunks and inspect_collection tools depend on;
// *vectorindex.Gateway satisfies it.
type VectorStore interface {
	Upsert(ctx context.Context, req vectorindex.UpsertRequest) error
	Inspect(ctx context.Context, collection string, sampleSize int) (vectorindex.CollectionInfo, error)
}

// Server wires the five tools onto an MCP stdio server.
type Server struct {
	mcp      *mcp.Server
	retrieve *retrieve.Service
	store    VectorStore
	projects ProjectRegistry
	log      zerolog.Logger
}

// NewServer builds the server and registers every tool.
func NewServer(retrieveSvc *retrieve.Service, store VectorStore, projects ProjectRegistry, log zerolog.Logger) *Server {
	s := &Server{
		retrieve: retrieveSvc,
		store:    store,
		projects: projects,
		log:      log,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "citeloom", Version: "0.1.0"}, nil)
	s.registerTools()
	return s
}

// Run serves the protocol over stdio until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_chunks",
		Description: "Writes a batch of pre-embedded chunks (100-500 items) into a project's vector collection.",
	}, s.handleStoreChunks)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_chunks",
		Description: "Dense-vector search over a project's indexed chunks, grounded with citation metadata.",
	}, s.handleFindChunks)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_hybrid",
		Description: "Combined dense+sparse search over a project's indexed chunks, for projects with hybrid search enabled.",
	}, s.handleQueryHybrid)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "inspect_collection",
		Description: "Reports point count, payload schema, and an optional sample for a project's collection.",
	}, s.handleInspectCollection)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_projects",
		Description: "Lists every configured project and its collection binding.",
	}, s.handleListProjects)
}

// StoreChunkItem is one pre-embedded chunk to write.
type StoreChunkItem struct {
	ID        string         `json:"id" jsonschema:"the chunk id"`
	Text      string         `json:"text" jsonschema:"the chunk's full text, stored in the payload"`
	Embedding []float32      `json:"embedding" jsonschema:"the dense embedding vector"`
	Metadata  map[string]any `json:"metadata,omitempty" jsonschema:"additional payload fields (citekey, doi, tags, ...)"`
}

// StoreChunksInput is the input of store_chunks.
type StoreChunksInput struct {
	Project string           `json:"project" jsonschema:"the project id"`
	Items   []StoreChunkItem `json:"items" jsonschema:"100 to 500 pre-embedded chunks"`
}

// StoreChunksOutput is the output of store_chunks.
type StoreChunksOutput struct {
	ChunksWritten int        `json:"chunks_written"`
	Project       string     `json:"project"`
	EmbedModel    string     `json:"embed_model,omitempty"`
	Warnings      []string   `json:"warnings,omitempty"`
	Error         *ToolError `json:"error,omitempty"`
}

func (s *Server) handleStoreChunks(ctx context.Context, req *mcp.CallToolRequest, input StoreChunksInput) (*mcp.CallToolResult, StoreChunksOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, storeChunksDeadline)
	defer cancel()

	if len(input.Items) < storeChunksMinItems || len(input.Items) > storeChunksMaxItems {
		return nil, StoreChunksOutput{Project: input.Project, Error: &ToolError{
			Code:    CodeInvalidInput,
			Message: "items must contain between 100 and 500 entries",
		}}, nil
	}

	binding, ok, err := s.projects.Resolve(ctx, input.Project)
	if err != nil {
		return nil, StoreChunksOutput{Project: input.Project, Error: MapError(err)}, nil
	}
	if !ok {
		return nil, StoreChunksOutput{Project: input.Project, Error: MapError(errs.ProjectNotFound(input.Project))}, nil
	}

	var warnings []string
	points := make([]vectorindex.Point, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ID == "" || item.Text == "" || len(item.Embedding) == 0 {
			warnings = append(warnings, "skipped item with missing id, text, or embedding: "+item.ID)
			continue
		}
		payload := make(map[string]any, len(item.Metadata)+1)
		for k, v := range item.Metadata {
			payload[k] = v
		}
		payload["chunk_text"] = item.Text
		points = append(points, vectorindex.Point{ChunkID: item.ID, Dense: item.Embedding, Payload: payload})
	}

	err = s.store.Upsert(ctx, vectorindex.UpsertRequest{
		Collection:    binding.Collection,
		ProjectID:     binding.ID,
		DenseModelID:  binding.Embedding.Model,
		SparseModelID: binding.SparseModelID,
		Points:        points,
	})
	if err != nil {
		return nil, StoreChunksOutput{Project: input.Project, Error: MapError(err)}, nil
	}

	return nil, StoreChunksOutput{
		ChunksWritten: len(points),
		Project:       binding.ID,
		EmbedModel:    binding.Embedding.Model,
		Warnings:      warnings,
	}, nil
}

// FindFilters narrows a search beyond the mandatory project scope.
type FindFilters struct {
	Tags          []string `json:"tags,omitempty"`
	Year          *int     `json:"year,omitempty"`
	ItemKey       string   `json:"item_key,omitempty"`
	AttachmentKey string   `json:"attachment_key,omitempty"`
}

// FindChunksInput is the shared input shape of find_chunks and query_hybrid.
type FindChunksInput struct {
	Project string       `json:"project" jsonschema:"the project id"`
	Query   string       `json:"query" jsonschema:"the search query text"`
	TopK    int          `json:"top_k,omitempty" jsonschema:"number of results, 1-20, default 6"`
	Filters *FindFilters `json:"filters,omitempty"`
}

// FindChunksOutput is the shared output shape of find_chunks and query_hybrid.
type FindChunksOutput struct {
	Items         []retrieve.Item `json:"items"`
	Count         int             `json:"count"`
	HybridEnabled bool            `json:"hybrid_enabled,omitempty"`
	Error         *ToolError      `json:"error,omitempty"`
}

func (s *Server) handleFindChunks(ctx context.Context, req *mcp.CallToolRequest, input FindChunksInput) (*mcp.CallToolResult, FindChunksOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, findChunksDeadline)
	defer cancel()

	if input.Query == "" {
		return nil, FindChunksOutput{Error: &ToolError{Code: CodeInvalidInput, Message: "query is required"}}, nil
	}

	resp, err := s.retrieve.Find(ctx, requestFromInput(input))
	if err != nil {
		return nil, FindChunksOutput{Error: MapError(err)}, nil
	}
	return nil, FindChunksOutput{Items: resp.Items, Count: resp.Count}, nil
}

func (s *Server) handleQueryHybrid(ctx context.Context, req *mcp.CallToolRequest, input FindChunksInput) (*mcp.CallToolResult, FindChunksOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, queryHybridDeadline)
	defer cancel()

	if input.Query == "" {
		return nil, FindChunksOutput{Error: &ToolError{Code: CodeInvalidInput, Message: "query is required"}}, nil
	}

	resp, err := s.retrieve.QueryHybrid(ctx, requestFromInput(input))
	if err != nil {
		return nil, FindChunksOutput{Error: MapError(err)}, nil
	}
	return nil, FindChunksOutput{Items: resp.Items, Count: resp.Count, HybridEnabled: true}, nil
}

func requestFromInput(input FindChunksInput) retrieve.Request {
	req := retrieve.Request{ProjectID: input.Project, Query: input.Query, TopK: input.TopK}
	if input.Filters != nil {
		req.Tags = input.Filters.Tags
		req.Year = input.Filters.Year
		req.ItemKey = input.Filters.ItemKey
		req.AttachmentKey = input.Filters.AttachmentKey
	}
	return req
}

// InspectCollectionInput is the input of inspect_collection.
type InspectCollectionInput struct {
	Project string `json:"project" jsonschema:"the project id"`
	Sample  int    `json:"sample,omitempty" jsonschema:"number of sample points to return, 0-5"`
}

// IndexesInfo reports which payload fields carry which index kind.
type IndexesInfo struct {
	Keyword  []string `json:"keyword,omitempty"`
	Fulltext []string `json:"fulltext,omitempty"`
}

// InspectCollectionOutput is the output of inspect_collection.
type InspectCollectionOutput struct {
	Project     string           `json:"project"`
	Collection  string           `json:"collection"`
	Size        uint64           `json:"size"`
	EmbedModel  string           `json:"embed_model"`
	PayloadKeys []string         `json:"payload_keys"`
	Indexes     IndexesInfo      `json:"indexes"`
	Sample      []map[string]any `json:"sample,omitempty"`
	Error       *ToolError       `json:"error,omitempty"`
}

func (s *Server) handleInspectCollection(ctx context.Context, req *mcp.CallToolRequest, input InspectCollectionInput) (*mcp.CallToolResult, InspectCollectionOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, inspectCollectionDeadline)
	defer cancel()

	if input.Sample < 0 || input.Sample > 5 {
		return nil, InspectCollectionOutput{Project: input.Project, Error: &ToolError{
			Code: CodeInvalidInput, Message: "sample must be between 0 and 5",
		}}, nil
	}

	binding, ok, err := s.projects.Resolve(ctx, input.Project)
	if err != nil {
		return nil, InspectCollectionOutput{Project: input.Project, Error: MapError(err)}, nil
	}
	if !ok {
		return nil, InspectCollectionOutput{Project: input.Project, Error: MapError(errs.ProjectNotFound(input.Project))}, nil
	}

	info, err := s.store.Inspect(ctx, binding.Collection, input.Sample)
	if err != nil {
		return nil, InspectCollectionOutput{Project: input.Project, Error: MapError(err)}, nil
	}

	sample := make([]map[string]any, 0, len(info.Sample))
	for _, hit := range info.Sample {
		sample = append(sample, hit.Payload)
	}

	return nil, InspectCollectionOutput{
		Project:     binding.ID,
		Collection:  info.Name,
		Size:        info.PointsCount,
		EmbedModel:  binding.Embedding.Model,
		PayloadKeys: info.PayloadKeys,
		Indexes:     IndexesInfo{Keyword: info.KeywordIndexed, Fulltext: info.FulltextIndexed},
		Sample:      sample,
	}, nil
}

// ListProjectsInput is the (empty) input of list_projects.
type ListProjectsInput struct{}

// ProjectSummary is one project's configuration, for list_projects.
type ProjectSummary struct {
	ID            string `json:"id"`
	Collection    string `json:"collection"`
	EmbedModel    string `json:"embed_model"`
	HybridEnabled bool   `json:"hybrid_enabled"`
}

// ListProjectsOutput is the output of list_projects.
type ListProjectsOutput struct {
	Projects []ProjectSummary `json:"projects"`
	Error    *ToolError       `json:"error,omitempty"`
}

func (s *Server) handleListProjects(ctx context.Context, req *mcp.CallToolRequest, input ListProjectsInput) (*mcp.CallToolResult, ListProjectsOutput, error) {
	bindings, err := s.projects.List(ctx)
	if err != nil {
		return nil, ListProjectsOutput{Error: MapError(err)}, nil
	}

	out := make([]ProjectSummary, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, ProjectSummary{
			ID:            b.ID,
			Collection:    b.Collection,
			EmbedModel:    b.Embedding.Model,
			HybridEnabled: b.HybridEnabled,
		})
	}
	return nil, ListProjectsOutput{Projects: out}, nil
}
