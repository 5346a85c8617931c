// Command citeloom-mcp serves the five-tool stdio protocol of spec §6
// (store_chunks, find_chunks, query_hybrid, inspect_collection,
// list_projects) against a configured set of projects.
package main

import (
	"context"
	"os"

	"github.com/Sims2k/citeloom-sub000/internal/config"
	"github.com/Sims2k/citeloom-sub000/internal/embedder"
	"github.com/Sims2k/citeloom-sub000/internal/mcpserver"
	"github.com/Sims2k/citeloom-sub000/internal/obslog"
	"github.com/Sims2k/citeloom-sub000/internal/obsmetrics"
	"github.com/Sims2k/citeloom-sub000/internal/retrieve"
	"github.com/Sims2k/citeloom-sub000/internal/vectorindex"
)

// projectRegistry is a static, config-file-backed implementation of
// mcpserver.ProjectRegistry / retrieve.ProjectResolver.
type projectRegistry struct {
	bindings map[string]retrieve.ProjectBinding
}

func (r projectRegistry) Resolve(_ context.Context, projectID string) (retrieve.ProjectBinding, bool, error) {
	b, ok := r.bindings[projectID]
	return b, ok, nil
}

func (r projectRegistry) List(_ context.Context) ([]retrieve.ProjectBinding, error) {
	out := make([]retrieve.ProjectBinding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	return out, nil
}

func registryFromConfig(cfg config.Config) projectRegistry {
	apiKey := config.OpenAIAPIKey()
	bindings := make(map[string]retrieve.ProjectBinding, len(cfg.Project))
	for id, p := range cfg.Project {
		bindings[id] = retrieve.ProjectBinding{
			ID:         id,
			Collection: p.Collection,
			Embedding: embedder.Config{
				Model:  p.EmbeddingModel,
				APIKey: apiKey,
			},
			SparseModelID: p.SparseModel,
			HybridEnabled: p.HybridEnabled,
		}
	}
	return projectRegistry{bindings: bindings}
}

func qdrantDSN(cfg config.Config) string {
	if cfg.Qdrant.APIKey == "" {
		return cfg.Qdrant.URL
	}
	return cfg.Qdrant.URL + "?api_key=" + cfg.Qdrant.APIKey
}

func main() {
	log := obslog.Init(os.Getenv("CITELOOM_LOG_LEVEL"))

	config.LoadDotenv()

	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed loading configuration")
	}
	projects := registryFromConfig(cfg)

	gateway, err := vectorindex.Open(qdrantDSN(cfg), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed connecting to qdrant")
	}
	defer gateway.Close()

	pool := embedder.NewPool(func(ec embedder.Config) embedder.Embedder {
		if ec.Endpoint == "" {
			dim := ec.Dimension
			if dim <= 0 {
				dim = 64
			}
			return embedder.NewDeterministic(ec.Model, dim, true)
		}
		return embedder.NewClient(ec)
	})

	retrieveSvc := retrieve.NewService(projects, pool, gateway, retrieve.NewHashingSparseEncoder(0), retrieve.DefaultPolicy(), log)
	retrieveSvc.SetMetrics(obsmetrics.NewOtelRecorder())
	server := mcpserver.NewServer(retrieveSvc, gateway, projects, log)

	if err := server.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("mcp server stopped with error")
	}
}
