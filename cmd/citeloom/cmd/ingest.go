package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sims2k/citeloom-sub000/internal/checkpoint"
	"github.com/Sims2k/citeloom-sub000/internal/chunker"
	"github.com/Sims2k/citeloom-sub000/internal/citation"
	"github.com/Sims2k/citeloom-sub000/internal/config"
	"github.com/Sims2k/citeloom-sub000/internal/embedder"
	"github.com/Sims2k/citeloom-sub000/internal/errs"
	"github.com/Sims2k/citeloom-sub000/internal/fulltext"
	"github.com/Sims2k/citeloom-sub000/internal/ingest"
	"github.com/Sims2k/citeloom-sub000/internal/manifest"
	"github.com/Sims2k/citeloom-sub000/internal/vectorindex"
	"github.com/Sims2k/citeloom-sub000/internal/zotero"
)

func newIngestCmd() *cobra.Command {
	var (
		project          string
		source           string
		zoteroCollection string
		recursive        bool
		includeTags      []string
		excludeTags      []string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documents into a project's vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			correlationID := newCorrelationID()
			defer fmt.Println(correlationID)

			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			proj, ok := cfg.Project[project]
			if !ok {
				return errs.New(errs.KindProjectNotFound, fmt.Sprintf("no [project.%s] section in configuration", project))
			}

			gateway, err := openGateway(cfg, log)
			if err != nil {
				return err
			}
			defer gateway.Close()

			pool := newEmbedderPool()
			embedCfg := embedder.Config{Model: proj.EmbeddingModel, APIKey: config.OpenAIAPIKey()}
			emb := pool.Get(embedCfg)

			if err := gateway.EnsureCollection(cmd.Context(), vectorindex.CollectionSpec{
				Name:          proj.Collection,
				DenseDim:      emb.Dimension(),
				DenseModelID:  proj.EmbeddingModel,
				HybridEnabled: proj.HybridEnabled,
				SparseModelID: proj.SparseModel,
			}); err != nil {
				return err
			}

			checkpointDir := firstNonEmptyPath(cfg.Paths.CheckpointDir, "var/checkpoints")
			auditDir := firstNonEmptyPath(cfg.Paths.AuditDir, "var/audit")
			downloadDir := firstNonEmptyPath(cfg.Paths.DownloadsDir, "var/zotero_downloads")

			store, err := checkpoint.NewStore(checkpointDir)
			if err != nil {
				return err
			}

			processOpts := ingest.ProcessOptions{
				ProjectID:      project,
				Collection:     proj.Collection,
				EmbeddingModelID: proj.EmbeddingModel,
				SparseModelID:  proj.SparseModel,
				ChunkerOptions: chunker.Options{
					MaxTokens:        cfg.Chunking.MaxTokens,
					OverlapTokens:    cfg.Chunking.OverlapTokens,
					EmbeddingModelID: proj.EmbeddingModel,
				},
			}

			if zoteroCollection != "" {
				router, err := buildRouter(cfg, log)
				if err != nil {
					return err
				}
				ckpt, err := runZoteroIngest(cmd.Context(), log, cfg, router, gateway, emb, store, zoteroIngestOptions{
					collectionName: zoteroCollection,
					recursive:      recursive,
					includeTags:    includeTags,
					excludeTags:    excludeTags,
					downloadDir:    downloadDir,
					auditDir:       auditDir,
					correlationID:  correlationID,
				}, processOpts)
				logIngestOutcome(log, ckpt)
				return err
			}

			if source == "" {
				return errs.New(errs.KindInvalidInput, "either --zotero-collection or --source must be given")
			}
			ckpt, err := runLocalSourceIngest(cmd.Context(), log, cfg, gateway, emb, store, source, correlationID, processOpts)
			logIngestOutcome(log, ckpt)
			return err
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id (must match a [project.<id>] section)")
	cmd.Flags().StringVar(&source, "source", "", "a local PDF file or a directory of PDFs to ingest directly")
	cmd.Flags().StringVar(&zoteroCollection, "zotero-collection", "", "name of a Zotero collection to acquire and ingest")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "walk Zotero subcollections")
	cmd.Flags().StringSliceVar(&includeTags, "include-tag", nil, "only retain items carrying one of these tags (OR semantics)")
	cmd.Flags().StringSliceVar(&excludeTags, "exclude-tag", nil, "drop items carrying any of these tags")
	cmd.MarkFlagRequired("project")

	return cmd
}

func firstNonEmptyPath(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func logIngestOutcome(log zerolog.Logger, ckpt *checkpoint.IngestionCheckpoint) {
	if ckpt == nil {
		return
	}
	log.Info().
		Int("total", ckpt.Statistics.Total).
		Int("completed", ckpt.Statistics.Completed).
		Int("failed", ckpt.Statistics.Failed).
		Str("correlation_id", ckpt.CorrelationID).
		Msg("ingestion run finished")
}

type zoteroIngestOptions struct {
	collectionName string
	recursive      bool
	includeTags    []string
	excludeTags    []string
	downloadDir    string
	auditDir       string
	correlationID  string
}

func runZoteroIngest(
	ctx context.Context,
	log zerolog.Logger,
	cfg config.Config,
	router *zotero.Router,
	gateway *vectorindex.Gateway,
	emb embedder.Embedder,
	store *checkpoint.Store,
	opts zoteroIngestOptions,
	processOpts ingest.ProcessOptions,
) (*checkpoint.IngestionCheckpoint, error) {
	coll, found, err := router.FindCollectionByName(ctx, opts.collectionName)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolving zotero collection %q: %w", opts.collectionName, err)
	}
	if !found {
		return nil, errs.New(errs.KindInvalidInput, fmt.Sprintf("no zotero collection named %q", opts.collectionName))
	}

	processor := ingest.NewProcessor(
		fulltext.NewResolver(nil, newConverter(cfg), log),
		nil,
		chunker.New(nil),
		zotero.NewMetadataResolver(router, log),
		emb,
		gateway,
		store,
		log,
	)
	processor.SetMetrics(newMetrics())
	orchestrator := ingest.NewOrchestrator(router, processor, store, log)

	return orchestrator.Run(ctx, ingest.RunOptions{
		CorrelationID: opts.correlationID,
		Acquire: ingest.AcquireOptions{
			CollectionKey:  coll.Key,
			CollectionName: coll.Name,
			Recursive:      opts.recursive,
			IncludeTags:    opts.includeTags,
			ExcludeTags:    opts.excludeTags,
			DownloadDir:    opts.downloadDir,
			Workers:        4,
		},
		Process:  processOpts,
		AuditDir: opts.auditDir,
	})
}

// noopMetadataResolver never finds a match; used for direct local-source
// ingestion where there is no Zotero item to enrich against.
type noopMetadataResolver struct{}

func (noopMetadataResolver) Resolve(_ context.Context, _, _ string) (citation.Metadata, bool, error) {
	return citation.Metadata{}, false, nil
}

// runLocalSourceIngest ingests a single file or every PDF under a directory
// without going through a Zotero collection, by synthesizing a manifest
// whose attachments point directly at on-disk files.
func runLocalSourceIngest(
	ctx context.Context,
	log zerolog.Logger,
	cfg config.Config,
	gateway *vectorindex.Gateway,
	emb embedder.Embedder,
	store *checkpoint.Store,
	source string,
	correlationID string,
	processOpts ingest.ProcessOptions,
) (*checkpoint.IngestionCheckpoint, error) {
	paths, err := collectLocalSourceFiles(source)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errs.New(errs.KindInvalidInput, fmt.Sprintf("no files found under %s", source))
	}

	m := manifest.New("local", source, time.Now().UTC())
	for _, p := range paths {
		key := attachmentKeyFor(p)
		m.AddItem(manifest.Item{
			ItemKey: key,
			Title:   filepath.Base(p),
			Attachments: []manifest.Attachment{{
				ItemKey:        key,
				AttachmentKey:  key,
				Filename:       filepath.Base(p),
				LocalPath:      p,
				DownloadStatus: manifest.DownloadSuccess,
				Source:         manifest.SourceLocal,
			}},
		})
	}

	processor := ingest.NewProcessor(
		fulltext.NewResolver(nil, newConverter(cfg), log),
		nil,
		chunker.New(nil),
		noopMetadataResolver{},
		emb,
		gateway,
		store,
		log,
	)
	processor.SetMetrics(newMetrics())

	ckpt, err := store.Load(correlationID)
	if err != nil {
		return nil, fmt.Errorf("ingest: loading checkpoint: %w", err)
	}
	now := time.Now().UTC()
	if ckpt == nil {
		ckpt = &checkpoint.IngestionCheckpoint{
			CorrelationID: correlationID,
			ProjectID:     processOpts.ProjectID,
			CollectionKey: m.CollectionKey,
			StartTime:     now,
			LastUpdate:    now,
		}
	}

	processErr := processor.Process(ctx, m, ckpt, processOpts)
	ckpt.LastUpdate = time.Now().UTC()
	ckpt.UpdateStatistics()
	if saveErr := store.Save(ckpt); saveErr != nil {
		return ckpt, fmt.Errorf("ingest: persisting checkpoint: %w", saveErr)
	}
	return ckpt, processErr
}

func collectLocalSourceFiles(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, fmt.Sprintf("source %s not found", source), err)
	}
	if !info.IsDir() {
		return []string{source}, nil
	}

	var out []string
	err = filepath.Walk(source, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func attachmentKeyFor(path string) string {
	h := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(path)
	if len(h) > 64 {
		h = h[len(h)-64:]
	}
	return h
}
