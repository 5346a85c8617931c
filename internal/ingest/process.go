package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sims2k/citeloom-sub000/internal/checkpoint"
	"github.com/Sims2k/citeloom-sub000/internal/chunker"
	"github.com/Sims2k/citeloom-sub000/internal/chunkmodel"
	"github.com/Sims2k/citeloom-sub000/internal/citation"
	"github.com/Sims2k/citeloom-sub000/internal/embedder"
	"github.com/Sims2k/citeloom-sub000/internal/fingerprint"
	"github.com/Sims2k/citeloom-sub000/internal/fulltext"
	"github.com/Sims2k/citeloom-sub000/internal/manifest"
	"github.com/Sims2k/citeloom-sub000/internal/obsmetrics"
	"github.com/Sims2k/citeloom-sub000/internal/vectorindex"
)

// Converter turns a downloaded PDF into chunker input. Ingestion's windowed
// conversion (spec §4.12 "Windowed conversion") is the caller's converter
// implementation's responsibility; this package calls it uniformly whether
// it windows internally or not.
type Converter interface {
	Convert(ctx context.Context, filePath string) (chunker.Document, error)
}

// MetadataResolver resolves bibliographic metadata for a Zotero item.
type MetadataResolver interface {
	Resolve(ctx context.Context, docID, sourceHint string) (citation.Metadata, bool, error)
}

// VectorUpserter is the write side of the vector index gateway (C11) that
// Phase B depends on; *vectorindex.Gateway satisfies it.
type VectorUpserter interface {
	Upsert(ctx context.Context, req vectorindex.UpsertRequest) error
}

// ProcessOptions configures Phase B of one ingestion run.
type ProcessOptions struct {
	ProjectID              string
	Collection             string
	EmbeddingModelID        string
	SparseModelID           string
	ChunkingPolicyVersion   string
	EmbeddingPolicyVersion  string
	ChunkerOptions          chunker.Options
	Workers                 int
}

// Processor runs Phase B: convert -> chunk -> enrich -> embed -> upsert, one
// document (attachment) at a time, persisting checkpoint transitions.
type Processor struct {
	fulltext   *fulltext.Resolver
	converter  Converter
	chunker    *chunker.Chunker
	metadata   MetadataResolver
	embedder   embedder.Embedder
	gateway    VectorUpserter
	checkpoint *checkpoint.Store
	log        zerolog.Logger
	metrics    obsmetrics.Recorder
}

// NewProcessor wires Phase B's dependencies.
func NewProcessor(ft *fulltext.Resolver, conv Converter, ck *chunker.Chunker, md MetadataResolver, emb embedder.Embedder, gw VectorUpserter, store *checkpoint.Store, log zerolog.Logger) *Processor {
	return &Processor{fulltext: ft, converter: conv, chunker: ck, metadata: md, embedder: emb, gateway: gw, checkpoint: store, log: log}
}

// SetMetrics attaches a metrics recorder; a Processor with none attached
// records nothing.
func (p *Processor) SetMetrics(m obsmetrics.Recorder) {
	p.metrics = m
}

func (p *Processor) incCounter(name string, labels map[string]string) {
	if p.metrics != nil {
		p.metrics.IncCounter(name, labels)
	}
}

func (p *Processor) observeHistogram(name string, value float64, labels map[string]string) {
	if p.metrics != nil {
		p.metrics.ObserveHistogram(name, value, labels)
	}
}

// Process runs every successful download in m through the pipeline,
// recording progress in ckpt in place (the caller persists the final state
// from it). Cancellation aborts remaining work but leaves
// already-completed documents marked as such.
func (p *Processor) Process(ctx context.Context, m *manifest.Manifest, ckpt *checkpoint.IngestionCheckpoint, opts ProcessOptions) error {
	downloads := m.GetSuccessfulDownloads()
	progress := newProgressTracker(p.log, "process", len(downloads))

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	alreadyCompleted := make(map[string]checkpoint.DocumentCheckpoint, len(ckpt.Documents))
	for _, d := range ckpt.Documents {
		if d.Status == checkpoint.StatusCompleted {
			alreadyCompleted[d.Path] = d
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	for i := range downloads {
		att := downloads[i]
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}

			if prior, ok := alreadyCompleted[att.LocalPath]; ok {
				mu.Lock()
				ckpt.AddDocumentCheckpoint(prior)
				ckpt.UpdateStatistics()
				mu.Unlock()
				progress.increment()
				return nil
			}

			start := time.Now()
			doc, freshFP := p.processOne(gctx, att, alreadyCompleted, opts)
			p.observeHistogram(obsmetrics.MetricIngestDuration, time.Since(start).Seconds(), map[string]string{"project": opts.ProjectID})
			p.incCounter(obsmetrics.MetricDocumentsProcessed, map[string]string{"project": opts.ProjectID, "status": string(doc.Status)})
			if doc.Status == checkpoint.StatusCompleted {
				p.observeHistogram(obsmetrics.MetricChunksEmbedded, float64(doc.ChunksCount), map[string]string{"project": opts.ProjectID})
			}

			mu.Lock()
			ckpt.AddDocumentCheckpoint(doc)
			ckpt.UpdateStatistics()
			ckpt.LastUpdate = time.Now().UTC()
			if doc.Status == checkpoint.StatusCompleted {
				recordFingerprint(m, att.AttachmentKey, freshFP)
			}
			saveErr := p.checkpoint.Save(ckpt)
			mu.Unlock()
			if saveErr != nil {
				p.log.Error().Err(saveErr).Msg("failed persisting checkpoint after document transition")
			}

			progress.increment()
			return nil
		})
	}
	return g.Wait()
}

// recordFingerprint stores the fresh content fingerprint on the manifest
// attachment so the next run's unchanged-content check is accurate.
func recordFingerprint(m *manifest.Manifest, attachmentKey string, fp fingerprint.Fingerprint) {
	for i := range m.Items {
		for j := range m.Items[i].Attachments {
			if m.Items[i].Attachments[j].AttachmentKey == attachmentKey {
				f := fp
				m.Items[i].Attachments[j].ContentFingerprint = &f
				return
			}
		}
	}
}

// processOne runs a single attachment through convert -> chunk -> enrich ->
// embed -> upsert, producing its final checkpoint entry. It never returns an
// error directly: failures are captured in the checkpoint so the batch
// continues, per spec §4.12 step 4 and §7's propagation policy.
func (p *Processor) processOne(ctx context.Context, att manifest.Attachment, priorCompleted map[string]checkpoint.DocumentCheckpoint, opts ProcessOptions) (checkpoint.DocumentCheckpoint, fingerprint.Fingerprint) {
	now := time.Now().UTC()
	doc := checkpoint.DocumentCheckpoint{Path: att.LocalPath, ZoteroItemKey: att.ItemKey, ZoteroAttachmentKey: att.AttachmentKey}

	fp, err := fingerprint.Compute(att.LocalPath, opts.EmbeddingModelID, opts.ChunkingPolicyVersion, opts.EmbeddingPolicyVersion)
	if err != nil {
		doc.MarkFailed(fmt.Sprintf("computing fingerprint: %v", err), now)
		return doc, fp
	}

	if fingerprint.IsUnchanged(att.ContentFingerprint, fp) {
		if prior, ok := priorCompleted[att.LocalPath]; ok {
			doc.MarkCompleted(prior.ChunksCount, prior.DocID, now)
			return doc, fp
		}
		// No completed checkpoint entry survives for this path despite an
		// unchanged fingerprint (e.g. checkpoint store lost between runs);
		// there is nothing trustworthy to carry over, so re-run the pipeline
		// rather than record a blank completion.
	}

	doc.MarkStage(checkpoint.StatusConverting, now)

	result, err := p.fulltext.Resolve(ctx, att.AttachmentKey, att.LocalPath, true, 100)
	if err != nil {
		doc.MarkFailed(fmt.Sprintf("resolving full text: %v", err), time.Now().UTC())
		return doc, fp
	}

	docID := att.AttachmentKey
	chunkDoc := chunker.Document{Text: result.Text}
	if p.converter != nil {
		if converted, convErr := p.converter.Convert(ctx, att.LocalPath); convErr == nil {
			chunkDoc.PageMap = converted.PageMap
			chunkDoc.Headings = converted.Headings
		}
	}

	doc.MarkStage(checkpoint.StatusChunking, time.Now().UTC())
	chunks, err := p.chunker.Chunk(docID, chunkDoc, opts.ChunkerOptions)
	if err != nil {
		doc.MarkFailed(fmt.Sprintf("chunking: %v", err), time.Now().UTC())
		return doc, fp
	}

	meta, found, err := p.metadata.Resolve(ctx, docID, att.Filename)
	if err != nil {
		p.log.Warn().Err(err).Str("doc_id", docID).Msg("metadata resolution error, continuing without enrichment")
	} else if !found {
		p.log.Warn().Str("doc_id", docID).Msg("no bibliographic metadata match found, continuing unenriched")
	}

	doc.MarkStage(checkpoint.StatusEmbedding, time.Now().UTC())
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		doc.MarkFailed(fmt.Sprintf("embedding: %v", err), time.Now().UTC())
		return doc, fp
	}

	doc.MarkStage(checkpoint.StatusStoring, time.Now().UTC())
	points := make([]vectorindex.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorindex.Point{
			ChunkID: c.ID,
			Dense:   vectors[i],
			Payload: chunkPayload(c, meta, att),
		}
	}

	err = p.gateway.Upsert(ctx, vectorindex.UpsertRequest{
		Collection:    opts.Collection,
		ProjectID:     opts.ProjectID,
		DenseModelID:  opts.EmbeddingModelID,
		SparseModelID: opts.SparseModelID,
		Points:        points,
	})
	if err != nil {
		doc.MarkFailed(fmt.Sprintf("upserting: %v", err), time.Now().UTC())
		return doc, fp
	}

	doc.MarkCompleted(len(chunks), docID, time.Now().UTC())
	return doc, fp
}

func chunkPayload(c chunkmodel.Chunk, meta citation.Metadata, att manifest.Attachment) map[string]any {
	return map[string]any{
		"chunk_id":               c.ID,
		"doc_id":                 c.DocID,
		"chunk_text":             c.Text,
		"chunk_idx":               c.ChunkIdx,
		"page_span_start":        c.PageSpan.Start,
		"page_span_end":          c.PageSpan.End,
		"section_heading":        c.SectionHeading,
		"section_path":           c.SectionPath,
		"citekey":                meta.Citekey,
		"year":                   meta.Year,
		"doi":                    meta.DOI,
		"url":                    meta.URL,
		"tags":                   meta.Tags,
		"zotero.item_key":        att.ItemKey,
		"zotero.attachment_key":  att.AttachmentKey,
	}
}
