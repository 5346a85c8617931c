// Package ingest implements the ingestion orchestrator (C12): a two-phase
// batch that downloads a Zotero collection's attachments to a manifest
// (Phase A) and then runs each document through convert, chunk, enrich,
// embed, and upsert while maintaining a resumable checkpoint (Phase B).
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sims2k/citeloom-sub000/internal/checkpoint"
	"github.com/Sims2k/citeloom-sub000/internal/zotero"
)

// RunOptions carries everything one ingestion batch needs across both phases.
type RunOptions struct {
	CorrelationID string
	Acquire       AcquireOptions
	Process       ProcessOptions
	AuditDir      string
}

// Orchestrator owns a single ingestion run's lifecycle, per spec §4.12 and
// §5's "orchestrator exclusively owns the checkpoint and in-flight manifest"
// ownership rule.
type Orchestrator struct {
	router         *zotero.Router
	processor      *Processor
	checkpointStore *checkpoint.Store
	log            zerolog.Logger
}

// NewOrchestrator wires the router and processor behind a single entry point.
func NewOrchestrator(router *zotero.Router, processor *Processor, store *checkpoint.Store, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{router: router, processor: processor, checkpointStore: store, log: log}
}

// Run executes Phase A then Phase B under opts.CorrelationID, resuming from
// any existing checkpoint for that id. Once the checkpoint is loaded it
// returns it even on error, so a caller can inspect partial progress; if
// loading the checkpoint fails it returns nil.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*checkpoint.IngestionCheckpoint, error) {
	ckpt, err := o.checkpointStore.Load(opts.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("ingest: loading checkpoint: %w", err)
	}
	now := time.Now().UTC()
	if ckpt == nil {
		ckpt = &checkpoint.IngestionCheckpoint{
			CorrelationID: opts.CorrelationID,
			ProjectID:     opts.Process.ProjectID,
			CollectionKey: opts.Acquire.CollectionKey,
			StartTime:     now,
			LastUpdate:    now,
		}
	}

	audit, err := OpenAuditWriter(opts.AuditDir, opts.CorrelationID)
	if err != nil {
		return ckpt, err
	}
	defer audit.Close()

	m, _, err := Acquire(ctx, o.router, opts.Acquire, o.log)
	if err != nil {
		return ckpt, fmt.Errorf("ingest: phase A acquire failed: %w", err)
	}

	start := time.Now()
	processErr := o.processor.Process(ctx, m, ckpt, opts.Process)

	ckpt.LastUpdate = time.Now().UTC()
	ckpt.UpdateStatistics()
	if saveErr := o.checkpointStore.Save(ckpt); saveErr != nil {
		o.log.Error().Err(saveErr).Msg("failed persisting final checkpoint")
	}

	o.writeAuditSummary(audit, opts, ckpt, time.Since(start))

	if processErr != nil {
		return ckpt, fmt.Errorf("ingest: phase B process failed: %w", processErr)
	}
	if ctx.Err() != nil {
		return ckpt, ctx.Err()
	}
	return ckpt, nil
}

// writeAuditSummary appends a single run-level entry (DocID and SourcePath
// left empty) to the audit log. No per-document entries are written.
func (o *Orchestrator) writeAuditSummary(audit *AuditWriter, opts RunOptions, ckpt *checkpoint.IngestionCheckpoint, elapsed time.Duration) {
	var warnings []string
	for _, d := range ckpt.Documents {
		if d.Status == checkpoint.StatusFailed {
			warnings = append(warnings, fmt.Sprintf("%s: %s", d.Path, d.Error))
		}
	}

	entry := AuditEntry{
		CorrelationID:      opts.CorrelationID,
		ProjectID:          opts.Process.ProjectID,
		DocumentsProcessed: ckpt.Statistics.Total,
		ChunksWritten:      totalChunks(ckpt),
		DurationSeconds:    elapsed.Seconds(),
		EmbedModel:         opts.Process.EmbeddingModelID,
		Warnings:           warnings,
		Timestamp:          time.Now().UTC(),
	}
	if err := audit.Write(entry); err != nil {
		o.log.Error().Err(err).Msg("failed writing audit summary")
	}
}

func totalChunks(ckpt *checkpoint.IngestionCheckpoint) int {
	total := 0
	for _, d := range ckpt.Documents {
		total += d.ChunksCount
	}
	return total
}
