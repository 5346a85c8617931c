package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AuditEntry is one line of var/audit/<correlation_id>.jsonl, per spec §6.
type AuditEntry struct {
	CorrelationID      string   `json:"correlation_id"`
	DocID              string   `json:"doc_id"`
	ProjectID          string   `json:"project_id"`
	SourcePath         string   `json:"source_path"`
	ChunksWritten      int      `json:"chunks_written"`
	DocumentsProcessed int      `json:"documents_processed"`
	DurationSeconds    float64  `json:"duration_seconds"`
	EmbedModel         string   `json:"embed_model"`
	Warnings           []string `json:"warnings"`
	Timestamp          time.Time `json:"timestamp"`
}

// AuditWriter appends one JSON line per Write call to
// <dir>/<correlation_id>.jsonl.
type AuditWriter struct {
	path string
	f    *os.File
}

// OpenAuditWriter opens (creating/appending) the audit log for correlationID.
func OpenAuditWriter(dir, correlationID string) (*AuditWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ingest: creating audit dir: %w", err)
	}
	path := filepath.Join(dir, correlationID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening audit log: %w", err)
	}
	return &AuditWriter{path: path, f: f}, nil
}

// Write appends one audit entry and fsyncs, since the audit log is the
// durable record of work done even if the checkpoint is later lost.
func (w *AuditWriter) Write(entry AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ingest: marshaling audit entry: %w", err)
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("ingest: writing audit entry: %w", err)
	}
	return w.f.Sync()
}

// Close releases the underlying file handle.
func (w *AuditWriter) Close() error { return w.f.Close() }
