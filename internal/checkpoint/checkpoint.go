// Package checkpoint models an in-flight ingestion batch's durable state:
// per-document progress plus derived statistics, consulted on resume.
package checkpoint

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a single document within a batch.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusChunking   Status = "chunking"
	StatusEmbedding  Status = "embedding"
	StatusStoring    Status = "storing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var validStatuses = map[Status]bool{
	StatusPending:    true,
	StatusConverting: true,
	StatusChunking:   true,
	StatusEmbedding:  true,
	StatusStoring:    true,
	StatusCompleted:  true,
	StatusFailed:     true,
}

// DocumentCheckpoint tracks one document's progress through the pipeline.
//
// Stage mirrors Status while the document is in flight. Per the spec's own
// prose (not the original implementation's behavior, which leaves a stale
// stage value behind — see DESIGN.md Open Question decisions), Stage is
// cleared once Status reaches a terminal value.
type DocumentCheckpoint struct {
	Path                string    `json:"path"`
	Status              Status    `json:"status"`
	Stage               Status    `json:"stage,omitempty"`
	ChunksCount         int       `json:"chunks_count"`
	DocID               string    `json:"doc_id,omitempty"`
	ZoteroItemKey       string    `json:"zotero_item_key,omitempty"`
	ZoteroAttachmentKey string    `json:"zotero_attachment_key,omitempty"`
	Error               string    `json:"error,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// MarkStage transitions the document to a new non-terminal stage.
func (d *DocumentCheckpoint) MarkStage(stage Status, now time.Time) {
	d.Status = stage
	d.Stage = stage
	d.UpdatedAt = now
}

// MarkCompleted transitions the document to its terminal success state.
func (d *DocumentCheckpoint) MarkCompleted(chunksCount int, docID string, now time.Time) {
	d.Status = StatusCompleted
	d.Stage = ""
	d.ChunksCount = chunksCount
	d.DocID = docID
	d.Error = ""
	d.UpdatedAt = now
}

// MarkFailed transitions the document to its terminal failure state. err
// must be non-empty: a failed document without an error message fails
// checkpoint validation.
func (d *DocumentCheckpoint) MarkFailed(err string, now time.Time) {
	d.Status = StatusFailed
	d.Stage = ""
	d.Error = err
	d.UpdatedAt = now
}

// Statistics is the derived, invariant-checked rollup over a checkpoint's
// documents: Total must equal Completed + Failed + Pending.
type Statistics struct {
	Total     int `json:"total_documents"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// IngestionCheckpoint is the durable snapshot of one correlation id's batch.
type IngestionCheckpoint struct {
	CorrelationID string               `json:"correlation_id"`
	ProjectID     string               `json:"project_id"`
	CollectionKey string               `json:"collection_key,omitempty"`
	StartTime     time.Time            `json:"start_time"`
	LastUpdate    time.Time            `json:"last_update"`
	Documents     []DocumentCheckpoint `json:"documents"`
	Statistics    Statistics           `json:"statistics"`
}

// AddDocumentCheckpoint upserts by Path: an existing entry for the same path
// is replaced in place, preserving position; a new path is appended.
func (c *IngestionCheckpoint) AddDocumentCheckpoint(doc DocumentCheckpoint) {
	for i := range c.Documents {
		if c.Documents[i].Path == doc.Path {
			c.Documents[i] = doc
			return
		}
	}
	c.Documents = append(c.Documents, doc)
}

// UpdateStatistics recomputes Statistics from Documents. Any non-
// pending/completed/failed status (the in-flight stages) counts toward
// Pending, since it has neither succeeded nor failed yet.
func (c *IngestionCheckpoint) UpdateStatistics() {
	stats := Statistics{Total: len(c.Documents)}
	for _, d := range c.Documents {
		switch d.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	c.Statistics = stats
}

// Validate enforces the structural invariants of spec §4.2/§8 property 4:
// non-empty identifiers, ordered timestamps, valid per-document statuses,
// failed documents carrying error text, and statistics that agree with a
// fresh recomputation.
func (c *IngestionCheckpoint) Validate() error {
	if c.CorrelationID == "" {
		return fmt.Errorf("checkpoint: correlation_id must be non-empty")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("checkpoint: project_id must be non-empty")
	}
	if c.StartTime.After(c.LastUpdate) {
		return fmt.Errorf("checkpoint: start_time (%s) must be <= last_update (%s)", c.StartTime, c.LastUpdate)
	}
	for _, d := range c.Documents {
		if d.Path == "" {
			return fmt.Errorf("checkpoint: document checkpoint missing path")
		}
		if !validStatuses[d.Status] {
			return fmt.Errorf("checkpoint: invalid document status %q for path %s", d.Status, d.Path)
		}
		if d.Status == StatusFailed && d.Error == "" {
			return fmt.Errorf("checkpoint: failed document %s missing error text", d.Path)
		}
	}

	want := c.Statistics
	c.UpdateStatistics()
	got := c.Statistics
	c.Statistics = want
	if got != want {
		return fmt.Errorf("checkpoint: statistics mismatch: stored %+v, recomputed %+v", want, got)
	}
	if want.Total != want.Completed+want.Failed+want.Pending {
		return fmt.Errorf("checkpoint: statistics invariant violated: %+v", want)
	}
	return nil
}
