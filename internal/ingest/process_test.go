package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

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

type fakeCacheReader struct {
	text string
	ok   bool
}

func (f fakeCacheReader) GetCachedFulltext(ctx context.Context, attachmentKey string) (string, bool, error) {
	return f.text, f.ok, nil
}

type fakeMetadataResolver struct {
	meta  citation.Metadata
	found bool
}

func (f fakeMetadataResolver) Resolve(ctx context.Context, docID, sourceHint string) (citation.Metadata, bool, error) {
	return f.meta, f.found, nil
}

type fakeUpserter struct {
	calls []vectorindex.UpsertRequest
}

func (f *fakeUpserter) Upsert(ctx context.Context, req vectorindex.UpsertRequest) error {
	f.calls = append(f.calls, req)
	return nil
}

func wellFormedText() string {
	sentence := "The quick brown fox jumps over the lazy dog near the river bank. "
	out := ""
	for i := 0; i < 20; i++ {
		out += sentence
	}
	return out
}

func buildProcessor(t *testing.T, upserter *fakeUpserter) (*Processor, string) {
	t.Helper()
	dir := t.TempDir()
	filePath := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(filePath, []byte("%PDF-1.4 fake"), 0o644))

	cache := fakeCacheReader{text: wellFormedText(), ok: true}
	resolver := fulltext.NewResolver(cache, nil, zerolog.Nop())
	ck := chunker.New(nil)
	md := fakeMetadataResolver{meta: citation.Metadata{Citekey: "doe2024", Year: 2024, DOI: "10.1/x"}, found: true}
	emb := embedder.NewDeterministic("det", 8, true)

	ckptDir := t.TempDir()
	store, err := checkpoint.NewStore(ckptDir)
	require.NoError(t, err)

	p := NewProcessor(resolver, nil, ck, md, emb, upserter, store, zerolog.Nop())
	return p, filePath
}

// Given a fresh document with no prior checkpoint, When processOne runs the
// full pipeline, Then it ends completed and the vector gateway receives one
// upsert call carrying the enriched payload.
func TestProcessOne_FullPipelineSucceeds(t *testing.T) {
	upserter := &fakeUpserter{}
	p, filePath := buildProcessor(t, upserter)

	att := manifest.Attachment{AttachmentKey: "ATT1", LocalPath: filePath, Filename: "doc.pdf"}
	doc, fp := p.processOne(context.Background(), att, nil, ProcessOptions{
		ProjectID:      "proj1",
		Collection:     "papers",
		EmbeddingModelID: "det",
		ChunkerOptions: chunker.Options{MaxTokens: 50, OverlapTokens: 5, EmbeddingModelID: "det"},
	})

	require.Equal(t, checkpoint.StatusCompleted, doc.Status)
	require.Greater(t, doc.ChunksCount, 0)
	require.NotEmpty(t, fp.ContentHash)
	require.Len(t, upserter.calls, 1)
	require.Equal(t, "proj1", upserter.calls[0].ProjectID)
}

// Given a prior fingerprint identical to the current file content and a
// completed checkpoint entry for this path, When processOne runs, Then it
// short-circuits to completed without touching the gateway, carrying over
// the prior run's ChunksCount and DocID rather than recording a blank
// completion.
func TestProcessOne_UnchangedFingerprintSkipsPipeline(t *testing.T) {
	upserter := &fakeUpserter{}
	p, filePath := buildProcessor(t, upserter)

	fp, err := fingerprint.Compute(filePath, "det", "", "")
	require.NoError(t, err)

	att := manifest.Attachment{AttachmentKey: "ATT1", LocalPath: filePath, Filename: "doc.pdf", ContentFingerprint: &fp}
	priorCompleted := map[string]checkpoint.DocumentCheckpoint{
		filePath: {Path: filePath, Status: checkpoint.StatusCompleted, ChunksCount: 7, DocID: "ATT1"},
	}
	doc, _ := p.processOne(context.Background(), att, priorCompleted, ProcessOptions{
		ProjectID:        "proj1",
		Collection:       "papers",
		EmbeddingModelID: "det",
		ChunkerOptions:   chunker.Options{MaxTokens: 50, OverlapTokens: 5, EmbeddingModelID: "det"},
	})

	require.Equal(t, checkpoint.StatusCompleted, doc.Status)
	require.Equal(t, 7, doc.ChunksCount)
	require.Equal(t, "ATT1", doc.DocID)
	require.Empty(t, upserter.calls)
}

// Given a prior fingerprint identical to the current file content but no
// surviving completed checkpoint entry for this path, When processOne runs,
// Then it re-runs the full pipeline instead of recording a blank completion.
func TestProcessOne_UnchangedFingerprintWithoutPriorRecordReprocesses(t *testing.T) {
	upserter := &fakeUpserter{}
	p, filePath := buildProcessor(t, upserter)

	fp, err := fingerprint.Compute(filePath, "det", "", "")
	require.NoError(t, err)

	att := manifest.Attachment{AttachmentKey: "ATT1", LocalPath: filePath, Filename: "doc.pdf", ContentFingerprint: &fp}
	doc, _ := p.processOne(context.Background(), att, nil, ProcessOptions{
		ProjectID:        "proj1",
		Collection:       "papers",
		EmbeddingModelID: "det",
		ChunkerOptions:   chunker.Options{MaxTokens: 50, OverlapTokens: 5, EmbeddingModelID: "det"},
	})

	require.Equal(t, checkpoint.StatusCompleted, doc.Status)
	require.Greater(t, doc.ChunksCount, 0)
	require.Len(t, upserter.calls, 1)
}

// Given a metrics recorder attached, When Process runs one document to
// completion, Then it records a document-processed count and a duration
// observation.
func TestProcess_RecordsMetricsWhenAttached(t *testing.T) {
	upserter := &fakeUpserter{}
	p, filePath := buildProcessor(t, upserter)
	recorder := obsmetrics.NewMockRecorder()
	p.SetMetrics(recorder)

	m := manifest.New("coll1", "Collection One", time.Now().UTC())
	m.AddItem(manifest.Item{
		ItemKey: "ITEM1",
		Title:   "doc",
		Attachments: []manifest.Attachment{{
			AttachmentKey:  "ATT1",
			Filename:       "doc.pdf",
			LocalPath:      filePath,
			DownloadStatus: manifest.DownloadSuccess,
		}},
	})
	ckpt := &checkpoint.IngestionCheckpoint{CorrelationID: "corr1", ProjectID: "proj1"}

	err := p.Process(context.Background(), m, ckpt, ProcessOptions{
		ProjectID:        "proj1",
		Collection:       "papers",
		EmbeddingModelID: "det",
		ChunkerOptions:   chunker.Options{MaxTokens: 50, OverlapTokens: 5, EmbeddingModelID: "det"},
	})
	require.NoError(t, err)

	require.Equal(t, 1, recorder.Counters[obsmetrics.MetricDocumentsProcessed])
	require.Len(t, recorder.Histograms[obsmetrics.MetricIngestDuration], 1)
	require.Len(t, recorder.Histograms[obsmetrics.MetricChunksEmbedded], 1)
}

func TestChunkPayload_CarriesCitationFields(t *testing.T) {
	c, err := chunkmodel.NewChunk("doc1", "some text", chunkmodel.PageSpan{Start: 1, End: 1}, "Intro", nil, 0, "det")
	require.NoError(t, err)

	att := manifest.Attachment{ItemKey: "ITEM9", AttachmentKey: "ATT9"}
	meta := citation.Metadata{Citekey: "x2024", Year: 2024, DOI: "10.1/y"}

	payload := chunkPayload(c, meta, att)
	require.Equal(t, "x2024", payload["citekey"])
	require.Equal(t, "ITEM9", payload["zotero.item_key"])
	require.Equal(t, "ATT9", payload["zotero.attachment_key"])
}
