package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sims2k/citeloom-sub000/internal/manifest"
	"github.com/Sims2k/citeloom-sub000/internal/zotero"
)

// pdfExtensions identify PDFs among an item's attachments by filename when
// the content type is missing or unreliable.
var pdfExtensions = []string{".pdf"}

// AcquireOptions configures Phase A of one ingestion run.
type AcquireOptions struct {
	CollectionKey  string
	CollectionName string
	Recursive      bool
	IncludeTags    []string
	ExcludeTags    []string
	DownloadDir    string
	Workers        int
}

// Acquire implements spec §4.12 Phase A: walk a collection's items, retain
// those passing the tag filter, download their PDF attachments to
// <DownloadDir>/<CollectionKey>/, and persist the resulting manifest.
func Acquire(ctx context.Context, router *zotero.Router, opts AcquireOptions, log zerolog.Logger) (*manifest.Manifest, string, error) {
	items, err := router.GetCollectionItems(ctx, opts.CollectionKey, opts.Recursive)
	if err != nil {
		return nil, "", fmt.Errorf("ingest: listing collection items: %w", err)
	}

	var retained []zotero.Item
	for _, it := range items {
		if matchesTagFilter(it.Tags, opts.IncludeTags, opts.ExcludeTags) {
			retained = append(retained, it)
		}
	}

	m := manifest.New(opts.CollectionKey, opts.CollectionName, time.Now().UTC())

	type job struct {
		item zotero.Item
		att  zotero.ItemAttachment
	}
	var jobs []job
	for _, it := range retained {
		attachments, err := router.GetItemAttachments(ctx, it.Key)
		if err != nil {
			log.Warn().Err(err).Str("item_key", it.Key).Msg("skipping item, could not list attachments")
			continue
		}
		for _, a := range attachments {
			if isPDFAttachment(a) {
				jobs = append(jobs, job{item: it, att: a})
			}
		}
	}

	dir := filepath.Join(opts.DownloadDir, opts.CollectionKey)
	dedup := NewDeduper()
	progress := newProgressTracker(log, "acquire", len(jobs))

	results := make([]manifest.Attachment, len(jobs))
	itemOf := make([]string, len(jobs))

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for idx, jb := range jobs {
		idx, jb := idx, jb
		g.Go(func() error {
			results[idx] = downloadOne(gctx, router, jb.item, jb.att, dir, dedup, log)
			itemOf[idx] = jb.item.Key
			progress.increment()
			return nil
		})
	}
	_ = g.Wait() // per-attachment failures are recorded, not propagated

	for i, jb := range jobs {
		existing, ok := m.GetItemByKey(jb.item.Key)
		if !ok {
			existing = manifest.Item{ItemKey: jb.item.Key, Title: jb.item.Title}
		}
		existing.Attachments = append(existing.Attachments, results[i])
		m.AddItem(existing)
	}

	path, err := m.Save(opts.DownloadDir)
	if err != nil {
		return nil, "", fmt.Errorf("ingest: saving manifest: %w", err)
	}
	return m, path, nil
}

func downloadOne(ctx context.Context, router *zotero.Router, item zotero.Item, att zotero.ItemAttachment, dir string, dedup *Deduper, log zerolog.Logger) manifest.Attachment {
	filename := dedup.Dedupe(SanitizeFilename(att.Filename))
	outputPath := filepath.Join(dir, att.Key+"_"+filename)

	localPath, src, err := router.DownloadAttachment(ctx, item.Key, att.Key, outputPath)
	if err != nil {
		log.Warn().Err(err).Str("attachment_key", att.Key).Msg("attachment download failed")
		return manifest.Attachment{
			ItemKey:        item.Key,
			AttachmentKey:  att.Key,
			Filename:       filename,
			DownloadStatus: manifest.DownloadFailed,
			Error:          err.Error(),
		}
	}

	source := manifest.SourceWeb
	if src == zotero.SourceLocal {
		source = manifest.SourceLocal
	}
	return manifest.Attachment{
		ItemKey:        item.Key,
		AttachmentKey:  att.Key,
		Filename:       filename,
		LocalPath:      localPath,
		DownloadStatus: manifest.DownloadSuccess,
		Source:         source,
	}
}

func isPDFAttachment(a zotero.ItemAttachment) bool {
	if strings.Contains(strings.ToLower(a.ContentType), "pdf") {
		return true
	}
	lower := strings.ToLower(a.Filename)
	for _, ext := range pdfExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
