package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sims2k/citeloom-sub000/internal/zotero"
)

type fakeWebSource struct {
	items       map[string][]zotero.Item
	attachments map[string][]zotero.ItemAttachment
	fileBytes   []byte
}

func (f *fakeWebSource) ListCollections(ctx context.Context) ([]zotero.Collection, error) {
	return []zotero.Collection{{Key: "COLL1", Name: "Papers"}}, nil
}

func (f *fakeWebSource) FindCollectionByName(ctx context.Context, name string) (zotero.Collection, bool, error) {
	return zotero.Collection{}, false, nil
}

func (f *fakeWebSource) GetCollectionItems(ctx context.Context, collectionKey string, recursive bool) ([]zotero.Item, error) {
	return f.items[collectionKey], nil
}

func (f *fakeWebSource) GetItemAttachments(ctx context.Context, itemKey string) ([]zotero.ItemAttachment, error) {
	return f.attachments[itemKey], nil
}

func (f *fakeWebSource) GetItemMetadata(ctx context.Context, itemKey string) (zotero.Item, error) {
	return zotero.Item{Key: itemKey}, nil
}

func (f *fakeWebSource) ListTags(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeWebSource) GetRecentItems(ctx context.Context, limit int) ([]zotero.Item, error) {
	return nil, nil
}

func (f *fakeWebSource) DownloadAttachment(ctx context.Context, itemKey, attachmentKey, outputPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(outputPath, f.fileBytes, 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}

// Given a collection with one tagged item and one untagged item, When Acquire
// runs with an include-tag filter, Then only the matching item's attachment
// is downloaded and recorded in the manifest.
func TestAcquire_FiltersByTagAndDownloadsPDFs(t *testing.T) {
	web := &fakeWebSource{
		items: map[string][]zotero.Item{
			"COLL1": {
				{Key: "ITEM1", Title: "Match", Tags: []string{"nlp"}},
				{Key: "ITEM2", Title: "NoMatch", Tags: []string{"robotics"}},
			},
		},
		attachments: map[string][]zotero.ItemAttachment{
			"ITEM1": {{Key: "ATT1", Filename: "paper.pdf", ContentType: "application/pdf"}},
			"ITEM2": {{Key: "ATT2", Filename: "other.pdf", ContentType: "application/pdf"}},
		},
		fileBytes: []byte("%PDF-1.4 fake content"),
	}
	router, err := zotero.NewRouter(nil, web, zotero.StrategyWebOnly, zerolog.Nop())
	require.NoError(t, err)

	dir := t.TempDir()
	m, path, err := Acquire(context.Background(), router, AcquireOptions{
		CollectionKey:  "COLL1",
		CollectionName: "Papers",
		IncludeTags:    []string{"nlp"},
		DownloadDir:    dir,
	}, zerolog.Nop())
	require.NoError(t, err)
	require.FileExists(t, path)

	downloads := m.GetSuccessfulDownloads()
	require.Len(t, downloads, 1)
	require.Equal(t, "ITEM1", downloads[0].ItemKey)
	require.Equal(t, "ATT1", downloads[0].AttachmentKey)
	require.FileExists(t, downloads[0].LocalPath)
}

func TestIsPDFAttachment_DetectsByContentTypeOrExtension(t *testing.T) {
	require.True(t, isPDFAttachment(zotero.ItemAttachment{ContentType: "application/pdf"}))
	require.True(t, isPDFAttachment(zotero.ItemAttachment{Filename: "doc.PDF"}))
	require.False(t, isPDFAttachment(zotero.ItemAttachment{Filename: "doc.txt", ContentType: "text/plain"}))
}
