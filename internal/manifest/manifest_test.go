package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManifest_SaveLoadRoundTrip(t *testing.T) {
	m := New("col-1", "My Collection", time.Unix(1000, 0).UTC())
	m.AddItem(Item{
		ItemKey: "ITEM1",
		Title:   "A paper",
		Attachments: []Attachment{
			{AttachmentKey: "ATT1", Filename: "paper.pdf", DownloadStatus: DownloadSuccess, Source: SourceLocal, LocalPath: "/tmp/paper.pdf"},
			{AttachmentKey: "ATT2", Filename: "notes.txt", DownloadStatus: DownloadFailed, Error: "unsupported type"},
		},
	})

	dir := t.TempDir()
	path, err := m.Save(dir)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, m.CollectionKey, loaded.CollectionKey)
	require.Len(t, loaded.GetPDFAttachments(), 1)
	require.Len(t, loaded.GetSuccessfulDownloads(), 1)
}

func TestManifest_AddItemUpsertsByKey(t *testing.T) {
	m := New("col-1", "c", time.Unix(0, 0))
	m.AddItem(Item{ItemKey: "I1", Title: "first"})
	m.AddItem(Item{ItemKey: "I1", Title: "second"})
	require.Len(t, m.Items, 1)
	it, ok := m.GetItemByKey("I1")
	require.True(t, ok)
	require.Equal(t, "second", it.Title)
}

func TestManifest_GetItemByKeyMissing(t *testing.T) {
	m := New("col-1", "c", time.Unix(0, 0))
	_, ok := m.GetItemByKey("nope")
	require.False(t, ok)
}
